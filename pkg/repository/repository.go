package repository

import (
	"context"
	"iter"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

// MemoryStore defines namespaced key/value persistence shared by all
// sessions. Implementations must be safe for concurrent use and must
// provide read-your-writes consistency: a Get or Search issued after a
// Put on the same namespace by the same caller observes that write.
//
// Semantics:
//   - Put overwrites an existing key; absence of a prior key is not an
//     error. Errors indicate backing-medium failure only.
//   - Get returns (nil, nil) when the key is absent.
//   - ListKeys yields the keys of exactly one namespace; the returned
//     sequence is finite and restartable.
//   - Search matches records in the namespace subtree rooted at the
//     given path, ranked by relevance to the query (case-insensitive
//     substring occurrences, ties broken newest first). An empty
//     subtree yields an empty result, not an error.
//   - Delete is idempotent; deleting an absent key is not an error.
type MemoryStore interface {
	Put(ctx context.Context, ns model.NamespacePath, key, value string) error
	Get(ctx context.Context, ns model.NamespacePath, key string) (*model.MemoryRecord, error)
	ListKeys(ctx context.Context, ns model.NamespacePath) (iter.Seq[string], error)
	Search(ctx context.Context, ns model.NamespacePath, query string) ([]*model.MemoryRecord, error)
	Delete(ctx context.Context, ns model.NamespacePath, key string) error
}

// Handle is a namespace-scoped view over a MemoryStore. A holder can
// reach its own subtree and nothing else; the base path is fixed at
// construction and cannot be overridden by callers.
type Handle struct {
	store MemoryStore
	base  model.NamespacePath
}

// NewHandle creates a handle rooted at base.
func NewHandle(store MemoryStore, base model.NamespacePath) *Handle {
	return &Handle{store: store, base: base}
}

// In returns a child handle rooted deeper in the same subtree.
func (h *Handle) In(segments ...string) *Handle {
	return &Handle{store: h.store, base: h.base.Child(segments...)}
}

// Path returns the handle's base namespace.
func (h *Handle) Path() model.NamespacePath {
	return h.base
}

func (h *Handle) Put(ctx context.Context, key, value string) error {
	return h.store.Put(ctx, h.base, key, value)
}

func (h *Handle) Get(ctx context.Context, key string) (*model.MemoryRecord, error) {
	return h.store.Get(ctx, h.base, key)
}

func (h *Handle) ListKeys(ctx context.Context) (iter.Seq[string], error) {
	return h.store.ListKeys(ctx, h.base)
}

func (h *Handle) Search(ctx context.Context, query string) ([]*model.MemoryRecord, error) {
	return h.store.Search(ctx, h.base, query)
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	return h.store.Delete(ctx, h.base, key)
}
