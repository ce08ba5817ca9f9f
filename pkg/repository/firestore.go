package repository

import (
	"context"
	"iter"
	"net/url"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

const memoryCollection = "memories"

// Firestore implements MemoryStore on Cloud Firestore. Records live in a
// single flat collection; the document ID encodes namespace and key so
// that writes are single-document upserts.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed MemoryStore.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (r *Firestore) Close() error {
	return r.client.Close()
}

func docID(ns model.NamespacePath, key string) string {
	return url.PathEscape(ns.String()) + "|" + url.PathEscape(key)
}

func (r *Firestore) Put(ctx context.Context, ns model.NamespacePath, key, value string) error {
	doc := map[string]any{
		"namespace":  []string(ns),
		"ns":         ns.String(),
		"key":        key,
		"value":      value,
		"updated_at": firestore.ServerTimestamp,
	}

	if _, err := r.client.Collection(memoryCollection).Doc(docID(ns, key)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put memory record",
			goerr.V("namespace", ns.String()), goerr.V("key", key))
	}
	return nil
}

func (r *Firestore) Get(ctx context.Context, ns model.NamespacePath, key string) (*model.MemoryRecord, error) {
	snap, err := r.client.Collection(memoryCollection).Doc(docID(ns, key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get memory record",
			goerr.V("namespace", ns.String()), goerr.V("key", key))
	}

	return snapToRecord(snap)
}

func (r *Firestore) ListKeys(ctx context.Context, ns model.NamespacePath) (iter.Seq[string], error) {
	it := r.client.Collection(memoryCollection).
		Where("ns", "==", ns.String()).
		Documents(ctx)
	defer it.Stop()

	var keys []string
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list memory keys",
				goerr.V("namespace", ns.String()))
		}
		if key, err := snap.DataAt("key"); err == nil {
			if s, ok := key.(string); ok {
				keys = append(keys, s)
			}
		}
	}
	sort.Strings(keys)

	return func(yield func(string) bool) {
		for _, key := range keys {
			if !yield(key) {
				return
			}
		}
	}, nil
}

func (r *Firestore) Search(ctx context.Context, ns model.NamespacePath, query string) ([]*model.MemoryRecord, error) {
	// Range query selects the namespace subtree; segment alignment and
	// relevance are decided client-side.
	prefix := ns.String()
	it := r.client.Collection(memoryCollection).
		Where("ns", ">=", prefix).
		Where("ns", "<=", prefix+"\uf8ff").
		Documents(ctx)
	defer it.Stop()

	var matched []*model.MemoryRecord
	scores := make(map[*model.MemoryRecord]int)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search memory records",
				goerr.V("namespace", prefix), goerr.V("query", query))
		}

		record, err := snapToRecord(snap)
		if err != nil {
			return nil, err
		}
		if !inSubtree(record.Namespace.String(), prefix) {
			continue
		}
		score := relevance(record, query)
		if score == 0 {
			continue
		}
		matched = append(matched, record)
		scores[record] = score
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if scores[matched[i]] != scores[matched[j]] {
			return scores[matched[i]] > scores[matched[j]]
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	return matched, nil
}

func (r *Firestore) Delete(ctx context.Context, ns model.NamespacePath, key string) error {
	// Firestore deletes are idempotent; a missing document is not an error.
	if _, err := r.client.Collection(memoryCollection).Doc(docID(ns, key)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete memory record",
			goerr.V("namespace", ns.String()), goerr.V("key", key))
	}
	return nil
}

func snapToRecord(snap *firestore.DocumentSnapshot) (*model.MemoryRecord, error) {
	var doc struct {
		Namespace []string `firestore:"namespace"`
		Key       string   `firestore:"key"`
		Value     string   `firestore:"value"`
	}
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory record",
			goerr.V("doc_id", snap.Ref.ID))
	}

	record := &model.MemoryRecord{
		Namespace: model.NamespacePath(doc.Namespace),
		Key:       doc.Key,
		Value:     doc.Value,
		UpdatedAt: snap.UpdateTime,
	}
	return record, nil
}
