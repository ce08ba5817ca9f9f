package repository_test

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	return repo
}

// testUser returns a unique user ID so runs against a shared database do
// not observe each other's records.
func testUser() string {
	return "test-" + uuid.NewString()
}

func TestFirestorePutGet(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	ns := model.UserScope(testUser())

	gt.NoError(t, repo.Put(ctx, ns, "timezone", "Asia/Tokyo"))

	record, err := repo.Get(ctx, ns, "timezone")
	gt.NoError(t, err)
	gt.NotNil(t, record)
	gt.Equal(t, record.Key, "timezone")
	gt.Equal(t, record.Value, "Asia/Tokyo")
	gt.True(t, record.Namespace.Equal(ns))
}

func TestFirestoreOverwrite(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	ns := model.UserScope(testUser())

	gt.NoError(t, repo.Put(ctx, ns, "status", "On track"))
	gt.NoError(t, repo.Put(ctx, ns, "status", "Blocked"))

	record, err := repo.Get(ctx, ns, "status")
	gt.NoError(t, err)
	gt.NotNil(t, record)
	gt.Equal(t, record.Value, "Blocked")
}

func TestFirestoreGetAbsent(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	record, err := repo.Get(ctx, model.UserScope(testUser()), "never-written")
	gt.NoError(t, err)
	gt.V(t, record).Nil()
}

func TestFirestoreDeleteIdempotent(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	ns := model.UserScope(testUser())

	gt.NoError(t, repo.Put(ctx, ns, "doomed", "value"))
	gt.NoError(t, repo.Delete(ctx, ns, "doomed"))

	record, err := repo.Get(ctx, ns, "doomed")
	gt.NoError(t, err)
	gt.V(t, record).Nil()

	// Deleting again is not an error.
	gt.NoError(t, repo.Delete(ctx, ns, "doomed"))
}

func TestFirestoreListKeys(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	user := testUser()
	ns := model.PreferenceScope(user)

	for _, key := range []string{"zebra", "apple", "mango"} {
		gt.NoError(t, repo.Put(ctx, ns, key, "v"))
	}
	// A sibling namespace must not leak into the listing.
	gt.NoError(t, repo.Put(ctx, model.UserScope(user), "apple", "v"))

	seq, err := repo.ListKeys(ctx, ns)
	gt.NoError(t, err)
	keys := slices.Collect(seq)
	gt.Equal(t, keys, []string{"apple", "mango", "zebra"})
}

func TestFirestoreSearchSubtree(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	user := testUser()

	gt.NoError(t, repo.Put(ctx, model.UserScope(user), "project", "apollo launch review"))
	gt.NoError(t, repo.Put(ctx, model.PreferenceScope(user), "digest", "apollo weekly digest"))
	gt.NoError(t, repo.Put(ctx, model.UserScope(testUser()), "project", "apollo launch review"))

	results, err := repo.Search(ctx, model.UserScope(user), "apollo")
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	for _, r := range results {
		gt.S(t, r.Namespace.String()).Contains(model.UserScope(user).String())
	}
}

func TestFirestoreSearchNoMatch(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	ns := model.UserScope(testUser())

	gt.NoError(t, repo.Put(ctx, ns, "note", "retro scheduled for friday"))

	results, err := repo.Search(ctx, ns, "nonexistent-term")
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}
