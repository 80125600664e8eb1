package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/captify/captify/internal/services/platform/filter"
	"github.com/captify/captify/internal/services/platform/storage"
	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "platform.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func fixedClock(store *Store, at time.Time) {
	store.now = func() time.Time { return at }
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreateGetDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	fixedClock(store, now)

	created, err := store.Create(ctx, storage.Item{Table: "objects", Key: "slug-1", Payload: []byte(`{"name":"Old"}`)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := storage.Item{
		Table:     "objects",
		Key:       "slug-1",
		Payload:   []byte(`{"name":"Old"}`),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Fatalf("created mismatch (-want +got):\n%s", diff)
	}

	got, found, err := store.Get(ctx, "objects", "slug-1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("get mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.Create(ctx, storage.Item{Table: "objects", Key: "slug-1"}); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}

	deleted, err := store.Delete(ctx, "objects", "slug-1")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "objects", "slug-1")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestPutBumpsVersionAndKeepsCreatedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	first := time.Unix(1700000000, 0).UTC()
	fixedClock(store, first)

	if _, err := store.Put(ctx, storage.Item{Table: "users", Key: "u1", Payload: []byte(`{"id":"u1","name":"Ann"}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	later := first.Add(time.Minute)
	fixedClock(store, later)
	updated, err := store.Put(ctx, storage.Item{Table: "users", Key: "u1", Payload: []byte(`{"id":"u1","name":"Anna"}`)})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}
	if !updated.CreatedAt.Equal(first) || !updated.UpdatedAt.Equal(later) {
		t.Fatalf("timestamps = %s/%s", updated.CreatedAt, updated.UpdatedAt)
	}
}

func TestMutate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Mutate(ctx, "links", "missing", func(item storage.Item) (storage.Item, error) { return item, nil }); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("mutate missing err = %v, want ErrNotFound", err)
	}

	if _, err := store.Create(ctx, storage.Item{Table: "links", Key: "l1", Payload: []byte(`{"name":"a"}`)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	mutated, err := store.Mutate(ctx, "links", "l1", func(item storage.Item) (storage.Item, error) {
		item.Payload = []byte(`{"name":"b"}`)
		item.Key = "ignored"
		return item, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if mutated.Key != "l1" || mutated.Version != 2 || string(mutated.Payload) != `{"name":"b"}` {
		t.Fatalf("mutated = %+v", mutated)
	}

	boom := errors.New("rejected")
	if _, err := store.Mutate(ctx, "links", "l1", func(storage.Item) (storage.Item, error) { return storage.Item{}, boom }); !errors.Is(err, boom) {
		t.Fatalf("mutate err = %v, want %v", err, boom)
	}
	got, _, err := store.Get(ctx, "links", "l1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("version after failed mutate = %d, want 2", got.Version)
	}
}

func TestQueryOrderingFilterAndLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, item := range []storage.Item{
		{Table: "applications", Key: "c", OwnerID: "u1", Payload: []byte(`{"id":"c","name":"Gamma","package":"core"}`)},
		{Table: "applications", Key: "a", OwnerID: "u2", Payload: []byte(`{"id":"a","name":"Alpha","package":"ops"}`)},
		{Table: "applications", Key: "b", OwnerID: "u1", Payload: []byte(`{"id":"b","name":"Beta","package":"core"}`)},
		{Table: "users", Key: "x", Payload: []byte(`{"id":"x"}`)},
	} {
		if _, err := store.Put(ctx, item); err != nil {
			t.Fatalf("put %s: %v", item.Key, err)
		}
	}

	keys := func(items []storage.Item) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.Key)
		}
		return out
	}

	all, err := store.Query(ctx, storage.Query{Table: "applications"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, keys(all)); diff != "" {
		t.Fatalf("insertion order mismatch (-want +got):\n%s", diff)
	}

	byKey, err := store.Query(ctx, storage.Query{Table: "applications", OrderBy: "key desc", Limit: 2})
	if err != nil {
		t.Fatalf("query ordered: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b"}, keys(byKey)); diff != "" {
		t.Fatalf("ordered mismatch (-want +got):\n%s", diff)
	}

	where, err := filter.Parse(`package = "core" AND owner_id = "u1"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	filtered, err := store.Query(ctx, storage.Query{Table: "applications", Where: where})
	if err != nil {
		t.Fatalf("query filtered: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b"}, keys(filtered)); diff != "" {
		t.Fatalf("filtered mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.Query(ctx, storage.Query{Table: "applications", OrderBy: "payload_json"}); err == nil {
		t.Fatal("expected error for unsupported order")
	}
}

func TestValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "", "k"); err == nil {
		t.Fatal("expected error for empty table")
	}
	if _, err := store.Put(ctx, storage.Item{Table: "t"}); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := store.Query(ctx, storage.Query{}); err == nil {
		t.Fatal("expected error for empty query table")
	}
}
