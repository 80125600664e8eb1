package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	webstorage "github.com/captify/captify/internal/services/web/storage"
	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "web-sessions.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	_, path := openTestStore(t)

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	assertTableExists(t, sqlDB, "cache_entries")
	assertTableExists(t, sqlDB, "web_sessions")
	assertTableExists(t, sqlDB, "schema_migrations")
}

func TestOpenIsRepeatable(t *testing.T) {
	store, path := openTestStore(t)
	_ = store

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := again.Close(); err != nil {
		t.Fatalf("close reopened store: %v", err)
	}
}

func TestCacheEntryRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	refreshedAt := time.Unix(1700000000, 0).UTC()
	want := webstorage.CacheEntry{
		CacheKey:     "sess-1/captify-cache",
		Scope:        "sess-1",
		UserID:       "user-1",
		PayloadBytes: []byte(`{"userId":"user-1"}`),
		RefreshedAt:  refreshedAt,
		ExpiresAt:    refreshedAt.Add(time.Hour),
	}
	if err := store.PutCacheEntry(ctx, want); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}

	got, found, err := store.GetCacheEntry(ctx, want.CacheKey)
	if err != nil {
		t.Fatalf("get cache entry: %v", err)
	}
	if !found {
		t.Fatal("expected cache entry")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}

	want.PayloadBytes = []byte(`{"userId":"user-1","users":[]}`)
	if err := store.PutCacheEntry(ctx, want); err != nil {
		t.Fatalf("upsert cache entry: %v", err)
	}
	got, _, err = store.GetCacheEntry(ctx, want.CacheKey)
	if err != nil {
		t.Fatalf("get upserted entry: %v", err)
	}
	if string(got.PayloadBytes) != string(want.PayloadBytes) {
		t.Fatalf("payload = %s, want %s", got.PayloadBytes, want.PayloadBytes)
	}

	if err := store.DeleteCacheEntry(ctx, want.CacheKey); err != nil {
		t.Fatalf("delete cache entry: %v", err)
	}
	if _, found, err := store.GetCacheEntry(ctx, want.CacheKey); err != nil {
		t.Fatalf("get after delete: %v", err)
	} else if found {
		t.Fatal("expected entry to be deleted")
	}
}

func TestPutCacheEntryValidates(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	cases := []webstorage.CacheEntry{
		{Scope: "s", PayloadBytes: []byte("x")},
		{CacheKey: "k", PayloadBytes: []byte("x")},
		{CacheKey: "k", Scope: "s"},
	}
	for i, entry := range cases {
		if err := store.PutCacheEntry(ctx, entry); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestDeleteScopeAndExpiredEntries(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	put := func(key, scope string, expiresAt time.Time) {
		t.Helper()
		if err := store.PutCacheEntry(ctx, webstorage.CacheEntry{
			CacheKey:     key,
			Scope:        scope,
			PayloadBytes: []byte("{}"),
			RefreshedAt:  now,
			ExpiresAt:    expiresAt,
		}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	put("a/1", "a", now.Add(-time.Minute))
	put("a/2", "a", time.Time{})
	put("b/1", "b", now.Add(time.Minute))
	put("c/1", "c", now.Add(-time.Second))

	removed, err := store.DeleteExpiredEntries(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	assertFound(t, store, "a/2", true)
	assertFound(t, store, "b/1", true)
	assertFound(t, store, "a/1", false)

	if err := store.DeleteScope(ctx, "a"); err != nil {
		t.Fatalf("delete scope: %v", err)
	}
	assertFound(t, store, "a/2", false)
	assertFound(t, store, "b/1", true)
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	expiresAt := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	if err := store.SaveSession(ctx, webstorage.SessionRecord{ID: "sess-1", UserID: "user-1", ExpiresAt: expiresAt}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	record, found, err := store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !found {
		t.Fatal("expected session row")
	}
	if record.UserID != "user-1" {
		t.Fatalf("user id = %q, want %q", record.UserID, "user-1")
	}
	if !record.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expiresAt = %s, want %s", record.ExpiresAt, expiresAt)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	if err := store.PutCacheEntry(ctx, webstorage.CacheEntry{CacheKey: "sess-1/captify-cache", Scope: "sess-1", PayloadBytes: []byte("{}")}); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}
	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, found, err := store.LoadSession(ctx, "sess-1"); err != nil {
		t.Fatalf("load session after delete: %v", err)
	} else if found {
		t.Fatal("expected missing session after delete")
	}
	assertFound(t, store, "sess-1/captify-cache", false)
}

func TestSessionPersistencePrunesExpiredSessionsOnSave(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, webstorage.SessionRecord{ID: "expired", UserID: "user-1", ExpiresAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("save expired session: %v", err)
	}
	if err := store.PutCacheEntry(ctx, webstorage.CacheEntry{CacheKey: "expired/captify-cache", Scope: "expired", PayloadBytes: []byte("{}")}); err != nil {
		t.Fatalf("put cache entry: %v", err)
	}
	if err := store.SaveSession(ctx, webstorage.SessionRecord{ID: "fresh", UserID: "user-2", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("save fresh session: %v", err)
	}

	if _, found, err := store.LoadSession(ctx, "expired"); err != nil {
		t.Fatalf("load expired session: %v", err)
	} else if found {
		t.Fatal("expected expired session to be pruned")
	}
	assertFound(t, store, "expired/captify-cache", false)
}

func TestSessionPersistenceKeepsCreatedAtOnUpdate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	first := time.Unix(1700000000, 0).UTC()
	store.now = func() time.Time { return first }
	if err := store.SaveSession(ctx, webstorage.SessionRecord{ID: "sess-1", UserID: "user-1", ExpiresAt: first.Add(time.Hour)}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	store.now = func() time.Time { return first.Add(time.Minute) }
	if err := store.SaveSession(ctx, webstorage.SessionRecord{ID: "sess-1", UserID: "user-1", ExpiresAt: first.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	record, found, err := store.LoadSession(ctx, "sess-1")
	if err != nil || !found {
		t.Fatalf("load session: found=%v err=%v", found, err)
	}
	if !record.CreatedAt.Equal(first) {
		t.Fatalf("created_at = %s, want %s", record.CreatedAt, first)
	}
	if !record.ExpiresAt.Equal(first.Add(2 * time.Hour)) {
		t.Fatalf("expires_at = %s, want %s", record.ExpiresAt, first.Add(2*time.Hour))
	}
}

func TestNilStoreReportsNotConfigured(t *testing.T) {
	var store *Store
	if _, _, err := store.GetCacheEntry(context.Background(), "k"); err == nil {
		t.Fatal("expected error from nil store")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func assertFound(t *testing.T, store *Store, key string, want bool) {
	t.Helper()
	_, found, err := store.GetCacheEntry(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	if found != want {
		t.Fatalf("found %s = %v, want %v", key, found, want)
	}
}

func assertTableExists(t *testing.T, sqlDB *sql.DB, tableName string) {
	t.Helper()

	row := sqlDB.QueryRowContext(context.Background(), `
SELECT COUNT(*)
FROM sqlite_master
WHERE type = 'table' AND name = ?;
`, tableName)
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan sqlite_master for %q: %v", tableName, err)
	}
	if count != 1 {
		t.Fatalf("table %q count = %d, want 1", tableName, count)
	}
}
