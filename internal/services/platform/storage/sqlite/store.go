// Package sqlite provides the platform item store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/captify/captify/internal/platform/storage/sqlitemigrate"
	"github.com/captify/captify/internal/services/platform/storage"
	"github.com/captify/captify/internal/services/platform/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const itemColumns = `table_name, item_key, owner_id, payload_json, version, created_at, updated_at`

var orderColumns = map[string]string{
	"":           "seq",
	"seq":        "seq",
	"key":        "item_key",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"version":    "version",
}

// Store provides SQLite-backed item persistence.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens and migrates the item store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps read-modify-write transactions free of SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get loads one item.
func (s *Store) Get(ctx context.Context, table, key string) (storage.Item, bool, error) {
	if err := s.check(table, key); err != nil {
		return storage.Item{}, false, err
	}
	item, err := scanItem(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE table_name = ? AND item_key = ?`,
		table, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Item{}, false, nil
	}
	if err != nil {
		return storage.Item{}, false, fmt.Errorf("get item: %w", err)
	}
	return item, true, nil
}

// Create inserts a new item at version 1.
func (s *Store) Create(ctx context.Context, item storage.Item) (storage.Item, error) {
	if err := s.check(item.Table, item.Key); err != nil {
		return storage.Item{}, err
	}
	var created storage.Item
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, found, err := getTx(ctx, tx, item.Table, item.Key)
		if err != nil {
			return err
		}
		if found {
			return storage.ErrAlreadyExists
		}
		now := s.now().UTC().Truncate(time.Millisecond)
		item.Version = 1
		item.CreatedAt = now
		item.UpdatedAt = now
		created = item
		return insertTx(ctx, tx, item)
	})
	if err != nil {
		return storage.Item{}, err
	}
	return created, nil
}

// Put inserts or replaces an item. Replacing keeps the creation time and the
// list position and bumps the version.
func (s *Store) Put(ctx context.Context, item storage.Item) (storage.Item, error) {
	if err := s.check(item.Table, item.Key); err != nil {
		return storage.Item{}, err
	}
	var stored storage.Item
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, found, err := getTx(ctx, tx, item.Table, item.Key)
		if err != nil {
			return err
		}
		now := s.now().UTC().Truncate(time.Millisecond)
		item.UpdatedAt = now
		if !found {
			item.Version = 1
			item.CreatedAt = now
			stored = item
			return insertTx(ctx, tx, item)
		}
		item.Version = current.Version + 1
		item.CreatedAt = current.CreatedAt
		stored = item
		return updateTx(ctx, tx, item)
	})
	if err != nil {
		return storage.Item{}, err
	}
	return stored, nil
}

// Mutate applies fn to an existing item inside one transaction.
func (s *Store) Mutate(ctx context.Context, table, key string, fn storage.MutateFunc) (storage.Item, error) {
	if err := s.check(table, key); err != nil {
		return storage.Item{}, err
	}
	if fn == nil {
		return storage.Item{}, fmt.Errorf("mutate function is required")
	}
	var stored storage.Item
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, found, err := getTx(ctx, tx, table, key)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		next.Table = current.Table
		next.Key = current.Key
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		stored = next
		return updateTx(ctx, tx, next)
	})
	if err != nil {
		return storage.Item{}, err
	}
	return stored, nil
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, table, key string) (bool, error) {
	if err := s.check(table, key); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM items WHERE table_name = ? AND item_key = ?`, table, key)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	return affected > 0, nil
}

// Query lists items of one table in list order unless q.OrderBy says
// otherwise. A zero limit returns every match.
func (s *Store) Query(ctx context.Context, q storage.Query) ([]storage.Item, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(q.Table) == "" {
		return nil, fmt.Errorf("table is required")
	}
	order, err := orderClause(q.OrderBy)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE table_name = ?`
	args := []any{q.Table}
	if !q.Where.Empty() {
		query += ` AND ` + q.Where.Clause
		args = append(args, q.Where.Params...)
	}
	query += ` ORDER BY ` + order
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	items := make([]storage.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *Store) check(table, key string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("table is required")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("item key is required")
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func orderClause(orderBy string) (string, error) {
	field := strings.ToLower(strings.TrimSpace(orderBy))
	direction := "ASC"
	if trimmed, ok := strings.CutSuffix(field, " desc"); ok {
		field = strings.TrimSpace(trimmed)
		direction = "DESC"
	}
	column, ok := orderColumns[field]
	if !ok {
		return "", fmt.Errorf("unsupported order by: %s", orderBy)
	}
	return column + " " + direction + ", seq " + direction, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (storage.Item, error) {
	var item storage.Item
	var createdAt, updatedAt int64
	if err := row.Scan(
		&item.Table,
		&item.Key,
		&item.OwnerID,
		&item.Payload,
		&item.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Item{}, err
	}
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return item, nil
}

func getTx(ctx context.Context, tx *sql.Tx, table, key string) (storage.Item, bool, error) {
	item, err := scanItem(tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE table_name = ? AND item_key = ?`,
		table, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Item{}, false, nil
	}
	if err != nil {
		return storage.Item{}, false, fmt.Errorf("get item: %w", err)
	}
	return item, true, nil
}

func insertTx(ctx context.Context, tx *sql.Tx, item storage.Item) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM items WHERE table_name = ?))`,
		item.Table,
		item.Key,
		item.OwnerID,
		payloadText(item.Payload),
		item.Version,
		item.CreatedAt.UnixMilli(),
		item.UpdatedAt.UnixMilli(),
		item.Table,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func updateTx(ctx context.Context, tx *sql.Tx, item storage.Item) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE items
		 SET owner_id = ?, payload_json = ?, version = ?, updated_at = ?
		 WHERE table_name = ? AND item_key = ?`,
		item.OwnerID,
		payloadText(item.Payload),
		item.Version,
		item.UpdatedAt.UnixMilli(),
		item.Table,
		item.Key,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// payloadText binds payloads as TEXT so json_extract can read them.
func payloadText(payload []byte) string {
	if len(payload) == 0 {
		return "{}"
	}
	return string(payload)
}

var _ storage.Store = (*Store)(nil)
