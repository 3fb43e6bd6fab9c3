package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Keys of the persisted state blobs
const (
	KeyCurrencyManager = "currency_manager"
	KeyTransactions    = "transaction_state"
	KeyTokenRegistry   = "token_registry"
)

// ErrTooLarge is returned when a blob exceeds the bound of its key
var ErrTooLarge = errors.New("blob exceeds size bound")

// BlobStore keeps opaque state blobs in SQLite, one row per key.
// Keys with a limit reject larger blobs; keys without one are unbounded.
type BlobStore struct {
	db     *sql.DB
	limits map[string]int
	now    func() time.Time
}

// NewBlobStore opens (or creates) the database at dbPath with WAL mode enabled
func NewBlobStore(dbPath string, limits map[string]int) (*BlobStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blobs table: %w", err)
	}

	copied := make(map[string]int, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	return &BlobStore{db: db, limits: copied, now: time.Now}, nil
}

// Close closes the database
func (s *BlobStore) Close() error {
	return s.db.Close()
}

func (s *BlobStore) check(key string, value []byte) error {
	if limit, ok := s.limits[key]; ok && len(value) > limit {
		return fmt.Errorf("%s is %d bytes, limit %d: %w", key, len(value), limit, ErrTooLarge)
	}
	return nil
}

// Save stores value under key, replacing the previous blob
func (s *BlobStore) Save(ctx context.Context, key string, value []byte) error {
	return s.SaveAll(ctx, map[string][]byte{key: value})
}

// SaveAll stores every blob in one transaction; nothing is written if any blob is too large
func (s *BlobStore) SaveAll(ctx context.Context, blobs map[string][]byte) error {
	keys := make([]string, 0, len(blobs))
	for key, value := range blobs {
		if err := s.check(key, value); err != nil {
			return err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := s.now().UnixNano()
	for _, key := range keys {
		value := blobs[key]
		if value == nil {
			value = []byte{}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
			key, value, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit blobs: %w", err)
	}
	return nil
}

// Load returns the blob stored under key, or nil if there is none
func (s *BlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM blobs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, nil
}

// UpdatedAt returns when key was last saved
func (s *BlobStore) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, "SELECT updated_at FROM blobs WHERE key = ?", key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load %s timestamp: %w", key, err)
	}
	return time.Unix(0, ts), true, nil
}
