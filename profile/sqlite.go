package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/opsagent/memorymesh/core"
)

// SQLiteStore is a durable core.ProfileStore keeping one JSON-serialized
// record per user. Merges run read-modify-write inside a transaction, so a
// failed write never replaces the stored record.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.ProfileStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a profile database at the given path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing handle (shared with the session
// store when both live in one database file).
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id    TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get implements core.ProfileStore.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*core.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, userID)
	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewUserProfile(userID), nil
	}
	if err != nil {
		return nil, &core.StorageError{Op: "profile.get", Err: err}
	}
	var p core.UserProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, &core.StorageError{Op: "profile.get", Err: err}
	}
	return &p, nil
}

// Merge implements core.ProfileStore. The record is replaced atomically; on
// any failure the previous record stays intact.
func (s *SQLiteStore) Merge(ctx context.Context, userID string, update core.ProfileUpdate) (*core.UserProfile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &core.StorageError{Op: "profile.merge", Err: err}
	}
	defer tx.Rollback()

	p := core.NewUserProfile(userID)
	row := tx.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, userID)
	var data string
	switch err := row.Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
		// First contact: merge into the fresh empty profile.
	case err != nil:
		return nil, &core.StorageError{Op: "profile.merge", Err: err}
	default:
		if err := json.Unmarshal([]byte(data), p); err != nil {
			return nil, &core.StorageError{Op: "profile.merge", Err: err}
		}
	}

	p.Merge(update)
	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, &core.StorageError{Op: "profile.merge", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(encoded), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, &core.StorageError{Op: "profile.merge", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &core.StorageError{Op: "profile.merge", Err: err}
	}
	return p, nil
}

// Reset implements core.ProfileStore.
func (s *SQLiteStore) Reset(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID); err != nil {
		return &core.StorageError{Op: "profile.reset", Err: err}
	}
	return nil
}
