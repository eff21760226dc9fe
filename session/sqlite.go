package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/opsagent/memorymesh/core"
)

// SQLiteStore is a durable core.SessionStore on modernc.org/sqlite (pure Go,
// no cgo). Every mutation runs in a transaction so a failed write never
// leaves a partially updated session.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.SessionStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a session database at the given path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
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

// NewSQLiteStoreFromDB wraps an existing handle (shared with the profile
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
	CREATE TABLE IF NOT EXISTS sessions (
		session_id  TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		summary     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		session_id  TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create implements core.SessionStore.
func (s *SQLiteStore) Create(ctx context.Context, userID string) (*core.Session, error) {
	sess := core.NewSession(uuid.NewString(), userID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, title, summary, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		sess.ID, userID, sess.Title, fmtTime(sess.CreatedAt), fmtTime(sess.UpdatedAt))
	if err != nil {
		return nil, &core.StorageError{Op: "session.create", Err: err}
	}
	return sess, nil
}

// Get implements core.SessionStore.
func (s *SQLiteStore) Get(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, title, summary, created_at, updated_at FROM sessions WHERE session_id = ? AND user_id = ?`,
		sessionID, userID)

	var sess core.Session
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Summary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	if err != nil {
		return nil, &core.StorageError{Op: "session.get", Err: err}
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, &core.StorageError{Op: "session.get", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var role, content, ts string
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, &core.StorageError{Op: "session.get", Err: err}
		}
		sess.Messages = append(sess.Messages, core.Message{Role: core.Role(role), Content: content, Timestamp: parseTime(ts)})
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "session.get", Err: err}
	}
	if sess.Messages == nil {
		sess.Messages = []core.Message{}
	}
	return &sess, nil
}

// Append implements core.SessionStore.
func (s *SQLiteStore) Append(ctx context.Context, userID, sessionID string, msg core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: "session.append", Err: err}
	}
	defer tx.Rollback()

	var title string
	var count int
	row := tx.QueryRowContext(ctx,
		`SELECT s.title, (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id)
		 FROM sessions s WHERE s.session_id = ? AND s.user_id = ?`, sessionID, userID)
	if err := row.Scan(&title, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Kind: "session", ID: sessionID}
		}
		return &core.StorageError{Op: "session.append", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, count, string(msg.Role), msg.Content, fmtTime(msg.Timestamp)); err != nil {
		return &core.StorageError{Op: "session.append", Err: err}
	}

	if msg.Role == core.RoleUser && title == "New session" {
		title = core.DeriveTitle(msg.Content)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE session_id = ?`,
		title, fmtTime(time.Now()), sessionID); err != nil {
		return &core.StorageError{Op: "session.append", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &core.StorageError{Op: "session.append", Err: err}
	}
	return nil
}

// SetSummary implements core.SessionStore.
func (s *SQLiteStore) SetSummary(ctx context.Context, userID, sessionID, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET summary = ?, updated_at = ? WHERE session_id = ? AND user_id = ?`,
		summary, fmtTime(time.Now()), sessionID, userID)
	if err != nil {
		return &core.StorageError{Op: "session.set_summary", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	return nil
}

// List implements core.SessionStore.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]core.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.title, s.summary != '',
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id),
		        s.created_at
		 FROM sessions s WHERE s.user_id = ? ORDER BY s.created_at`, userID)
	if err != nil {
		return nil, &core.StorageError{Op: "session.list", Err: err}
	}
	defer rows.Close()

	infos := []core.SessionInfo{}
	for rows.Next() {
		var info core.SessionInfo
		var createdAt string
		if err := rows.Scan(&info.SessionID, &info.Title, &info.HasSummary, &info.MessageCount, &createdAt); err != nil {
			return nil, &core.StorageError{Op: "session.list", Err: err}
		}
		info.CreatedAt = parseTime(createdAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "session.list", Err: err}
	}
	return infos, nil
}

// PreviousSummary implements core.SessionStore.
func (s *SQLiteStore) PreviousSummary(ctx context.Context, userID, excludeSessionID string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT summary FROM sessions
		 WHERE user_id = ? AND session_id != ? AND summary != ''
		 ORDER BY updated_at DESC LIMIT 1`, userID, excludeSessionID)
	var summary string
	err := row.Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &core.StorageError{Op: "session.previous_summary", Err: err}
	}
	return summary, nil
}

// Delete implements core.SessionStore.
func (s *SQLiteStore) Delete(ctx context.Context, userID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return &core.StorageError{Op: "session.delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	return nil
}

// DeleteAll implements core.SessionStore.
func (s *SQLiteStore) DeleteAll(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return &core.StorageError{Op: "session.delete_all", Err: err}
	}
	return nil
}

// timeLayout is fixed-width so lexicographic ORDER BY matches time order
// (RFC3339Nano trims trailing zeros and would not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
