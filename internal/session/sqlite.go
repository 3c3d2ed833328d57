package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps sessions in a SQLite database (WAL mode). The full
// session document is stored as JSON next to the listing columns.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL DEFAULT '',
		scenario      TEXT NOT NULL DEFAULT '',
		user_role     TEXT NOT NULL DEFAULT '',
		agents        TEXT NOT NULL DEFAULT '[]',
		public_count  INTEGER NOT NULL DEFAULT 0,
		private_count INTEGER NOT NULL DEFAULT 0,
		document      TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		modified_at   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_modified ON sessions(modified_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, sess *Session) (string, error) {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if err := s.Save(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Save implements Store with an upsert.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	if err := checkID(sess.ID); err != nil {
		return persistErr("save", sess.ID, err)
	}

	sess.touch()
	doc, err := json.Marshal(sess)
	if err != nil {
		return persistErr("save", sess.ID, fmt.Errorf("marshal session: %w", err))
	}
	sum := sess.Summarize()
	agents, err := json.Marshal(sum.Agents)
	if err != nil {
		return persistErr("save", sess.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, scenario, user_role, agents, public_count, private_count, document, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, scenario=excluded.scenario, user_role=excluded.user_role,
			agents=excluded.agents, public_count=excluded.public_count, private_count=excluded.private_count,
			document=excluded.document, modified_at=excluded.modified_at`,
		sess.ID, sess.Title, sum.Scenario, sess.UserRole, string(agents),
		sum.PublicCount, sum.PrivateCount, string(doc),
		formatTime(sess.CreatedAt), formatTime(sess.ModifiedAt),
	)
	if err != nil {
		return persistErr("save", sess.ID, fmt.Errorf("upsert session: %w", err))
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE id=?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistErr("load", id, ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("load", id, fmt.Errorf("load session: %w", err))
	}

	var sess Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, persistErr("load", id, fmt.Errorf("decode session: %w", err))
	}
	return &sess, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return false, persistErr("delete", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("delete", id, err)
	}
	return n > 0, nil
}

// List implements Store; only the listing columns are read.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, scenario, user_role, agents, public_count, private_count, created_at, modified_at
		FROM sessions ORDER BY modified_at DESC`)
	if err != nil {
		return nil, persistErr("list", "", fmt.Errorf("list sessions: %w", err))
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var agents, created, modified string
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Scenario, &sum.UserRole, &agents,
			&sum.PublicCount, &sum.PrivateCount, &created, &modified); err != nil {
			return nil, persistErr("list", "", fmt.Errorf("scan session row: %w", err))
		}
		if err := json.Unmarshal([]byte(agents), &sum.Agents); err != nil {
			return nil, persistErr("list", sum.ID, fmt.Errorf("decode agents: %w", err))
		}
		sum.CreatedAt = parseTime(created)
		sum.ModifiedAt = parseTime(modified)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list", "", err)
	}
	return summaries, nil
}

// Rename implements Store.
func (s *SQLiteStore) Rename(ctx context.Context, id, title string) error {
	sess, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	sess.Title = strings.TrimSpace(title)
	return s.Save(ctx, sess)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
