// Package journal records every outbound progress notification, sent or
// failed, so operators can replay what a client was told about a request.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Record is a single progress notification as it left the server.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	Progress  float64   `json:"progress"`
	Total     *float64  `json:"total,omitempty"`
	SentAt    time.Time `json:"sent_at"`
	Error     string    `json:"error,omitempty"`
}

// Storage interface for different storage backends
type Storage interface {
	Append(ctx context.Context, record Record) error
	ListByToken(ctx context.Context, token string) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	CleanupOldRecords(ctx context.Context, maxAge time.Duration) (int64, error)
	Close() error
	IsEnabled() bool
}

// NoOpStorage is used when the journal is disabled.
type NoOpStorage struct{}

func (NoOpStorage) Append(context.Context, Record) error { return nil }

func (NoOpStorage) ListByToken(context.Context, string) ([]Record, error) { return nil, nil }

func (NoOpStorage) Recent(context.Context, int) ([]Record, error) { return nil, nil }

func (NoOpStorage) CleanupOldRecords(context.Context, time.Duration) (int64, error) { return 0, nil }

func (NoOpStorage) Close() error { return nil }

func (NoOpStorage) IsEnabled() bool { return false }

// SQLiteStorage keeps the journal in a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	insert *sql.Stmt
}

// NewSQLiteStorage opens (and creates if needed) the journal at dbPath.
// ":memory:" gives a private in-memory journal.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every pooled connection to :memory: would be a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s.insert, err = db.Prepare(`
	INSERT INTO notifications (id, session_id, token, progress, total, sent_at, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		token TEXT NOT NULL,
		progress REAL NOT NULL,
		total REAL,
		sent_at DATETIME NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_token ON notifications(token);
	CREATE INDEX IF NOT EXISTS idx_notifications_sent_at ON notifications(sent_at);`

	_, err := s.db.Exec(query)
	return err
}

// Append stores a record.
func (s *SQLiteStorage) Append(ctx context.Context, r Record) error {
	var total sql.NullFloat64
	if r.Total != nil {
		total = sql.NullFloat64{Float64: *r.Total, Valid: true}
	}
	_, err := s.insert.ExecContext(ctx, r.ID, r.SessionID, r.Token, r.Progress, total, r.SentAt.UTC(), r.Error)
	return err
}

// ListByToken returns the records of one token in the order they were sent.
func (s *SQLiteStorage) ListByToken(ctx context.Context, token string) ([]Record, error) {
	return s.query(ctx, `
	SELECT id, session_id, token, progress, total, sent_at, error
	FROM notifications WHERE token = ? ORDER BY sent_at ASC, rowid ASC`, token)
}

// Recent returns the newest records first.
func (s *SQLiteStorage) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
	SELECT id, session_id, token, progress, total, sent_at, error
	FROM notifications ORDER BY sent_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *SQLiteStorage) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to close rows")
		}
	}()

	var records []Record
	for rows.Next() {
		var (
			r     Record
			total sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Token, &r.Progress, &total, &r.SentAt, &r.Error); err != nil {
			return nil, err
		}
		if total.Valid {
			v := total.Float64
			r.Total = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CleanupOldRecords deletes records older than maxAge and reports how many went.
func (s *SQLiteStorage) CleanupOldRecords(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	result, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE sent_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close releases the prepared statement and the database.
func (s *SQLiteStorage) Close() error {
	var result *multierror.Error
	if s.insert != nil {
		if err := s.insert.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close insert statement: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close database %s: %w", s.dbPath, err))
	}
	return result.ErrorOrNil()
}

func (s *SQLiteStorage) IsEnabled() bool {
	return true
}

// NewStorage returns a SQLite journal at path, or a no-op one when disabled.
func NewStorage(enabled bool, path string) (Storage, error) {
	if !enabled {
		return NoOpStorage{}, nil
	}
	return NewSQLiteStorage(path)
}

var (
	_ Storage = NoOpStorage{}
	_ Storage = (*SQLiteStorage)(nil)
)
