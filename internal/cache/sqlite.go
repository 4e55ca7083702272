package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite is the on-disk cache variant. Each entry persists as one row,
// so cached replies survive restarts. Writes are per-entry, not
// transactional across entries. Every storage error is logged and
// degrades to a miss or a no-op so the dispatch pipeline never sees it.
type SQLite struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLite opens (creating if needed) the cache database at path.
// ":memory:" is accepted for tests.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS entries (
key TEXT PRIMARY KEY,
value TEXT NOT NULL,
expires_at TIMESTAMP NOT NULL,
created_at TIMESTAMP NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

// Get implements Cache. A row found expired is deleted on the spot.
func (s *SQLite) Get(key string) (string, bool) {
	var row struct {
		Value     string    `db:"value"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := s.db.Get(&row, `SELECT value, expires_at FROM entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss",
			slog.String("key", shortKey(key)), slog.String("error", err.Error()))
		return "", false
	}
	if !s.now().Before(row.ExpiresAt) {
		if _, err := s.db.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
			s.logger.Warn("expired entry eviction failed", slog.String("error", err.Error()))
		}
		return "", false
	}
	return row.Value, true
}

// Put implements Cache.
func (s *SQLite) Put(key, value string, ttl time.Duration) {
	now := s.now()
	_, err := s.db.Exec(
		`INSERT INTO entries (key, value, expires_at, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		key, value, now.Add(ttl), now)
	if err != nil {
		s.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
}

// Sweep implements Cache.
func (s *SQLite) Sweep() int {
	res, err := s.db.Exec(`DELETE FROM entries WHERE expires_at <= ?`, s.now())
	if err != nil {
		s.logger.Warn("cache sweep failed", slog.String("error", err.Error()))
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

// Clear implements Cache.
func (s *SQLite) Clear() int {
	res, err := s.db.Exec(`DELETE FROM entries`)
	if err != nil {
		s.logger.Warn("cache clear failed", slog.String("error", err.Error()))
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

// Stats implements Cache.
func (s *SQLite) Stats() Stats {
	var st Stats
	now := s.now()
	if err := s.db.Get(&st.Valid, `SELECT COUNT(*) FROM entries WHERE expires_at > ?`, now); err != nil {
		s.logger.Warn("cache stats failed", slog.String("error", err.Error()))
		return Stats{}
	}
	if err := s.db.Get(&st.Expired, `SELECT COUNT(*) FROM entries WHERE expires_at <= ?`, now); err != nil {
		s.logger.Warn("cache stats failed", slog.String("error", err.Error()))
		return Stats{}
	}
	return st
}

// Close implements Cache.
func (s *SQLite) Close() error { return s.db.Close() }

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

var _ Cache = (*SQLite)(nil)
