package metrics

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const recordBuffer = 256

// SQLiteRecorder persists samples to a local database. Record hands
// the sample to a buffered channel; a single goroutine writes rows.
// When the buffer is full the sample is dropped and counted instead of
// blocking a dispatch.
type SQLiteRecorder struct {
	db      *sqlx.DB
	logger  *slog.Logger
	samples chan Sample
	dropped atomic.Int64

	// closeMu orders Record's channel send against Close's close of
	// the samples channel; a late Record is dropped, never a panic.
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewSQLiteRecorder opens (creating if needed) the usage database.
func NewSQLiteRecorder(path string, logger *slog.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS dispatches (
id TEXT PRIMARY KEY,
event_kind TEXT NOT NULL,
outcome TEXT NOT NULL,
cache_status TEXT NOT NULL,
persona TEXT,
dry_run INTEGER NOT NULL DEFAULT 0,
context_gather_ns INTEGER NOT NULL DEFAULT 0,
provider_call_ns INTEGER NOT NULL DEFAULT 0,
output_ns INTEGER NOT NULL DEFAULT 0,
prompt_tokens INTEGER NOT NULL DEFAULT 0,
completion_tokens INTEGER NOT NULL DEFAULT 0,
created_at TIMESTAMP NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize metrics schema: %w", err)
	}

	r := &SQLiteRecorder{
		db:      db,
		logger:  logger,
		samples: make(chan Sample, recordBuffer),
		done:    make(chan struct{}),
	}
	go r.writeLoop()
	return r, nil
}

// Record implements Recorder.
func (r *SQLiteRecorder) Record(s Sample) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.samples <- s:
	default:
		r.dropped.Add(1)
	}
}

func (r *SQLiteRecorder) writeLoop() {
	defer close(r.done)
	for s := range r.samples {
		r.write(s)
	}
}

func (r *SQLiteRecorder) write(s Sample) {
	dryRun := 0
	if s.DryRun {
		dryRun = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO dispatches
(id, event_kind, outcome, cache_status, persona, dry_run, context_gather_ns, provider_call_ns, output_ns, prompt_tokens, completion_tokens, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.EventKind, string(s.Outcome), string(s.CacheStatus), s.Persona, dryRun,
		s.ContextGather.Nanoseconds(), s.ProviderCall.Nanoseconds(), s.Output.Nanoseconds(),
		s.PromptTokens, s.CompletionTokens, s.CreatedAt)
	if err != nil {
		r.logger.Warn("metrics write failed", slog.String("error", err.Error()))
	}
}

// Summary aggregates all recorded dispatches.
func (r *SQLiteRecorder) Summary() (Summary, error) {
	var row struct {
		Total        int             `db:"total"`
		Succeeded    int             `db:"succeeded"`
		Failed       int             `db:"failed"`
		CacheHits    int             `db:"cache_hits"`
		CacheMisses  int             `db:"cache_misses"`
		PromptTokens int             `db:"prompt_tokens"`
		AvgProvider  sql.NullFloat64 `db:"avg_provider_ns"`
	}
	err := r.db.Get(&row, `SELECT
COUNT(*) AS total,
COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0) AS succeeded,
COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
COALESCE(SUM(CASE WHEN cache_status = 'hit' THEN 1 ELSE 0 END), 0) AS cache_hits,
COALESCE(SUM(CASE WHEN cache_status = 'miss' THEN 1 ELSE 0 END), 0) AS cache_misses,
COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
AVG(CASE WHEN provider_call_ns > 0 THEN provider_call_ns END) AS avg_provider_ns
FROM dispatches`)
	if err != nil {
		return Summary{}, fmt.Errorf("aggregate dispatches: %w", err)
	}

	sum := Summary{
		Total:          row.Total,
		Succeeded:      row.Succeeded,
		Failed:         row.Failed,
		CacheHits:      row.CacheHits,
		CacheMisses:    row.CacheMisses,
		PromptTokens:   row.PromptTokens,
		DroppedSamples: r.dropped.Load(),
	}
	if row.AvgProvider.Valid {
		sum.AvgProviderMS = row.AvgProvider.Float64 / float64(time.Millisecond)
	}
	return sum, nil
}

// Close implements Recorder. It flushes buffered samples before
// closing the database.
func (r *SQLiteRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closeMu.Lock()
		r.closed = true
		close(r.samples)
		r.closeMu.Unlock()
		<-r.done
		err = r.db.Close()
	})
	return err
}

var _ Recorder = (*SQLiteRecorder)(nil)
