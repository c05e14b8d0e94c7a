package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	maxStoreBytes  int64   = 256 << 20 // 256 MiB
	evictPct       float64 = 0.10      // evict oldest 10% of runs
	vacuumInterval         = 10        // incremental vacuum every N evictions
)

// Store is an append-only journal of finished runs in SQLite, capped at
// maxStoreBytes. Oldest runs are evicted first.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	cachedSize   int64
	rowCount     int64
	evictCounter int
}

// Open opens (or creates) a sniper database at path. The listing store
// shares the same file.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 {
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("store: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}
	return db, nil
}

// NewStore creates the run tables on db.
func NewStore(db *sql.DB) (*Store, error) {
	for _, stmt := range []string{runsSchema, samplesSchema} {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("init tracking schema: %w", err)
		}
	}

	s := &Store{db: db}
	s.refreshSize()
	db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&s.rowCount)

	telemetry.Infof("tracking store: size=%d runs=%d", s.cachedSize, s.rowCount)
	return s, nil
}

const runsSchema = `CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT    NOT NULL UNIQUE,
	symbol         TEXT    NOT NULL,
	final_state    TEXT    NOT NULL,
	failed_at      TEXT    NOT NULL DEFAULT '',
	started_at     TEXT    NOT NULL,
	finished_at    TEXT    NOT NULL,
	quote_amount   TEXT    NOT NULL,

	buy_order_id   TEXT,
	executed_qty   TEXT,
	executed_price TEXT,
	sell_order_id  TEXT,
	sell_qty       TEXT,
	take_profit    TEXT,

	open_position  INTEGER NOT NULL DEFAULT 0,
	error          TEXT    NOT NULL DEFAULT '',
	raw_response   TEXT    NOT NULL DEFAULT ''
)`

const samplesSchema = `CREATE TABLE IF NOT EXISTS latency_samples (
	run_id      TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	label       TEXT    NOT NULL,
	sent_at     TEXT    NOT NULL,
	received_at TEXT    NOT NULL,
	millis      INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
)`

// InsertRun stores a finished run with its latency samples and returns the
// row ID.
func (s *Store) InsertRun(r events.RunFinishedEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (
			run_id, symbol, final_state, failed_at, started_at, finished_at, quote_amount,
			buy_order_id, executed_qty, executed_price, sell_order_id, sell_qty, take_profit,
			open_position, error, raw_response
		) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?)`,
		r.RunID, r.Symbol, r.FinalState, r.FailedAt,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.QuoteAmount,
		nullStr(r.BuyOrderID), nullStr(r.ExecutedQty), nullStr(r.ExecutedPrice),
		nullStr(r.SellOrderID), nullStr(r.SellQty), nullStr(r.TakeProfit),
		r.OpenPosition, r.Error, r.RawResponse,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	for i, sm := range r.Samples {
		if _, err := tx.Exec(
			`INSERT INTO latency_samples (run_id, seq, label, sent_at, received_at, millis) VALUES (?,?,?,?,?,?)`,
			r.RunID, i, sm.Label,
			sm.Sent.UTC().Format(time.RFC3339Nano), sm.Received.UTC().Format(time.RFC3339Nano), sm.Millis,
		); err != nil {
			return 0, fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}

	id, _ := res.LastInsertId()
	s.rowCount++
	s.refreshSize()
	if s.cachedSize > maxStoreBytes {
		s.evict()
	}
	return id, nil
}

// RunRecord is one journal row.
type RunRecord struct {
	ID           int64            `json:"id"`
	RunID        string           `json:"run_id"`
	Symbol       string           `json:"symbol"`
	FinalState   string           `json:"final_state"`
	FailedAt     string           `json:"failed_at,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	QuoteAmount  string           `json:"quote_amount"`
	BuyOrderID   string           `json:"buy_order_id,omitempty"`
	SellOrderID  string           `json:"sell_order_id,omitempty"`
	TakeProfit   string           `json:"take_profit,omitempty"`
	OpenPosition bool             `json:"open_position"`
	Error        string           `json:"error,omitempty"`
	Samples      []latency.Sample `json:"samples,omitempty"`
}

// Recent returns up to limit runs, newest first, with their samples.
func (s *Store) Recent(limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, symbol, final_state, failed_at, started_at, finished_at, quote_amount,
			buy_order_id, sell_order_id, take_profit, open_position, error
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	var out []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished string
			buyID, sellID, tp sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Symbol, &r.FinalState, &r.FailedAt,
			&started, &finished, &r.QuoteAmount,
			&buyID, &sellID, &tp, &r.OpenPosition, &r.Error,
		); err != nil {
			rows.Close()
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.BuyOrderID, r.SellOrderID, r.TakeProfit = buyID.String, sellID.String, tp.String
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		samples, err := s.samples(out[i].RunID)
		if err != nil {
			return nil, err
		}
		out[i].Samples = samples
	}
	return out, nil
}

// samples loads one run's latency samples in insertion order.
// Must be called with s.mu held.
func (s *Store) samples(runID string) ([]latency.Sample, error) {
	rows, err := s.db.Query(
		`SELECT label, sent_at, received_at, millis FROM latency_samples WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []latency.Sample
	for rows.Next() {
		var (
			sm             latency.Sample
			sent, received string
		)
		if err := rows.Scan(&sm.Label, &sent, &received, &sm.Millis); err != nil {
			return nil, err
		}
		sm.Sent, _ = time.Parse(time.RFC3339Nano, sent)
		sm.Received, _ = time.Parse(time.RFC3339Nano, received)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// OpenPositions counts journalled runs that ended holding an unhedged buy.
func (s *Store) OpenPositions() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE open_position = 1`).Scan(&n)
	return n, err
}

// refreshSize re-reads the database file size from SQLite pragmas.
// Must be called with s.mu held.
func (s *Store) refreshSize() {
	var size int64
	row := s.db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&size); err == nil {
		s.cachedSize = size
	}
}

// evict deletes the oldest 10% of runs by count. Samples go with them.
// Must be called with s.mu held.
func (s *Store) evict() {
	toDelete := int64(float64(s.rowCount) * evictPct)
	if toDelete < 1 {
		toDelete = 1
	}

	res, err := s.db.Exec(
		`DELETE FROM runs WHERE id IN (
			SELECT id FROM runs ORDER BY id ASC LIMIT ?
		)`, toDelete,
	)
	if err != nil {
		telemetry.Warnf("tracking store evict: %v", err)
		return
	}

	deleted, _ := res.RowsAffected()
	s.rowCount -= deleted
	s.evictCounter++

	telemetry.Infof("tracking store: evicted %d runs (target %d)", deleted, toDelete)

	if s.evictCounter%vacuumInterval == 0 {
		s.db.Exec(`PRAGMA incremental_vacuum`)
	}

	s.refreshSize()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
