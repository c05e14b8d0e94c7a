package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("listing not found")

// Store persists listings so armed timers survive a restart. It shares the
// sniper SQLite database with the run journal.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(listingsSchema); err != nil {
		return nil, fmt.Errorf("init listings schema: %w", err)
	}
	return &Store{db: db}, nil
}

const listingsSchema = `CREATE TABLE IF NOT EXISTS listings (
	id           TEXT    PRIMARY KEY,
	symbol       TEXT    NOT NULL,
	quote_amount TEXT    NOT NULL,
	profit_pct   TEXT    NOT NULL,
	fee_pct      TEXT    NOT NULL DEFAULT '0',
	api_key      TEXT    NOT NULL,
	api_secret   TEXT    NOT NULL,
	listing_time TEXT    NOT NULL,
	status       TEXT    NOT NULL,
	created_at   TEXT    NOT NULL,
	run_id       TEXT    NOT NULL DEFAULT ''
)`

func (s *Store) Insert(l Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := l.Intent
	_, err := s.db.Exec(
		`INSERT INTO listings (id, symbol, quote_amount, profit_pct, fee_pct, api_key, api_secret, listing_time, status, created_at, run_id)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, in.Symbol, in.QuoteAmount.String(), in.ProfitPct.String(), in.FeePct.String(),
		in.Credentials.APIKey, in.Credentials.APISecret,
		in.ListingTime.UTC().Format(time.RFC3339Nano), string(l.Status),
		l.CreatedAt.UTC().Format(time.RFC3339Nano), l.RunID,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *Store) SetStatus(id string, status Status, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE listings SET status=?, run_id=? WHERE id=?`, string(status), runID, id)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM listings WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(id string) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectListings+` WHERE id=?`, id)
	if err != nil {
		return Listing{}, err
	}
	out, err := scanListings(rows)
	if err != nil {
		return Listing{}, err
	}
	if len(out) == 0 {
		return Listing{}, ErrNotFound
	}
	return out[0], nil
}

// List returns all listings ordered by listing time.
func (s *Store) List() ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectListings + ` ORDER BY listing_time ASC`)
	if err != nil {
		return nil, err
	}
	return scanListings(rows)
}

const selectListings = `SELECT id, symbol, quote_amount, profit_pct, fee_pct, api_key, api_secret, listing_time, status, created_at, run_id FROM listings`

func scanListings(rows *sql.Rows) ([]Listing, error) {
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var (
			l                      Listing
			quote, profit, fee     string
			listingTime, createdAt string
			status                 string
		)
		if err := rows.Scan(&l.ID, &l.Intent.Symbol, &quote, &profit, &fee,
			&l.Intent.Credentials.APIKey, &l.Intent.Credentials.APISecret,
			&listingTime, &status, &createdAt, &l.RunID,
		); err != nil {
			return nil, err
		}
		var err error
		if l.Intent.QuoteAmount, err = decimal.NewFromString(quote); err != nil {
			return nil, fmt.Errorf("listing %s quote_amount: %w", l.ID, err)
		}
		if l.Intent.ProfitPct, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("listing %s profit_pct: %w", l.ID, err)
		}
		if l.Intent.FeePct, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("listing %s fee_pct: %w", l.ID, err)
		}
		if l.Intent.ListingTime, err = time.Parse(time.RFC3339Nano, listingTime); err != nil {
			return nil, fmt.Errorf("listing %s listing_time: %w", l.ID, err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		l.Status = Status(status)
		out = append(out, l)
	}
	return out, rows.Err()
}
