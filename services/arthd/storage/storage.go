// Package storage keeps arthd's audit trail: raw feed samples and the history
// of collateral ratio refreshes. Ledger state lives in the LevelDB state store,
// not here.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// Storage wraps the arthd audit database.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("arthd storage path must be configured")

// Open initialises the backing store using a sqlite DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Sample is one observation fetched from a feed.
type Sample struct {
	Feed       string
	Target     string
	Price      uint64
	ObservedAt time.Time
	RecordedAt time.Time
}

// RecordSample persists a feed observation.
func (s *Storage) RecordSample(ctx context.Context, sample Sample) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	recorded := sample.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO price_samples(feed, target, price, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, strings.ToLower(sample.Feed), strings.ToUpper(sample.Target), int64(sample.Price), sample.ObservedAt.UTC().Unix(), recorded.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// LatestSample returns the most recent sample recorded for the target source.
func (s *Storage) LatestSample(ctx context.Context, target string) (Sample, error) {
	out := Sample{}
	if s == nil {
		return out, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT feed, target, price, observed_at, recorded_at
        FROM price_samples
        WHERE target = ?
        ORDER BY id DESC
        LIMIT 1
    `, strings.ToUpper(strings.TrimSpace(target)))
	var price, observed, recorded int64
	if err := row.Scan(&out.Feed, &out.Target, &price, &observed, &recorded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("sample not found")
		}
		return out, fmt.Errorf("query sample: %w", err)
	}
	out.Price = uint64(price)
	out.ObservedAt = time.Unix(observed, 0).UTC()
	out.RecordedAt = time.Unix(recorded, 0).UTC()
	return out, nil
}

// RatioChange is one successful controller refresh.
type RatioChange struct {
	Previous    uint64
	Ratio       uint64
	Price       uint64
	RefreshedAt time.Time
}

// RecordRatio appends a controller refresh to the ratio history.
func (s *Storage) RecordRatio(ctx context.Context, change RatioChange) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO ratio_history(previous, ratio, price, refreshed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, int64(change.Previous), int64(change.Ratio), int64(change.Price), change.RefreshedAt.UTC().Unix(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert ratio change: %w", err)
	}
	return nil
}

// RatioHistory returns up to limit refreshes, newest first.
func (s *Storage) RatioHistory(ctx context.Context, limit int) ([]RatioChange, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT previous, ratio, price, refreshed_at
        FROM ratio_history
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query ratio history: %w", err)
	}
	defer rows.Close()
	var out []RatioChange
	for rows.Next() {
		var previous, ratio, price, refreshed int64
		if err := rows.Scan(&previous, &ratio, &price, &refreshed); err != nil {
			return nil, fmt.Errorf("scan ratio history: %w", err)
		}
		out = append(out, RatioChange{
			Previous:    uint64(previous),
			Ratio:       uint64(ratio),
			Price:       uint64(price),
			RefreshedAt: time.Unix(refreshed, 0).UTC(),
		})
	}
	return out, rows.Err()
}

const schema = `
CREATE TABLE IF NOT EXISTS price_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed TEXT NOT NULL,
    target TEXT NOT NULL,
    price INTEGER NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_samples_target ON price_samples(target, id);

CREATE TABLE IF NOT EXISTS ratio_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    previous INTEGER NOT NULL,
    ratio INTEGER NOT NULL,
    price INTEGER NOT NULL,
    refreshed_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);
`
