package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores valuation snapshots in history.db. Timestamps are unix
// milliseconds; the bucket breakdown is a msgpack blob.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// Insert stores a snapshot. A snapshot with the same timestamp is replaced.
func (r *Repository) Insert(s Snapshot) error {
	blob, err := msgpack.Marshal(payload{AsOf: s.AsOf, Categories: s.Categories, Warnings: s.Warnings})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot payload: %w", err)
	}
	_, err = r.db.Exec(`INSERT OR REPLACE INTO valuation_snapshots (ts, total_value, payload) VALUES (?, ?, ?)`,
		s.TS.UnixMilli(), s.TotalValue, blob)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Points returns total-value samples at or after since, oldest first
func (r *Repository) Points(since time.Time) ([]Point, error) {
	rows, err := r.db.Query(`SELECT ts, total_value FROM valuation_snapshots WHERE ts >= ? ORDER BY ts`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var (
			ts    int64
			value float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		points = append(points, Point{TS: time.UnixMilli(ts).UTC(), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return points, nil
}

// Latest returns the most recent snapshot with its breakdown, or nil when
// nothing has been recorded
func (r *Repository) Latest() (*Snapshot, error) {
	var (
		ts    int64
		total float64
		blob  []byte
	)
	err := r.db.QueryRow(`SELECT ts, total_value, payload FROM valuation_snapshots ORDER BY ts DESC LIMIT 1`).
		Scan(&ts, &total, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}

	var p payload
	if err := msgpack.Unmarshal(blob, &p); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	return &Snapshot{
		TS:         time.UnixMilli(ts).UTC(),
		AsOf:       p.AsOf,
		TotalValue: total,
		Categories: p.Categories,
		Warnings:   p.Warnings,
	}, nil
}

// DeleteBefore removes snapshots older than cutoff and returns how many
func (r *Repository) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM valuation_snapshots WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted snapshots: %w", err)
	}
	return n, nil
}
