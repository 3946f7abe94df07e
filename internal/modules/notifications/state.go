// Package notifications sends the monthly review reminder and rebalance
// threshold alerts by email.
package notifications

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// State is what has been sent so far. A zero ThresholdLastSent means never.
type State struct {
	MonthlyLastSent   string    `json:"monthly_last_sent"` // YYYY-MM
	ThresholdLastSent time.Time `json:"threshold_last_sent"`
	ThresholdHash     string    `json:"threshold_hash"`
	LastError         string    `json:"last_error"`
}

// StateRepository keeps the single notification state row in config.db
type StateRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStateRepository creates a notification state repository
func NewStateRepository(db *sql.DB, log zerolog.Logger) *StateRepository {
	return &StateRepository{
		db:  db,
		log: log.With().Str("repo", "notification_state").Logger(),
	}
}

// Load returns the stored state, or an empty one when nothing was saved
func (r *StateRepository) Load() (State, error) {
	var (
		st       State
		lastSent int64
	)
	err := r.db.QueryRow(`SELECT monthly_last_sent, threshold_last_sent, threshold_hash, last_error
		FROM notification_state WHERE id = 1`).Scan(&st.MonthlyLastSent, &lastSent, &st.ThresholdHash, &st.LastError)
	if err == sql.ErrNoRows {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load notification state: %w", err)
	}
	if lastSent > 0 {
		st.ThresholdLastSent = time.Unix(lastSent, 0).UTC()
	}
	return st, nil
}

// Save stores st
func (r *StateRepository) Save(st State) error {
	var lastSent int64
	if !st.ThresholdLastSent.IsZero() {
		lastSent = st.ThresholdLastSent.Unix()
	}
	_, err := r.db.Exec(`INSERT INTO notification_state
		(id, monthly_last_sent, threshold_last_sent, threshold_hash, last_error, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			monthly_last_sent = excluded.monthly_last_sent,
			threshold_last_sent = excluded.threshold_last_sent,
			threshold_hash = excluded.threshold_hash,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		st.MonthlyLastSent, lastSent, st.ThresholdHash, st.LastError, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save notification state: %w", err)
	}
	return nil
}
