// Package ledger records external deposits and withdrawals and computes
// principal, profit and money-weighted return (XIRR) from them.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository stores ledger entries in ledger.db. It implements
// domain.LedgerStore: entries can be appended and deleted but never edited.
// Dates are calendar days in loc.
type Repository struct {
	db  *sql.DB
	loc *time.Location
	log zerolog.Logger
}

// NewRepository creates a ledger repository. A nil loc means UTC.
func NewRepository(db *sql.DB, loc *time.Location, log zerolog.Logger) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{
		db:  db,
		loc: loc,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// List returns entries ordered by date then insertion. A nil assetID
// returns every entry; otherwise only that asset's entries.
func (r *Repository) List(assetID *string) ([]domain.LedgerEntry, error) {
	query := `SELECT id, date, direction, amount, asset_id, note, created_at FROM ledger_entries`
	var args []interface{}
	if assetID != nil {
		query += " WHERE asset_id = ?"
		args = append(args, *assetID)
	}
	query += " ORDER BY date, created_at, id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			date      string
			direction string
			asset     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &date, &direction, &e.Amount, &asset, &e.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Date, err = time.ParseInLocation(dateLayout, date, r.loc)
		if err != nil {
			r.log.Warn().Err(err).Str("id", e.ID).Str("date", date).Msg("Skipping ledger entry with bad date")
			continue
		}
		e.Direction = domain.LedgerDirection(direction)
		if asset.Valid {
			v := asset.String
			e.AssetID = &v
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// Append validates and stores entry, assigning an id and creation time
// when missing. The date is truncated to its calendar day.
func (r *Repository) Append(entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.CreatedAt = entry.CreatedAt.Truncate(time.Second)
	d := entry.Date.In(r.loc)
	entry.Date = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, r.loc)

	var asset sql.NullString
	if entry.AssetID != nil {
		asset = sql.NullString{String: *entry.AssetID, Valid: true}
	}

	_, err := r.db.Exec(`INSERT INTO ledger_entries (id, date, direction, amount, asset_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Date.Format(dateLayout), string(entry.Direction), entry.Amount, asset, entry.Note,
		entry.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	r.log.Debug().
		Str("id", entry.ID).
		Str("direction", string(entry.Direction)).
		Float64("amount", entry.Amount).
		Msg("Ledger entry added")
	return &entry, nil
}

// Delete removes one entry. A missing id is domain.ErrNotFound.
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM ledger_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry %s: %w", id, err)
	}
	if n == 0 {
		return domain.NotFound("ledger entry", id)
	}
	return nil
}
