// Package clientdata provides persistent caching for external API client responses.
// Data is stored as JSON blobs with an expiry so adapters can serve fresh
// entries without a network call and fall back to stale ones when a source fails.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Cache tables in client_data.db
const (
	TableTokenMeta    = "token_meta"
	TableCoinPrices   = "coin_prices"
	TableListedQuotes = "listed_quotes"
)

// AllTables lists all tables in client_data.db for cleanup operations.
var AllTables = []string{
	TableTokenMeta,
	TableCoinPrices,
	TableListedQuotes,
}

// keyColumns maps each table to its primary key column and doubles as the
// allow-list that keeps table names out of reach of callers.
var keyColumns = map[string]string{
	TableTokenMeta:    "token",
	TableCoinPrices:   "coin",
	TableListedQuotes: "code",
}

// Repository provides cache operations for client data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func keyColumn(table string) (string, error) {
	col, ok := keyColumns[table]
	if !ok {
		return "", fmt.Errorf("invalid table name: %s", table)
	}
	return col, nil
}

// Store saves data with expiration = now + ttl, replacing any previous entry.
func (r *Repository) Store(table, key string, data interface{}, ttl time.Duration) error {
	col, err := keyColumn(table)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, data, expires_at) VALUES (?, ?, ?)", table, col)
	if _, err := r.db.Exec(query, key, string(jsonData), r.now().Add(ttl).Unix()); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}
	return nil
}

// GetIfFresh returns data only if it has not expired.
// Returns nil, nil if the key doesn't exist or data is expired.
func (r *Repository) GetIfFresh(table, key string) (json.RawMessage, error) {
	col, err := keyColumn(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ? AND expires_at > ?", table, col)
	var data string
	err = r.db.QueryRow(query, key, r.now().Unix()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}
	return json.RawMessage(data), nil
}

// Get returns data regardless of expiration status, for use as a fallback
// when a source fails. Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(table, key string) (json.RawMessage, error) {
	col, err := keyColumn(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ?", table, col)
	var data string
	err = r.db.QueryRow(query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}
	return json.RawMessage(data), nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, key string) error {
	col, err := keyColumn(table)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, col), key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// DeleteExpired removes rows of table that expired more than grace ago and
// returns how many were deleted.
func (r *Repository) DeleteExpired(table string, grace time.Duration) (int64, error) {
	if _, err := keyColumn(table); err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-grace).Unix()
	result, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}
	return deleted, nil
}

// DeleteAllExpired removes expired entries from every table, keeping
// stale-servable entries for their StaleGrace.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64, len(AllTables))
	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table, StaleGrace[table])
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}
	return results, nil
}

// Lookup decodes a cached entry into out. It prefers a fresh entry; with
// allowStale it falls back to an expired one. It reports whether out was
// filled and whether the entry was fresh.
func (r *Repository) Lookup(table, key string, allowStale bool, out interface{}) (found, fresh bool, err error) {
	raw, err := r.GetIfFresh(table, key)
	if err != nil {
		return false, false, err
	}
	fresh = raw != nil
	if raw == nil && allowStale {
		if raw, err = r.Get(table, key); err != nil {
			return false, false, err
		}
	}
	if raw == nil {
		return false, false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, false, fmt.Errorf("failed to decode cached %s entry %s: %w", table, key, err)
	}
	return true, fresh, nil
}
