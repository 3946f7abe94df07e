package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLTokenMeta covers ERC-20 decimals and symbol, which never change in practice.
	// Expired metadata is still served when the RPC node is down.
	TTLTokenMeta = 30 * 24 * time.Hour

	// Price entries are only read while fresh. A failing source must surface
	// as a quote error, so there is no stale fallback for prices.
	TTLCoinPrice   = 45 * time.Second
	TTLListedQuote = 4 * time.Second
)

// StaleGrace is how long an expired entry is kept for stale fallback before
// cleanup deletes it. Tables not listed are deleted as soon as they expire.
var StaleGrace = map[string]time.Duration{
	TableTokenMeta: TTLTokenMeta,
}
