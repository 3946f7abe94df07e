package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// MinCooldown is the shortest accepted threshold alert cooldown
const MinCooldown = time.Minute

// WarningsHash identifies a set of rebalance warnings independent of order
func WarningsHash(warnings []string) string {
	sorted := append([]string(nil), warnings...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, w := range sorted {
		h.Write([]byte(w))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldSendThreshold reports whether a threshold alert for the warnings
// identified by hash is due: never sent before, a different set of warnings,
// or the cooldown has passed since the last alert.
func ShouldSendThreshold(st State, hash string, cooldown time.Duration, now time.Time) bool {
	if st.ThresholdLastSent.IsZero() {
		return true
	}
	if st.ThresholdHash != hash {
		return true
	}
	if cooldown < MinCooldown {
		cooldown = MinCooldown
	}
	return now.Sub(st.ThresholdLastSent) >= cooldown
}

// FirstWorkdayOfMonth returns the first Monday to Friday of date's month,
// at midnight in date's location
func FirstWorkdayOfMonth(date time.Time) time.Time {
	d := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// sameDay reports whether a and b fall on the same calendar day in a's location
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
