// Package timeutil pins every timestamp the service records (ledger
// rows, case detection, code expiry) to UTC, so captures from offline
// devices in other timezones compare cleanly against server-side clocks.
package timeutil

import "time"

// Now returns the current UTC time. Every recorded timestamp goes
// through here, never time.Now directly.
func Now() time.Time {
	return time.Now().UTC()
}

// TTLUntil returns the remaining lifetime of something expiring at the
// given instant. Zero or negative means already expired.
func TTLUntil(expiresAt time.Time) time.Duration {
	return expiresAt.Sub(Now())
}

// YearUTC returns the UTC calendar year a timestamp falls in. Fraud case
// numbers are sequenced per year, so the bucket must not depend on the
// server's local zone.
func YearUTC(t time.Time) int {
	return t.UTC().Year()
}
