package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestTTLUntil(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		expired   bool
	}{
		{
			name:      "future expiry",
			expiresAt: Now().Add(time.Hour),
			expired:   false,
		},
		{
			name:      "past expiry",
			expiresAt: Now().Add(-time.Minute),
			expired:   true,
		},
		{
			name:      "expiry now",
			expiresAt: Now(),
			expired:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl := TTLUntil(tt.expiresAt)

			if tt.expired && ttl > 0 {
				t.Errorf("TTLUntil() = %v, want <= 0 for expired instant", ttl)
			}
			if !tt.expired && (ttl <= 0 || ttl > time.Hour) {
				t.Errorf("TTLUntil() = %v, want positive duration up to an hour", ttl)
			}
		})
	}
}

func TestYearUTC_IgnoresLocalZone(t *testing.T) {
	// 23:30 on Dec 31 at UTC-5 is already the next year in UTC.
	est := time.FixedZone("UTC-5", -5*60*60)
	ts := time.Date(2026, 12, 31, 23, 30, 0, 0, est)

	if got := YearUTC(ts); got != 2027 {
		t.Errorf("YearUTC(%v) = %d, want 2027", ts, got)
	}

	utc := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	if got := YearUTC(utc); got != 2026 {
		t.Errorf("YearUTC(%v) = %d, want 2026", utc, got)
	}
}
