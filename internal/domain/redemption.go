package domain

import (
	"time"
)

// GeoPoint is an optional capture location attached to a redemption.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Redemption is the durable, append-only record of a consumed voucher
// claim. Rows are created exactly once by the validator & recorder and
// never updated afterwards except to stamp SyncedAt on offline-originated
// records; they are never deleted.
type Redemption struct {
	ID                string            `json:"id"`
	VoucherID         string            `json:"voucher_id"`
	CustomerID        string            `json:"customer_id"`
	ProviderID        string            `json:"provider_id"`
	Code              string            `json:"code"`
	RedeemedAt        time.Time         `json:"redeemed_at"`
	Location          *GeoPoint         `json:"location,omitempty"`
	OfflineRedemption bool              `json:"offline_redemption"`
	SyncedAt          *time.Time        `json:"synced_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// OfflineEntry is one client-buffered redemption attempt submitted for
// batch reconciliation after connectivity returns.
type OfflineEntry struct {
	Code       string    `json:"code"`
	CustomerID string    `json:"customer_id,omitempty"`
	RedeemedAt time.Time `json:"redeemed_at"`
	Location   *GeoPoint `json:"location,omitempty"`
	DeviceID   string    `json:"device_id"`
}
