package domain

import (
	"time"

	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// CodeKind distinguishes the two short-code flavors.
type CodeKind string

const (
	// CodeKindDynamic codes are minted per claim attempt for a single
	// customer and consumed on first successful redemption.
	CodeKindDynamic CodeKind = "dynamic"
	// CodeKindStatic codes are campaign-wide and multi-use; the customer
	// identity must come from the redemption request.
	CodeKindStatic CodeKind = "static"
)

// RedemptionClaim is the verified payload of a scan token or short code.
// It is ephemeral: produced by signature verification or cache lookup,
// consumed once by the validator, never persisted.
type RedemptionClaim struct {
	VoucherID  string    `json:"voucher_id"`
	CustomerID string    `json:"customer_id"`
	ProviderID string    `json:"provider_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the claim's validity window has passed.
func (c *RedemptionClaim) Expired() bool {
	return timeutil.Now().After(c.ExpiresAt)
}

// StoredCode is the cache-backed record a short code resolves to.
type StoredCode struct {
	Kind       CodeKind  `json:"kind"`
	VoucherID  string    `json:"voucher_id"`
	CustomerID string    `json:"customer_id,omitempty"` // empty for static codes
	ProviderID string    `json:"provider_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Consumed   bool      `json:"consumed,omitempty"` // dynamic code already redeemed online
}

// Claim converts a stored code into a redemption claim. Static codes take
// the customer from the request; dynamic codes carry their own.
func (sc *StoredCode) Claim(requestCustomerID string) *RedemptionClaim {
	customerID := sc.CustomerID
	if sc.Kind == CodeKindStatic {
		customerID = requestCustomerID
	}
	return &RedemptionClaim{
		VoucherID:  sc.VoucherID,
		CustomerID: customerID,
		ProviderID: sc.ProviderID,
		IssuedAt:   sc.IssuedAt,
		ExpiresAt:  sc.ExpiresAt,
	}
}
