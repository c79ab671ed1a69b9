package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// VoucherState mirrors the lifecycle states the catalog oracle reports.
type VoucherState string

const (
	VoucherStateDraft     VoucherState = "draft"
	VoucherStatePublished VoucherState = "published"
	VoucherStateExpired   VoucherState = "expired"
	VoucherStateClaimed   VoucherState = "claimed"
	VoucherStateRedeemed  VoucherState = "redeemed"
	VoucherStateSuspended VoucherState = "suspended"
)

// DiscountType enumerates the discount terms a voucher can carry.
type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// Voucher is the read-only view of a voucher supplied by the catalog
// oracle. The redemption engine never mutates catalog state; the ledger's
// own counters are the authoritative defense for cap enforcement.
type Voucher struct {
	ID                    string          `json:"id"`
	ProviderID            string          `json:"provider_id"`
	Title                 string          `json:"title"`
	State                 VoucherState    `json:"state"`
	DiscountType          DiscountType    `json:"discount_type"`
	DiscountValue         decimal.Decimal `json:"discount_value"`
	ValidFrom             time.Time       `json:"valid_from"`
	ExpiresAt             time.Time       `json:"expires_at"`
	MaxRedemptions        int             `json:"max_redemptions"`
	MaxRedemptionsPerUser int             `json:"max_redemptions_per_user"`
	CurrentRedemptions    int             `json:"current_redemptions"`
}

// IsExpired reports whether the voucher is past its validity window or the
// catalog already marked it expired.
func (v *Voucher) IsExpired() bool {
	if v.State == VoucherStateExpired {
		return true
	}
	return timeutil.Now().After(v.ExpiresAt)
}

// IsRedeemable reports whether the voucher's catalog state admits
// redemptions at all. Draft and suspended vouchers are not disclosed to
// scanning clients.
func (v *Voucher) IsRedeemable() bool {
	switch v.State {
	case VoucherStatePublished, VoucherStateClaimed:
		return true
	default:
		return false
	}
}

// AtGlobalCap reports whether the catalog snapshot already shows the
// voucher at its global redemption cap.
func (v *Voucher) AtGlobalCap() bool {
	return v.MaxRedemptions > 0 && v.CurrentRedemptions >= v.MaxRedemptions
}

// Details builds the success summary for a completed redemption.
func (v *Voucher) Details(providerDisplayName string) *VoucherDetails {
	return &VoucherDetails{
		VoucherID:           v.ID,
		Title:               v.Title,
		DiscountType:        string(v.DiscountType),
		DiscountValue:       v.DiscountValue.String(),
		ProviderDisplayName: providerDisplayName,
	}
}
