package ports

import (
	"context"

	"github.com/voucherly/redemption-service/internal/domain"
)

// VoucherCatalog is the read-only oracle for voucher state. The redemption
// engine never writes through this port; catalog management is a separate
// system. Implementations must honor the context deadline: the caller
// bounds every fetch and treats an exceeded deadline as transient.
type VoucherCatalog interface {
	// GetVoucher returns the voucher or domain.ErrVoucherNotFound.
	GetVoucher(ctx context.Context, voucherID string) (*domain.Voucher, error)
}

// ProviderProfile is the directory view of a redeeming provider.
type ProviderProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// ProviderDirectory resolves provider ids to profile data for
// authorization checks and display names.
type ProviderDirectory interface {
	// GetProvider returns the profile or domain.ErrProviderNotFound.
	GetProvider(ctx context.Context, providerID string) (*ProviderProfile, error)
}
