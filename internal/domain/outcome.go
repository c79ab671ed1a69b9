package domain

// OutcomeCode is the closed set of business-rule outcomes a redemption or
// fraud-review operation can produce. Outcomes are expected and frequent;
// they travel in result payloads (success:false, errorCode), never as Go
// errors, so batch callers process every entry without aborting.
type OutcomeCode string

const (
	OutcomeVoucherNotFound        OutcomeCode = "VOUCHER_NOT_FOUND"
	OutcomeInvalidProvider        OutcomeCode = "INVALID_PROVIDER"
	OutcomeExpired                OutcomeCode = "EXPIRED"
	OutcomeRedemptionLimitReached OutcomeCode = "REDEMPTION_LIMIT_REACHED"
	OutcomeAlreadyRedeemed        OutcomeCode = "ALREADY_REDEEMED"
	OutcomeInvalidToken           OutcomeCode = "INVALID_TOKEN"
	OutcomeUnknownCode            OutcomeCode = "UNKNOWN_CODE"
	OutcomeCatalogUnavailable     OutcomeCode = "CATALOG_UNAVAILABLE"
	OutcomeAlreadyReviewed        OutcomeCode = "ALREADY_REVIEWED"
	OutcomeForbiddenCrossProvider OutcomeCode = "FORBIDDEN_CROSS_PROVIDER"
	// OutcomeTransientError marks an offline batch entry that failed on an
	// internal fault (ledger unreachable). The client keeps the entry queued
	// and retries the sync.
	OutcomeTransientError OutcomeCode = "TRANSIENT_ERROR"
)

// IsTransient reports whether the outcome may succeed on retry. Every
// other outcome is a terminal fact about the voucher or the ledger.
func (c OutcomeCode) IsTransient() bool {
	return c == OutcomeCatalogUnavailable || c == OutcomeTransientError
}

// VoucherDetails is the success summary returned to the scanning client.
type VoucherDetails struct {
	VoucherID           string `json:"voucher_id"`
	Title               string `json:"title"`
	DiscountType        string `json:"discount_type"`
	DiscountValue       string `json:"discount_value"`
	ProviderDisplayName string `json:"provider_display_name"`
}

// RedemptionResult is the structured outcome of a redemption attempt.
type RedemptionResult struct {
	Success        bool            `json:"success"`
	RedemptionID   string          `json:"redemption_id,omitempty"`
	ErrorCode      OutcomeCode     `json:"error_code,omitempty"`
	VoucherDetails *VoucherDetails `json:"voucher_details,omitempty"`
}

// Failure builds a failed result carrying the given outcome.
func Failure(code OutcomeCode) RedemptionResult {
	return RedemptionResult{Success: false, ErrorCode: code}
}

// SyncEntryResult reports the outcome for one entry of an offline batch.
type SyncEntryResult struct {
	Code         string      `json:"code"`
	Success      bool        `json:"success"`
	RedemptionID string      `json:"redemption_id,omitempty"`
	ErrorCode    OutcomeCode `json:"error_code,omitempty"`
}
