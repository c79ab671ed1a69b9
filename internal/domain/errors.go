package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code for structural failures.
// Business-rule outcomes are not errors; see OutcomeCode in outcome.go.
type ErrorCode string

const (
	// Authentication & Authorization Errors (AUTH_*)
	ErrorCodeAuthMissing          ErrorCode = "AUTH_MISSING"
	ErrorCodeAuthInvalid          ErrorCode = "AUTH_INVALID"
	ErrorCodeAuthProviderMismatch ErrorCode = "AUTH_PROVIDER_MISMATCH"
	ErrorCodeAuthAccessDenied     ErrorCode = "AUTH_ACCESS_DENIED"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField   ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeValidationIdempotencyKey ErrorCode = "VALIDATION_IDEMPOTENCY_KEY"

	// Redemption Ledger Errors (LEDGER_*)
	ErrorCodeLedgerConflict     ErrorCode = "LEDGER_CONFLICT"
	ErrorCodeLedgerVoucherCap   ErrorCode = "LEDGER_VOUCHER_CAP_REACHED"
	ErrorCodeLedgerCustomerCap  ErrorCode = "LEDGER_CUSTOMER_CAP_REACHED"
	ErrorCodeRedemptionNotFound ErrorCode = "REDEMPTION_NOT_FOUND"

	// Fraud Case Errors (FRAUD_*)
	ErrorCodeFraudCaseNotFound ErrorCode = "FRAUD_CASE_NOT_FOUND"

	// Catalog Oracle Errors (CATALOG_*)
	ErrorCodeCatalogTimeout     ErrorCode = "CATALOG_TIMEOUT"
	ErrorCodeCatalogUnavailable ErrorCode = "CATALOG_UNAVAILABLE"
	ErrorCodeVoucherNotFound    ErrorCode = "CATALOG_VOUCHER_NOT_FOUND"
	ErrorCodeProviderNotFound   ErrorCode = "CATALOG_PROVIDER_NOT_FOUND"

	// Cache Errors (CACHE_*)
	ErrorCodeCacheMiss        ErrorCode = "CACHE_MISS"
	ErrorCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsAuthError checks if an error is authentication/authorization related
func IsAuthError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAuthMissing ||
		code == ErrorCodeAuthInvalid ||
		code == ErrorCodeAuthProviderMismatch ||
		code == ErrorCodeAuthAccessDenied
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeValidationIdempotencyKey
}

// Structured error instances
var (
	ErrAuthMissing      = NewDomainError(ErrorCodeAuthMissing, "authentication required")
	ErrAuthInvalid      = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")
	ErrAuthAccessDenied = NewDomainError(ErrorCodeAuthAccessDenied, "access denied")

	ErrValidationFailed       = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationMissingField = NewDomainError(ErrorCodeValidationMissingField, "required field missing")
	ErrInvalidIdempotencyKey  = NewDomainError(ErrorCodeValidationIdempotencyKey, "idempotency key must be 16-128 characters of [A-Za-z0-9-]")

	ErrLedgerConflict     = NewDomainError(ErrorCodeLedgerConflict, "redemption conflicts with existing ledger rows")
	ErrVoucherCapReached  = NewDomainError(ErrorCodeLedgerVoucherCap, "voucher redemption cap reached")
	ErrCustomerCapReached = NewDomainError(ErrorCodeLedgerCustomerCap, "per-customer redemption cap reached")
	ErrRedemptionNotFound = NewDomainError(ErrorCodeRedemptionNotFound, "redemption not found")

	ErrFraudCaseNotFound = NewDomainError(ErrorCodeFraudCaseNotFound, "fraud case not found")

	ErrCatalogTimeout     = NewDomainError(ErrorCodeCatalogTimeout, "catalog oracle timed out")
	ErrCatalogUnavailable = NewDomainError(ErrorCodeCatalogUnavailable, "catalog oracle unavailable")
	ErrVoucherNotFound    = NewDomainError(ErrorCodeVoucherNotFound, "voucher not found in catalog")
	ErrProviderNotFound   = NewDomainError(ErrorCodeProviderNotFound, "provider not found in directory")

	ErrCacheMiss        = NewDomainError(ErrorCodeCacheMiss, "cache key not found")
	ErrCacheUnavailable = NewDomainError(ErrorCodeCacheUnavailable, "cache store unavailable")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
