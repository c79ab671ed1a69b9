package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the application's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//   HTTP Handler (60s)
//     ↓
//   Service Layer (50s)
//     ↓
//   Catalog Oracle Call (3s)
//     ↓
//   Database Query (2s/5s - based on complexity)
//
// This hierarchy ensures each layer completes before its parent times out,
// preventing cascading timeout failures and providing predictable behavior.
// The catalog call is deliberately tight: it sits on the caller-visible
// redemption path and must fail closed quickly rather than hold the scan.
type TimeoutConfig struct {
	// Handler layer timeouts
	HTTPHandler time.Duration // Overall request timeout (default: 60s)
	SyncBatch   time.Duration // Offline batch reconciliation (default: 2 minutes)

	// Service layer timeouts
	Service         time.Duration // Service operation timeout (default: 50s)
	ServiceCritical time.Duration // Redemption commit path (default: 45s)

	// External calls
	CatalogCall time.Duration // Catalog oracle fetch per attempt (default: 3s)
	ScoringJob  time.Duration // One fraud-scoring evaluation (default: 10s)

	// Database timeouts (enforced in the postgres adapter)
	// Listed here for documentation only
	// SimpleQuery:  2s - ID lookups, conditional counter bumps
	// ComplexQuery: 5s - statistics aggregations, filtered listings
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		// Handler layer
		HTTPHandler: 60 * time.Second,
		SyncBatch:   2 * time.Minute,

		// Service layer (must be < HTTPHandler)
		Service:         50 * time.Second,
		ServiceCritical: 45 * time.Second,

		// External calls
		CatalogCall: 3 * time.Second,
		ScoringJob:  10 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     5 * time.Second,
		SyncBatch:       10 * time.Second,
		Service:         4 * time.Second,
		ServiceCritical: 3 * time.Second,
		CatalogCall:     500 * time.Millisecond,
		ScoringJob:      1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// SyncBatchContext creates a context for offline batch reconciliation
func (tc *TimeoutConfig) SyncBatchContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.SyncBatch)
}

// ServiceContext creates a context with timeout for service layer operations
func (tc *TimeoutConfig) ServiceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Service)
}

// CriticalPathContext creates a context for the redemption commit path
func (tc *TimeoutConfig) CriticalPathContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ServiceCritical)
}

// CatalogContext creates a context for one catalog oracle fetch
func (tc *TimeoutConfig) CatalogContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CatalogCall)
}

// ScoringContext creates a context for one fraud-scoring evaluation
func (tc *TimeoutConfig) ScoringContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ScoringJob)
}
