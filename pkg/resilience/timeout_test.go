package resilience

import (
	"context"
	"testing"
	"time"
)

func TestDefaultTimeoutConfig(t *testing.T) {
	config := DefaultTimeoutConfig()

	// Verify timeout hierarchy is correctly ordered
	if config.HTTPHandler <= config.Service {
		t.Errorf("HTTPHandler (%v) must be > Service (%v)", config.HTTPHandler, config.Service)
	}

	if config.Service <= config.ServiceCritical {
		t.Errorf("Service (%v) must be > ServiceCritical (%v)", config.Service, config.ServiceCritical)
	}

	if config.ServiceCritical <= config.CatalogCall {
		t.Errorf("ServiceCritical (%v) must be > CatalogCall (%v)", config.ServiceCritical, config.CatalogCall)
	}

	// Verify production values
	if config.HTTPHandler != 60*time.Second {
		t.Errorf("Expected HTTPHandler = 60s, got %v", config.HTTPHandler)
	}

	if config.Service != 50*time.Second {
		t.Errorf("Expected Service = 50s, got %v", config.Service)
	}

	// The catalog call sits on the scan path and must stay tight
	if config.CatalogCall > 5*time.Second {
		t.Errorf("CatalogCall (%v) must stay <= 5s on the redemption path", config.CatalogCall)
	}
}

func TestTestTimeoutConfig(t *testing.T) {
	config := TestTimeoutConfig()

	// Verify test timeouts are shorter
	if config.HTTPHandler >= 10*time.Second {
		t.Errorf("Test timeouts should be < 10s, got %v", config.HTTPHandler)
	}

	// Verify hierarchy is still preserved in test config
	if config.HTTPHandler <= config.Service {
		t.Errorf("HTTPHandler (%v) must be > Service (%v)", config.HTTPHandler, config.Service)
	}

	if config.Service <= config.CatalogCall {
		t.Errorf("Service (%v) must be > CatalogCall (%v)", config.Service, config.CatalogCall)
	}
}

func TestHandlerContext(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	ctx, cancel := config.HandlerContext(parent)
	defer cancel()

	// Verify context has deadline
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("HandlerContext should have deadline")
	}

	// Verify deadline is approximately HTTPHandler duration from now
	expectedDeadline := time.Now().Add(config.HTTPHandler)
	diff := deadline.Sub(expectedDeadline).Abs()
	if diff > 100*time.Millisecond {
		t.Errorf("Deadline diff too large: %v", diff)
	}
}

func TestServiceContext(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	ctx, cancel := config.ServiceContext(parent)
	defer cancel()

	// Verify context has deadline
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("ServiceContext should have deadline")
	}

	// Verify deadline is approximately Service duration from now
	expectedDeadline := time.Now().Add(config.Service)
	diff := deadline.Sub(expectedDeadline).Abs()
	if diff > 100*time.Millisecond {
		t.Errorf("Deadline diff too large: %v", diff)
	}
}

func TestTimeoutHierarchyPreservation(t *testing.T) {
	// Verify that child contexts respect parent deadlines
	config := DefaultTimeoutConfig()

	// Create parent context with 5 second timeout
	parent, parentCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer parentCancel()

	// Try to create child with longer timeout
	child, childCancel := config.HandlerContext(parent)
	defer childCancel()

	// Child should inherit parent's shorter deadline
	parentDeadline, _ := parent.Deadline()
	childDeadline, _ := child.Deadline()

	// Child deadline should be same or earlier than parent
	if childDeadline.After(parentDeadline) {
		t.Errorf("Child deadline (%v) should not be after parent deadline (%v)",
			childDeadline, parentDeadline)
	}
}

func TestContextCancellationPropagation(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	ctx, cancel := config.ServiceContext(parent)

	// Cancel context
	cancel()

	// Verify context is cancelled
	select {
	case <-ctx.Done():
		// Expected
	case <-time.After(100 * time.Millisecond):
		t.Error("Context should be cancelled immediately")
	}

	// Verify error is context.Canceled
	if ctx.Err() != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", ctx.Err())
	}
}

func TestContextTimeout(t *testing.T) {
	// Use test config for faster tests
	config := TestTimeoutConfig()
	parent := context.Background()

	// Create context with 100ms timeout
	config.Service = 100 * time.Millisecond
	ctx, cancel := config.ServiceContext(parent)
	defer cancel()

	// Wait for timeout
	select {
	case <-ctx.Done():
		// Verify error is DeadlineExceeded
		if ctx.Err() != context.DeadlineExceeded {
			t.Errorf("Expected context.DeadlineExceeded, got %v", ctx.Err())
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("Context should timeout after 100ms")
	}
}

func TestAllContextCreators(t *testing.T) {
	config := DefaultTimeoutConfig()
	parent := context.Background()

	tests := []struct {
		name    string
		creator func(context.Context) (context.Context, context.CancelFunc)
		timeout time.Duration
	}{
		{"HandlerContext", config.HandlerContext, config.HTTPHandler},
		{"SyncBatchContext", config.SyncBatchContext, config.SyncBatch},
		{"ServiceContext", config.ServiceContext, config.Service},
		{"CriticalPathContext", config.CriticalPathContext, config.ServiceCritical},
		{"CatalogContext", config.CatalogContext, config.CatalogCall},
		{"ScoringContext", config.ScoringContext, config.ScoringJob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.creator(parent)
			defer cancel()

			// Verify deadline exists
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatalf("%s should have deadline", tt.name)
			}

			// Verify deadline is approximately correct
			expectedDeadline := time.Now().Add(tt.timeout)
			diff := deadline.Sub(expectedDeadline).Abs()
			if diff > 100*time.Millisecond {
				t.Errorf("%s: deadline diff too large: %v (expected ~%v)",
					tt.name, diff, tt.timeout)
			}
		})
	}
}

func TestSyncBatchTimeout(t *testing.T) {
	config := DefaultTimeoutConfig()

	// Batch reconciliation processes entries sequentially and should have
	// significantly more headroom than a single request
	if config.SyncBatch <= config.HTTPHandler {
		t.Errorf("SyncBatch (%v) should have longer timeout than HTTPHandler (%v)",
			config.SyncBatch, config.HTTPHandler)
	}
}

func TestTimeoutBudget(t *testing.T) {
	config := DefaultTimeoutConfig()

	// Verify timeout hierarchy relationships
	//
	// Example redemption flow:
	//   Service timeout: 50s (total budget)
	//     ├─ Catalog fetch: up to 3s
	//     ├─ Ledger prechecks: ~2s
	//     ├─ Atomic commit transaction: ~2s
	//     └─ Response assembly: well under the remainder
	//
	// The budget is intentionally generous: the common case completes in
	// well under a second, and the headroom exists for degraded operation.

	// Verify Service timeout has buffer for catalog + ledger + overhead
	minServiceBudget := config.CatalogCall + 2*time.Second + 2*time.Second
	if config.Service < minServiceBudget {
		t.Errorf("Service timeout (%v) insufficient for typical operations (need >= %v)",
			config.Service, minServiceBudget)
	}

	// Verify HTTPHandler has buffer beyond Service timeout
	if config.HTTPHandler <= config.Service {
		t.Errorf("HTTPHandler (%v) must be > Service (%v)",
			config.HTTPHandler, config.Service)
	}
}
