package fraud

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/pkg/observability"
	"github.com/voucherly/redemption-service/pkg/resilience"
)

const scoreAttempts = 3

// Dispatcher hands committed redemptions to a pool of scoring workers. The
// queue is bounded and Dispatch never blocks: when the queue is full the
// redemption is dropped from scoring and counted, because fraud scoring is
// advisory and must never add latency to the redemption path.
type Dispatcher struct {
	service *Service
	queue   chan *domain.Redemption
	backoff resilience.BackoffStrategy
	timeout time.Duration
	logger  *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher creates the dispatcher and starts its workers.
func NewDispatcher(service *Service, queueSize, workers int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 4
	}

	d := &Dispatcher{
		service: service,
		queue:   make(chan *domain.Redemption, queueSize),
		backoff: resilience.DefaultExponentialBackoff(),
		timeout: 10 * time.Second,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch enqueues a redemption for scoring. Non-blocking: a full queue
// drops the work and increments a counter. A crash between the redemption
// commit and this call only risks a missed fraud check, never a lost or
// duplicated redemption.
func (d *Dispatcher) Dispatch(r *domain.Redemption) {
	select {
	case d.queue <- r:
	default:
		observability.RecordFraudScoreDropped()
		d.logger.Warn("fraud scoring queue full, dropping redemption",
			zap.String("redemption_id", r.ID),
		)
	}
}

// Stop closes the queue and waits for in-flight scoring to drain, up to the
// context deadline.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.queue) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for r := range d.queue {
		d.score(r)
	}
}

func (d *Dispatcher) score(r *domain.Redemption) {
	var err error
	for attempt := 0; attempt < scoreAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(d.backoff.NextDelay(attempt - 1))
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = d.service.ScoreRedemption(ctx, r)
		cancel()
		if err == nil {
			return
		}
	}

	// Exhausted retries. The redemption stays committed; only the fraud
	// check is lost.
	d.logger.Error("fraud scoring failed",
		zap.String("redemption_id", r.ID),
		zap.Int("attempts", scoreAttempts),
		zap.Error(err),
	)
}
