// Package shutdown sequences teardown of the redemption service.
// Components register in dependency order (ledger pool first, HTTP
// servers last) and stop in reverse: the API stops accepting redemptions
// before the fraud dispatcher drains, and the dispatcher drains before
// the ledger pool closes under it.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "service_shutdown_duration_seconds",
		Help:    "Total time spent in graceful shutdown",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	componentStopDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shutdown_component_duration_seconds",
		Help:    "Time spent stopping each component",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"component"})

	componentStopErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_component_errors_total",
		Help: "Stop failures by component",
	}, []string{"component"})
)

// StopFunc stops one component, respecting the shared shutdown deadline.
type StopFunc func(context.Context) error

type component struct {
	name string
	stop StopFunc
}

// Manager stops registered components in reverse registration order.
type Manager struct {
	logger     *zap.Logger
	mu         sync.Mutex
	components []component
	timeout    time.Duration
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a component. Order matters: register dependencies before
// their dependents (pool, cache, dispatcher, then servers); Shutdown
// walks the list backwards.
func (m *Manager) Register(name string, stop StopFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, stop: stop})
	m.logger.Debug("shutdown component registered",
		zap.String("component", name),
		zap.Int("position", len(m.components)),
	)
}

// RegisterCloser registers a component exposing Close() error.
func (m *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	m.Register(name, func(context.Context) error {
		return closer.Close()
	})
}

// RegisterHTTPServer registers an HTTP server for graceful Shutdown.
func (m *Manager) RegisterHTTPServer(name string, server interface {
	Shutdown(context.Context) error
}) {
	m.Register(name, server.Shutdown)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs Shutdown.
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	m.logger.Info("shutdown signal received",
		zap.String("signal", sig.String()),
		zap.Duration("budget", m.timeout),
	)
	m.Shutdown()
}

// Shutdown stops components one at a time in reverse registration order.
// Sequential on purpose: the fraud dispatcher must finish persisting
// in-flight scores before the ledger pool closes. All components share
// one deadline, so a slow component eats into the budget of those after
// it.
func (m *Manager) Shutdown() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	m.logger.Info("stopping components",
		zap.Int("count", len(components)),
		zap.Duration("budget", m.timeout),
	)

	failed := 0
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if ctx.Err() != nil {
			m.logger.Warn("shutdown budget exhausted, component skipped",
				zap.String("component", c.name),
			)
			componentStopErrors.WithLabelValues(c.name).Inc()
			failed++
			continue
		}

		stopStart := time.Now()
		if err := c.stop(ctx); err != nil {
			componentStopErrors.WithLabelValues(c.name).Inc()
			failed++
			m.logger.Error("component stop failed",
				zap.String("component", c.name),
				zap.Duration("elapsed", time.Since(stopStart)),
				zap.Error(err),
			)
		} else {
			m.logger.Info("component stopped",
				zap.String("component", c.name),
				zap.Duration("elapsed", time.Since(stopStart)),
			)
		}
		componentStopDuration.WithLabelValues(c.name).Observe(time.Since(stopStart).Seconds())
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	if failed > 0 {
		m.logger.Error("shutdown finished with failures",
			zap.Int("failed", failed),
			zap.Duration("elapsed", time.Since(start)),
		)
		return
	}
	m.logger.Info("shutdown complete", zap.Duration("elapsed", time.Since(start)))
}
