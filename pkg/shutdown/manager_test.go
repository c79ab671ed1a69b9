package shutdown_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/pkg/shutdown"
)

func TestShutdown_ReverseRegistrationOrder(t *testing.T) {
	m := shutdown.NewManager(zap.NewNop(), time.Second)

	var order []string
	for _, name := range []string{"database", "cache", "dispatcher", "api-server"} {
		n := name
		m.Register(n, func(context.Context) error {
			order = append(order, n)
			return nil
		})
	}

	m.Shutdown()

	// Servers stop first so nothing generates work for the components
	// beneath them.
	assert.Equal(t, []string{"api-server", "dispatcher", "cache", "database"}, order)
}

func TestShutdown_FailureDoesNotBlockRemaining(t *testing.T) {
	m := shutdown.NewManager(zap.NewNop(), time.Second)

	var stopped []string
	m.Register("database", func(context.Context) error {
		stopped = append(stopped, "database")
		return nil
	})
	m.Register("dispatcher", func(context.Context) error {
		return errors.New("drain failed")
	})

	m.Shutdown()

	assert.Equal(t, []string{"database"}, stopped,
		"a failing component must not prevent the rest from stopping")
}

func TestShutdown_BudgetExhaustedSkipsRemaining(t *testing.T) {
	m := shutdown.NewManager(zap.NewNop(), 20*time.Millisecond)

	var databaseStopped bool
	m.Register("database", func(context.Context) error {
		databaseStopped = true
		return nil
	})
	m.Register("api-server", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	m.Shutdown()

	assert.False(t, databaseStopped,
		"components behind an exhausted budget are skipped, not run without a deadline")
}

func TestRegisterCloser(t *testing.T) {
	m := shutdown.NewManager(zap.NewNop(), time.Second)

	c := &closeRecorder{}
	m.RegisterCloser("cache", c)
	m.Shutdown()

	assert.True(t, c.closed)
}

type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
