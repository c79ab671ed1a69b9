package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/adapters/memcache"
	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/middleware"
)

const validKey = "retry-key-0123456789abcdef"

// countingHandler records how many times the wrapped handler actually ran.
type countingHandler struct {
	calls  atomic.Int64
	status int
	body   string
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	w.Write([]byte(h.body))
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func newGate(t *testing.T) (*middleware.IdempotencyGate, *memcache.Store) {
	t.Helper()
	cache := memcache.NewStore()
	t.Cleanup(cache.Close)
	return middleware.NewIdempotencyGate(cache, time.Hour, zap.NewNop()), cache
}

func request(key string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/redemptions", strings.NewReader(`{}`))
	if key != "" {
		r.Header.Set(middleware.IdempotencyKeyHeader, key)
	}
	ctx := auth.WithAuthContext(r.Context(), &auth.AuthContext{ProviderID: "prov-1"})
	return r.WithContext(ctx)
}

func TestIdempotencyGate_ReplaySkipsHandler(t *testing.T) {
	gate, _ := newGate(t)
	handler := &countingHandler{status: http.StatusOK, body: `{"success":true,"redemption_id":"red-1"}`}
	wrapped := gate.Wrap(handler)

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, request(validKey))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get(middleware.ReplayedHeader))

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, request(validKey))

	assert.Equal(t, int64(1), handler.calls.Load(), "handler must not run twice")
	assert.Equal(t, first.Body.String(), second.Body.String(), "replay must be byte-identical")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.ReplayedHeader))
	assert.Equal(t, validKey, second.Header().Get(middleware.IdempotencyKeyHeader))
}

func TestIdempotencyGate_FailureResponsesReplayToo(t *testing.T) {
	gate, _ := newGate(t)
	handler := &countingHandler{status: http.StatusOK, body: `{"success":false,"error_code":"EXPIRED"}`}
	wrapped := gate.Wrap(handler)

	wrapped.ServeHTTP(httptest.NewRecorder(), request(validKey))

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, request(validKey))

	assert.Equal(t, int64(1), handler.calls.Load())
	assert.Contains(t, second.Body.String(), "EXPIRED")
}

func TestIdempotencyGate_NoKeyPassesThrough(t *testing.T) {
	gate, _ := newGate(t)
	handler := &countingHandler{status: http.StatusOK, body: `{}`}
	wrapped := gate.Wrap(handler)

	wrapped.ServeHTTP(httptest.NewRecorder(), request(""))
	wrapped.ServeHTTP(httptest.NewRecorder(), request(""))

	assert.Equal(t, int64(2), handler.calls.Load(), "keyless requests are never deduplicated")
}

func TestIdempotencyGate_MalformedKeyRejected(t *testing.T) {
	gate, _ := newGate(t)
	handler := &countingHandler{status: http.StatusOK, body: `{}`}
	wrapped := gate.Wrap(handler)

	for _, key := range []string{
		"short",                          // under 16 chars
		strings.Repeat("a", 129),         // over 128 chars
		"has spaces in it definitely no", // illegal characters
		"under_score_0123456789",
	} {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, request(key))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "key %q", key)
	}
	assert.Zero(t, handler.calls.Load(), "malformed keys never reach the handler")
}

func TestIdempotencyGate_FailsOpenWhenCacheDown(t *testing.T) {
	gate := middleware.NewIdempotencyGate(brokenCache{}, time.Hour, zap.NewNop())
	handler := &countingHandler{status: http.StatusOK, body: `{"success":true}`}
	wrapped := gate.Wrap(handler)

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, request(validKey))
	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, request(validKey))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, int64(2), handler.calls.Load(), "cache outage must not block processing")
}

func TestIdempotencyGate_KeyScopedToActorAndPath(t *testing.T) {
	gate, _ := newGate(t)
	handler := &countingHandler{status: http.StatusOK, body: `{}`}
	wrapped := gate.Wrap(handler)

	wrapped.ServeHTTP(httptest.NewRecorder(), request(validKey))

	// Same key, different actor.
	other := httptest.NewRequest(http.MethodPost, "/redemptions", strings.NewReader(`{}`))
	other.Header.Set(middleware.IdempotencyKeyHeader, validKey)
	other = other.WithContext(auth.WithAuthContext(other.Context(), &auth.AuthContext{ProviderID: "prov-2"}))
	wrapped.ServeHTTP(httptest.NewRecorder(), other)

	// Same key and actor, different path.
	sync := httptest.NewRequest(http.MethodPost, "/redemptions/sync-offline", strings.NewReader(`{}`))
	sync.Header.Set(middleware.IdempotencyKeyHeader, validKey)
	sync = sync.WithContext(auth.WithAuthContext(sync.Context(), &auth.AuthContext{ProviderID: "prov-1"}))
	wrapped.ServeHTTP(httptest.NewRecorder(), sync)

	assert.Equal(t, int64(3), handler.calls.Load(), "a key only deduplicates within (actor, method, path)")
}
