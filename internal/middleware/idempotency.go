package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	"github.com/voucherly/redemption-service/pkg/observability"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

const (
	// IdempotencyKeyHeader carries the caller-supplied deduplication key.
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency cache.
	ReplayedHeader = "X-Idempotent-Replayed"

	idempotencyKeyPrefix = "idem:"
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9-]{16,128}$`)

// idempotencyEntry is the cached response for one composite key.
type idempotencyEntry struct {
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdempotencyGate deduplicates retried mutating requests by a caller-supplied
// key scoped to (actor, method, path). A cached entry is replayed verbatim
// without re-invoking the handler. Cache unavailability fails open: the
// request proceeds uncached, and the ledger's own uniqueness constraints are
// the final backstop against double effects.
type IdempotencyGate struct {
	cache  ports.CacheStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotencyGate creates the gate.
func NewIdempotencyGate(cache ports.CacheStore, ttl time.Duration, logger *zap.Logger) *IdempotencyGate {
	return &IdempotencyGate{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// bodyCapture buffers the response so it can be cached after the handler
// runs, while still writing through to the client.
type bodyCapture struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *bodyCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *bodyCapture) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

// Wrap applies the gate to a mutating handler. Requests without a key pass
// through untouched; a malformed key is rejected before the handler runs.
func (g *IdempotencyGate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !idempotencyKeyPattern.MatchString(key) {
			writeStructuralError(w, http.StatusBadRequest, domain.ErrInvalidIdempotencyKey)
			return
		}

		compositeKey := g.compositeKey(r, key)

		// Replay path. A cache error here is logged and treated as a miss.
		if raw, err := g.cache.Get(r.Context(), compositeKey); err == nil {
			var entry idempotencyEntry
			if err := json.Unmarshal(raw, &entry); err == nil {
				observability.RecordIdempotentReplay()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotencyKeyHeader, key)
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(entry.StatusCode)
				w.Write(entry.Body)
				return
			}
			g.logger.Warn("corrupt idempotency entry, reprocessing", zap.Error(err))
		} else if !domain.IsDomainError(err, domain.ErrorCodeCacheMiss) {
			g.logger.Warn("idempotency lookup failed, proceeding uncached", zap.Error(err))
		}

		w.Header().Set(IdempotencyKeyHeader, key)
		capture := &bodyCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)

		// Persist both successful and failed processing: a retried request
		// must see the same answer either way. Write failures fail open.
		entry := idempotencyEntry{
			StatusCode: capture.status,
			Body:       capture.buf.Bytes(),
			CreatedAt:  timeutil.Now(),
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			g.logger.Error("marshal idempotency entry", zap.Error(err))
			return
		}
		if err := g.cache.Set(r.Context(), compositeKey, payload, g.ttl); err != nil {
			g.logger.Warn("idempotency store failed, response not cached", zap.Error(err))
		}
	})
}

// compositeKey scopes the caller's key to (actor, method, path). The same
// key on a different route or from a different actor is an independent
// request; this is a deliberate anti-replay boundary.
func (g *IdempotencyGate) compositeKey(r *http.Request, key string) string {
	actor := "anonymous"
	if ac, ok := auth.FromContext(r.Context()); ok {
		actor = ac.ProviderID
	}

	h := sha256.New()
	h.Write([]byte(actor))
	h.Write([]byte{'|'})
	h.Write([]byte(r.Method))
	h.Write([]byte{'|'})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{'|'})
	h.Write([]byte(key))
	return idempotencyKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
