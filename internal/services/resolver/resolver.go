package resolver

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

const codeKeyPrefix = "code:"

// Service resolves a presented token or short code to a redemption claim.
// Verification failures are terminal at this layer: there is no retry, the
// caller reports the outcome to the scanning client.
type Service struct {
	verifier *auth.Verifier
	cache    ports.CacheStore
	logger   *zap.Logger
}

// NewService creates a new resolver service
func NewService(verifier *auth.Verifier, cache ports.CacheStore, logger *zap.Logger) *Service {
	return &Service{
		verifier: verifier,
		cache:    cache,
		logger:   logger,
	}
}

// Resolve converts a presented string into a claim. Three-part dotted
// strings are verified as signed scan tokens; anything else is looked up
// as a short code. requestCustomerID supplies the customer for static
// codes, which carry none of their own.
func (s *Service) Resolve(ctx context.Context, presented, requestCustomerID string) (*domain.RedemptionClaim, domain.OutcomeCode) {
	if auth.LooksLikeToken(presented) {
		return s.resolveToken(presented)
	}
	return s.resolveCode(ctx, presented, requestCustomerID)
}

func (s *Service) resolveToken(presented string) (*domain.RedemptionClaim, domain.OutcomeCode) {
	claim, err := s.verifier.VerifyScanToken(presented)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, domain.OutcomeExpired
		}
		s.logger.Debug("scan token rejected", zap.Error(err))
		return nil, domain.OutcomeInvalidToken
	}
	return claim, ""
}

func (s *Service) resolveCode(ctx context.Context, code, requestCustomerID string) (*domain.RedemptionClaim, domain.OutcomeCode) {
	raw, err := s.cache.Get(ctx, codeKeyPrefix+code)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeCacheMiss) {
			return nil, domain.OutcomeUnknownCode
		}
		// The cache is the sole source of truth for code->claim mapping,
		// so unavailability fails the resolution outright.
		s.logger.Error("short code lookup failed", zap.Error(err))
		return nil, domain.OutcomeUnknownCode
	}

	var stored domain.StoredCode
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Error("corrupt stored code", zap.String("code", code), zap.Error(err))
		return nil, domain.OutcomeUnknownCode
	}

	claim := stored.Claim(requestCustomerID)
	if claim.Expired() {
		return nil, domain.OutcomeExpired
	}
	if claim.CustomerID == "" {
		// Static code with no customer in the request.
		return nil, domain.OutcomeInvalidToken
	}
	return claim, ""
}

// ValidateToken pre-validates a scan token for offline clients. It only
// verifies the signature and expiry; ledger state is not consulted, so a
// valid answer does not promise the eventual redemption will succeed.
func (s *Service) ValidateToken(presented string) (bool, string) {
	if !auth.LooksLikeToken(presented) {
		return false, "not a signed token"
	}
	if _, err := s.verifier.VerifyScanToken(presented); err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return false, "token expired"
		}
		return false, "token invalid"
	}
	return true, ""
}

// ConsumeCode marks a dynamic code as spent after its claim has been
// redeemed. The entry is kept until its natural expiry rather than deleted:
// an offline capture of the same code must still resolve to the claim when
// it syncs later, so the ledger can answer ALREADY_REDEEMED instead of the
// code looking like it never existed. Best-effort: the ledger guarantees
// at-most-once regardless of the marker.
func (s *Service) ConsumeCode(ctx context.Context, code string) {
	if auth.LooksLikeToken(code) {
		return
	}
	raw, err := s.cache.Get(ctx, codeKeyPrefix+code)
	if err != nil {
		return
	}
	var stored domain.StoredCode
	if err := json.Unmarshal(raw, &stored); err != nil || stored.Kind != domain.CodeKindDynamic || stored.Consumed {
		return
	}

	stored.Consumed = true
	payload, err := json.Marshal(stored)
	if err != nil {
		return
	}
	ttl := timeutil.TTLUntil(stored.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, codeKeyPrefix+code, payload, ttl); err != nil {
		s.logger.Warn("failed to mark dynamic code consumed", zap.Error(err))
	}
}
