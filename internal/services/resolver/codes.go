package resolver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// codeAlphabet is Crockford base32: no vowels that form words, no
// ambiguous I/L/O/U, safe to read over a counter.
const codeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// IssueParams describes a short code to mint.
type IssueParams struct {
	Kind       domain.CodeKind
	VoucherID  string
	CustomerID string // required for dynamic codes, ignored for static
	ProviderID string
	TTL        time.Duration
	Length     int
}

// IssueCode mints a short code and stores its claim in the cache with the
// given TTL. Dynamic codes are single-use and bound to one customer;
// static codes are campaign-wide and resolve the customer from the
// request at redemption time.
func (s *Service) IssueCode(ctx context.Context, p IssueParams) (string, error) {
	if p.VoucherID == "" || p.ProviderID == "" {
		return "", domain.ErrValidationMissingField
	}
	if p.Kind == domain.CodeKindDynamic && p.CustomerID == "" {
		return "", domain.NewDomainError(domain.ErrorCodeValidationMissingField,
			"dynamic codes require a customer id")
	}
	if p.Length <= 0 {
		p.Length = 8
	}

	customerID := p.CustomerID
	if p.Kind == domain.CodeKindStatic {
		customerID = ""
	}

	now := timeutil.Now()
	stored := domain.StoredCode{
		Kind:       p.Kind,
		VoucherID:  p.VoucherID,
		CustomerID: customerID,
		ProviderID: p.ProviderID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(p.TTL),
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeInternalError, "marshal stored code", err)
	}

	code, err := generateCode(p.Length)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeInternalError, "generate code", err)
	}

	if err := s.cache.Set(ctx, codeKeyPrefix+code, payload, p.TTL); err != nil {
		return "", err
	}
	return code, nil
}

func generateCode(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	code := make([]byte, length)
	for i, b := range raw {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
