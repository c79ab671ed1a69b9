package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/pkg/crypto"
)

// ScanClaims is the payload of a signed redemption ("scan") token minted
// by the voucher catalog when a customer claims a voucher.
type ScanClaims struct {
	jwt.RegisteredClaims
	VoucherID  string `json:"voucher_id"`
	CustomerID string `json:"customer_id"`
	ProviderID string `json:"provider_id"`
}

// ProviderClaims is the payload of a provider bearer token used to
// authenticate staff scanning devices against the API.
type ProviderClaims struct {
	jwt.RegisteredClaims
	ProviderID string   `json:"provider_id"`
	Roles      []string `json:"roles,omitempty"`
}

// Verification failure reasons. Expiry is distinguished because the
// resolver maps it to the EXPIRED business outcome rather than
// INVALID_TOKEN.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Verifier validates RS256 tokens against the catalog's public key.
// Clock skew tolerance and issuer are configuration, not protocol.
type Verifier struct {
	publicKey *rsa.PublicKey
	issuer    string
	leeway    time.Duration
}

// NewVerifier creates a verifier from a PEM-encoded RSA public key.
func NewVerifier(publicKeyPEM string, issuer string, leeway time.Duration) (*Verifier, error) {
	publicKey, err := crypto.ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse token public key: %w", err)
	}
	return &Verifier{
		publicKey: publicKey,
		issuer:    issuer,
		leeway:    leeway,
	}, nil
}

// LooksLikeToken reports whether the presented string has the three-part
// dotted shape of a signed token. Anything else is treated as a short code.
func LooksLikeToken(presented string) bool {
	return strings.Count(presented, ".") == 2
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	return opts
}

// VerifyScanToken verifies a scan token and returns the embedded claim.
// Any verification failure is terminal at this layer; there is no retry.
func (v *Verifier) VerifyScanToken(tokenString string) (*domain.RedemptionClaim, error) {
	claims := &ScanClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, v.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.VoucherID == "" || claims.CustomerID == "" || claims.ProviderID == "" {
		return nil, fmt.Errorf("%w: missing claim fields", ErrTokenInvalid)
	}

	var issuedAt, expiresAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &domain.RedemptionClaim{
		VoucherID:  claims.VoucherID,
		CustomerID: claims.CustomerID,
		ProviderID: claims.ProviderID,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// VerifyProviderToken verifies a provider bearer token.
func (v *Verifier) VerifyProviderToken(tokenString string) (*ProviderClaims, error) {
	claims := &ProviderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, v.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.ProviderID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Issuer mints scan and provider tokens. Production tokens come from the
// catalog service; this issuer serves tests and local tooling.
type Issuer struct {
	privateKey *rsa.PrivateKey
	issuer     string
}

// NewIssuer creates an issuer from a PEM-encoded RSA private key.
func NewIssuer(privateKeyPEM string, issuer string) (*Issuer, error) {
	privateKey, err := crypto.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse token private key: %w", err)
	}
	return &Issuer{privateKey: privateKey, issuer: issuer}, nil
}

// IssueScanToken mints a scan token for the given claim.
func (i *Issuer) IssueScanToken(claim *domain.RedemptionClaim) (string, error) {
	claims := ScanClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   claim.CustomerID,
			ExpiresAt: jwt.NewNumericDate(claim.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(claim.IssuedAt),
			NotBefore: jwt.NewNumericDate(claim.IssuedAt),
			ID:        uuid.New().String(),
		},
		VoucherID:  claim.VoucherID,
		CustomerID: claim.CustomerID,
		ProviderID: claim.ProviderID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(i.privateKey)
}

// IssueProviderToken mints a provider bearer token.
func (i *Issuer) IssueProviderToken(providerID string, roles []string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := ProviderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   providerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		ProviderID: providerID,
		Roles:      roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(i.privateKey)
}
