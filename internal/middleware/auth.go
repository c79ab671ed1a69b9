package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
)

// Authenticator verifies provider bearer tokens and stores the resulting
// identity on the request context. Missing or invalid credentials are
// structural errors, not business outcomes.
type Authenticator struct {
	verifier *auth.Verifier
	logger   *zap.Logger
}

// NewAuthenticator creates the middleware.
func NewAuthenticator(verifier *auth.Verifier, logger *zap.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, logger: logger}
}

// Require rejects requests without a valid bearer token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeStructuralError(w, http.StatusUnauthorized, domain.ErrAuthMissing)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeStructuralError(w, http.StatusUnauthorized, domain.ErrAuthInvalid)
			return
		}

		claims, err := a.verifier.VerifyProviderToken(token)
		if err != nil {
			a.logger.Debug("provider token rejected", zap.Error(err))
			writeStructuralError(w, http.StatusUnauthorized, domain.ErrAuthInvalid)
			return
		}

		ctx := auth.WithAuthContext(r.Context(), &auth.AuthContext{
			ProviderID: claims.ProviderID,
			Roles:      claims.Roles,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin additionally checks for the admin role.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || !ac.IsAdmin() {
			writeStructuralError(w, http.StatusForbidden, domain.ErrAuthAccessDenied)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
