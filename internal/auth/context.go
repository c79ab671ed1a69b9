package auth

import "context"

type contextKey string

const authContextKey contextKey = "auth_context"

// AuthContext carries the authenticated caller identity through a request.
type AuthContext struct {
	ProviderID string
	Roles      []string
}

// IsAdmin reports whether the caller carries the admin role.
func (a *AuthContext) IsAdmin() bool {
	for _, role := range a.Roles {
		if role == "admin" {
			return true
		}
	}
	return false
}

// WithAuthContext stores the auth context on the request context.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext retrieves the auth context, if any.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*AuthContext)
	return ac, ok
}
