package middleware

import (
	"net/http"
)

// SecurityHeaders adds security-related HTTP headers to responses
// These headers help protect against common web vulnerabilities
type SecurityHeaders struct {
	// Allow customization for development vs production
	isDevelopment bool
}

// NewSecurityHeaders creates a new security headers middleware
func NewSecurityHeaders(isDevelopment bool) *SecurityHeaders {
	return &SecurityHeaders{
		isDevelopment: isDevelopment,
	}
}

// Middleware wraps an HTTP handler with security headers
func (sh *SecurityHeaders) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// X-Frame-Options: Prevents clickjacking attacks
		w.Header().Set("X-Frame-Options", "DENY")

		// X-Content-Type-Options: Prevents MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// X-XSS-Protection: Enables XSS filter in older browsers
		// Modern browsers use CSP instead, but this helps legacy browsers
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		// Strict-Transport-Security (HSTS): Forces HTTPS connections
		// Only set in production to avoid issues with local development
		if !sh.isDevelopment {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		// Content-Security-Policy: restrictive policy suitable for an API
		// service that serves no HTML
		csp := "default-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'none'; " +
			"form-action 'none'"
		if sh.isDevelopment {
			// Allow inline scripts/styles for development tools
			csp = "default-src 'self'; " +
				"script-src 'self' 'unsafe-inline'; " +
				"style-src 'self' 'unsafe-inline'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'"
		}
		w.Header().Set("Content-Security-Policy", csp)

		// Referrer-Policy: prevents leaking URLs (which may embed codes or
		// case ids) to third parties
		w.Header().Set("Referrer-Policy", "no-referrer")

		// Permissions-Policy: disables browser features a scanning API
		// never needs
		w.Header().Set("Permissions-Policy",
			"geolocation=(), "+
				"microphone=(), "+
				"camera=(), "+
				"payment=(), "+
				"usb=(), "+
				"magnetometer=(), "+
				"gyroscope=(), "+
				"accelerometer=()")

		// X-Permitted-Cross-Domain-Policies: none prevents all cross-domain
		// access from Flash/PDF clients
		w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

		next.ServeHTTP(w, r)
	})
}

// MiddlewareFunc returns a function that wraps an http.HandlerFunc
// This is useful for simpler handler chains
func (sh *SecurityHeaders) MiddlewareFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh.Middleware(next).ServeHTTP(w, r)
	}
}
