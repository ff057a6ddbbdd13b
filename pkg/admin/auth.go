package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Shavakan/db-failover/pkg/logging"
)

var adminAuthLog = logging.WithComponent(logging.LogTypeAdmin, "auth")

// tokenSubject is the HMAC message for admin tokens. The expected token is
// hex(HMAC-SHA256(secret, tokenSubject)).
const tokenSubject = "db-failover-admin"

// AuthMiddleware validates the shared admin token on API endpoints.
type AuthMiddleware struct {
	secret  string
	enabled bool
}

// NewAuthMiddleware creates authentication middleware for admin endpoints.
// If secret is empty, authentication is disabled.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret:  secret,
		enabled: secret != "",
	}
}

// Wrap returns an http.Handler that validates the admin token before
// calling the next handler.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		token := m.extractToken(r)
		if token == "" {
			adminAuthLog.Warn("auth failed: missing token",
				slog.String(logging.KeyRemoteAddr, r.RemoteAddr))
			http.Error(w, "Unauthorized: missing admin token", http.StatusUnauthorized)
			return
		}

		if !m.validateToken(token) {
			adminAuthLog.Warn("auth failed: invalid token",
				slog.String(logging.KeyRemoteAddr, r.RemoteAddr))
			http.Error(w, "Unauthorized: invalid admin token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WrapFunc is a convenience method for wrapping http.HandlerFunc.
func (m *AuthMiddleware) WrapFunc(next http.HandlerFunc) http.Handler {
	return m.Wrap(next)
}

// IsEnabled returns whether authentication is enabled.
func (m *AuthMiddleware) IsEnabled() bool {
	return m.enabled
}

func (m *AuthMiddleware) extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (m *AuthMiddleware) validateToken(token string) bool {
	h := hmac.New(sha256.New, []byte(m.secret))
	h.Write([]byte(tokenSubject))
	expected := h.Sum(nil)

	provided, err := hex.DecodeString(token)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(expected, provided) == 1
}
