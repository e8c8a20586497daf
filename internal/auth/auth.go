// Package auth guards the JSON API with a shared token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/drallgood/bookrequest/internal/logger"
)

// TokenHeader is accepted as an alternative to "Authorization: Bearer"
const TokenHeader = "X-Auth-Token"

// Config controls API authentication. An empty Token disables it.
type Config struct {
	// Token is either the plain token or a bcrypt hash of it
	Token         string
	AllowedOrigin string
}

// Middleware checks API requests for the configured token
type Middleware struct {
	token   string
	hashed  bool
	origin  string
	enabled bool
	logger  *logger.Logger
}

// NewMiddleware creates the middleware. Tokens starting with "$2" are treated as
// bcrypt hashes.
func NewMiddleware(cfg Config, log *logger.Logger) *Middleware {
	token := strings.TrimSpace(cfg.Token)
	return &Middleware{
		token:   token,
		hashed:  IsHash(token),
		origin:  cfg.AllowedOrigin,
		enabled: token != "",
		logger:  log,
	}
}

// Enabled reports whether a token is required
func (am *Middleware) Enabled() bool {
	return am != nil && am.enabled
}

// RequireToken rejects requests without a valid token. Preflight requests pass.
func (am *Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !am.Enabled() || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := tokenFromRequest(r)
		if token == "" {
			am.writeJSONError(w, r, &Error{Code: "no_token", Message: "No authentication token provided"})
			return
		}
		if !am.verify(token) {
			am.writeJSONError(w, r, &Error{Code: "invalid_token", Message: "Invalid authentication token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (am *Middleware) verify(token string) bool {
	if am.hashed {
		return VerifyToken(token, am.token) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(am.token)) == 1
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get(TokenHeader))
}

// CORS sets the CORS headers for the configured origin and answers preflight
// requests. Without an origin it does nothing.
func (am *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if am == nil || am.origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", am.origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TokenHeader)
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (am *Middleware) writeJSONError(w http.ResponseWriter, r *http.Request, authErr *Error) {
	am.logger.Debug("Authentication failed", map[string]interface{}{
		"path": r.URL.Path,
		"code": authErr.Code,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="bookrequest"`)
	w.WriteHeader(http.StatusUnauthorized)

	// same envelope as the API handlers
	response := map[string]interface{}{
		"success": false,
		"error":   authErr.Message,
		"code":    authErr.Code,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		am.logger.Error("Failed to encode auth error response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Error is an authentication failure
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// IsHash reports whether s looks like a bcrypt hash
func IsHash(s string) bool {
	return strings.HasPrefix(s, "$2")
}

// HashToken hashes a token using bcrypt
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(bytes), nil
}

// VerifyToken verifies a token against a bcrypt hash
func VerifyToken(token, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return fmt.Errorf("invalid token")
	}
	return nil
}
