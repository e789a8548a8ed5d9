package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"proctorcap/internal/models"
)

type Config struct {
	APIKey string
	Log    zerolog.Logger
}

// APIKeyMiddleware validates API key authentication
func APIKeyMiddleware(config *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth if no API key configured (for development)
			if config.APIKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Check Authorization header (Bearer token)
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && matches(token, config.APIKey) {
				next.ServeHTTP(w, r)
				return
			}

			// Check X-API-Key header
			if matches(r.Header.Get("X-API-Key"), config.APIKey) {
				next.ServeHTTP(w, r)
				return
			}

			config.Log.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("rejected unauthenticated request")
			writeUnauthorized(w)
		})
	}
}

func matches(given, expected string) bool {
	if given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

func writeUnauthorized(w http.ResponseWriter) {
	models.NewResponse("Invalid or missing API key").
		WithCode("unauthorized").
		WithHint("Provide API key via Authorization: Bearer <key> or X-API-Key: <key>").
		WriteError(w, http.StatusUnauthorized)
}
