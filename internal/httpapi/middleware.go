package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mylxsw/asteria/log"

	"github.com/uniagent/gateway/pkg/agent"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id, honoring one the
// client already set.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Debugf(
			"%s %s %s %d %v",
			r.RemoteAddr,
			r.Method,
			r.URL.Path,
			wrapped.statusCode,
			time.Since(start),
		)
	})
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("panic recovered: %v", err)
				writeErrorFrame(w, http.StatusInternalServerError,
					agent.NewError(agent.TypeSystem, agent.CodeInternal, "internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware enforces bearer-token auth when keys are configured.
// The health endpoint stays open so probes work without credentials.
func AuthMiddleware(keys []string) func(http.Handler) http.Handler {
	valid := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		valid[k] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(valid) == 0 || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeErrorFrame(w, http.StatusUnauthorized,
					agent.NewError(agent.TypeAuth, agent.CodeMissingAPIKey, "missing API key"))
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				writeErrorFrame(w, http.StatusUnauthorized,
					agent.NewError(agent.TypeAuth, agent.CodeMissingAPIKey, "authorization header must use the Bearer scheme"))
				return
			}
			if _, ok := valid[token]; !ok {
				writeErrorFrame(w, http.StatusUnauthorized,
					agent.NewError(agent.TypeAuth, agent.CodeInvalidAPIKey, "invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher interface
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
