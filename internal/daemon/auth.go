package daemon

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"terport/internal/scheduler"
	"terport/internal/services"
)

// RequestIDHeader echoes the correlation id of every API request.
const RequestIDHeader = "X-Request-ID"

type capabilityKey struct{}

// capabilityMiddleware maps a valid bearer admin token to the
// manage_options capability. Requests without one carry no capability and
// are rejected by the scheduler's status gate. An empty token grants nothing.
func capabilityMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerMatches(r.Header.Get("Authorization"), token) {
				r = r.WithContext(context.WithValue(r.Context(), capabilityKey{}, scheduler.CapabilityManageOptions))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerMatches(header, token string) bool {
	if token == "" || !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	presented := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}

func capabilityFrom(ctx context.Context) string {
	value, _ := ctx.Value(capabilityKey{}).(string)
	return value
}

// requestIDMiddleware reuses a caller-supplied X-Request-ID or mints one, and
// puts it on the response and the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}
