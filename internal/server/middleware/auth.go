package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

// callerKey stores the authenticated caller account in the request context.
const callerKey contextKey = "caller"

// callerHeader lets API-key clients declare which account they act for. Owner
// operations still require the admin key regardless of the declared account.
const callerHeader = "X-Caller-Account"

// Auth returns middleware that validates requests with either a Bearer token
// in the Authorization header or a static key in the X-API-Key header. The
// admin key authenticates as the service owner; the API key authenticates as
// the account named in X-Caller-Account. If both keys are empty, authentication
// is disabled and the declared account is trusted as-is.
func Auth(apiKey, adminKey, ownerAccount string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" && adminKey == "" {
				next.ServeHTTP(w, r.WithContext(
					withCaller(r.Context(), strings.TrimSpace(r.Header.Get(callerHeader)))))
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			// Constant-time comparisons to prevent timing attacks.
			if adminKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(adminKey)) == 1 {
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), ownerAccount)))
				return
			}
			if apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
				next.ServeHTTP(w, r.WithContext(
					withCaller(r.Context(), strings.TrimSpace(r.Header.Get(callerHeader)))))
				return
			}

			writeUnauthorized(w, "invalid authentication token")
		})
	}
}

func withCaller(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerKey, account)
}

// Caller returns the authenticated caller account, or "" when the request was
// not authenticated.
func Caller(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey).(string)
	return caller
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
