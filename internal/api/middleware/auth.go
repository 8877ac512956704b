package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/auth"
)

// principalKey is the context key for the authenticated principal.
type principalKey struct{}

// Authenticator resolves bearer tokens. *auth.Service implements it.
type Authenticator interface {
	Enabled() bool
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// Auth creates authentication middleware that accepts the API key or a
// device token as bearer credential. When the authenticator is disabled
// every request passes as anonymous.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticator.Enabled() {
				ctx := context.WithValue(r.Context(), principalKey{}, auth.Principal{Kind: auth.PrincipalAnonymous})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, models.CodeMissingAuth, "Authorization header is required")
				return
			}

			// Exactly "Bearer <token>", scheme case-insensitive
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeUnauthorized(w, r, models.CodeInvalidAuth, "Authorization header must be: Bearer <token>")
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), parts[1])
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, models.CodeInvalidToken, "device token has expired")
				case errors.Is(err, auth.ErrDeviceRevoked):
					writeUnauthorized(w, r, models.CodeInvalidToken, "device has been revoked")
				default:
					writeUnauthorized(w, r, models.CodeInvalidToken, "Invalid authentication token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey rejects device-token callers. It must run after Auth.
// Anonymous callers pass, since they only exist when auth is disabled.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()).Kind == auth.PrincipalDevice {
			problem := models.NewForbidden(GetRequestID(r.Context()), "this endpoint requires the API key")
			problem.Instance = r.URL.Path
			problem.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, code, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, code, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetPrincipal retrieves the authenticated principal from the context.
// The zero Principal is returned when the request did not pass through Auth.
func GetPrincipal(ctx context.Context) auth.Principal {
	if p, ok := ctx.Value(principalKey{}).(auth.Principal); ok {
		return p
	}
	return auth.Principal{}
}

// GetDeviceID returns the device of a device-token caller, or "".
func GetDeviceID(ctx context.Context) string {
	return GetPrincipal(ctx).DeviceID
}
