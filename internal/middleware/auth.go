package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/recall/internal/auth"
)

// identityKey is the context key for the authenticated caller.
type identityKey struct{}

// TokenValidator validates bearer tokens. *auth.JWTService satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// SetIdentity stores the caller identity in the context, along with its user ID.
func SetIdentity(ctx context.Context, id auth.Identity) context.Context {
	ctx = SetUserID(ctx, id.UserID)
	return context.WithValue(ctx, identityKey{}, id)
}

// GetIdentity returns the caller identity, if the request was authenticated.
func GetIdentity(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// Authenticate rejects requests without a valid bearer token with 401 and
// stores the caller identity in the request context otherwise.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="recall"`)
				writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				message := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "Token has expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="recall", error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, message)
				return
			}

			ctx := SetIdentity(r.Context(), claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
