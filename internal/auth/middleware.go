package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
)

// Cookie names shared by the session middleware and the user handler.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the value.
type contextKey string

const userKey contextKey = "user"

// UserLookup resolves the subject of a verified token to a stored user.
// repository.UserRepository satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// ErrorWriter renders an authentication failure. The handler package passes
// its envelope writer so rejected requests look like every other error.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireUser is the session stage for protected routes.
//
// It reads the access token from the accessToken cookie, falling back to an
// "Authorization: Bearer <token>" header, verifies it, then loads the user it
// names. The full user record is stored in the request context. Any failure
// stops the chain:
//
//	no token               → 401 "Unauthorized request"
//	bad / expired token    → 401 "Invalid access token"
//	user no longer exists  → 401 "Invalid access token"
//	store failure          → passed through (500)
func RequireUser(tokens *TokenService, users UserLookup, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolveUser(r, tokens, users)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func resolveUser(r *http.Request, tokens *TokenService, users UserLookup) (*model.User, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return nil, apperror.Unauthorized("Unauthorized request")
	}

	claims, err := tokens.VerifyAccessToken(raw)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid access token")
	}

	user, err := users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid access token")
		}
		return nil, fmt.Errorf("auth: loading session user: %w", err)
	}
	return user, nil
}

// TokenFromRequest returns the raw access token, cookie first.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}

	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext retrieves the authenticated user. It returns (nil, false)
// outside of a RequireUser chain.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}
