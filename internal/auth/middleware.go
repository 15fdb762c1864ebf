package auth

import (
	"context"
	"net/http"

	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

// contextKey is unexported so only this package can read or write identity
// values in a request context.
type contextKey string

const identityKey contextKey = "identity"

// CookieName is the session cookie holding the JWT.
const CookieName = "token"

// RequireAuth enforces authentication. It reads the JWT from the session
// cookie (or an Authorization: Bearer header), validates it, loads the
// user, and stores the resolved Identity in the request context. Missing
// or invalid credentials end the request with 401.
//
// The full user record is loaded on every request so a role change takes
// effect immediately rather than at next login.
func RequireAuth(tokens *TokenService, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, tokens, users)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces that the already-resolved identity is an admin.
// It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.IsAdmin {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"forbidden","message":"admin privileges required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext retrieves the caller identity resolved by
// RequireAuth. The second return is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok && identity.ID != ""
}

// resolveIdentity validates the request's token and loads the user behind
// it.
func resolveIdentity(r *http.Request, tokens *TokenService, users repository.UserRepository) (model.Identity, error) {
	tokenStr, err := extractToken(r)
	if err != nil {
		return model.Identity{}, err
	}

	userID, err := tokens.Validate(tokenStr)
	if err != nil {
		return model.Identity{}, err
	}

	user, err := users.GetUserByID(r.Context(), userID)
	if err != nil {
		return model.Identity{}, err
	}

	return user.Identity(), nil
}

func extractToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	// Fallback for non-browser clients.
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):], nil
	}

	return "", http.ErrNoCookie
}
