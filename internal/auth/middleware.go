package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// TokenCookie is the name of the HttpOnly cookie that carries the token.
const TokenCookie = "token"

// contextKey is unexported so no other package can read or overwrite
// values stored under it.
type contextKey string

const userIDKey contextKey = "userID"

// SessionChecker reports whether userID is the session the Identity Store
// currently holds. *service.IdentityStore satisfies it.
type SessionChecker interface {
	IsCurrent(userID string) bool
}

// RequireAuth protects task routes.
//
// A request passes only if:
//  1. it carries a valid token (cookie or "Authorization: Bearer ..."), and
//  2. the token's user is the Identity Store's current session.
//
// The second check matters because the app keeps ONE active session, like
// the browser profile it models: after a logout or a login as someone else,
// older tokens stop working even though they have not expired.
func RequireAuth(tokens *TokenService, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil || !sessions.IsCurrent(userID) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user ID stored by RequireAuth.
// Returns ("", false) on routes that are not protected.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID reads the token from the Authorization header first, then
// from the cookie, and validates it.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return "", errors.New("auth: malformed Authorization header")
		}
		return tokens.Validate(strings.TrimSpace(raw))
	}

	cookie, err := r.Cookie(TokenCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
