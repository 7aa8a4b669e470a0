package auth

import (
	"context"
	"net/http"
	"strings"

	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
)

type ctxUserKey struct{}

// RequireUser verifies the Bearer access token, loads the account and
// injects it into the request context. Requests without a valid token
// are rejected with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		var tokenStr string
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			tokenStr = strings.TrimSpace(h[7:])
		}
		if tokenStr == "" {
			logger.Warn("missing_bearer_token", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		claims, err := Verify(tokenStr, TokenAccess)
		if err != nil {
			logger.Warn("invalid_token", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		// The account may have been deleted since the token was issued.
		u, err := store.GetUser(claims.Subject)
		if err != nil {
			logger.Warn("token_user_missing", "user", claims.Subject)
			http.Error(w, `{"error":"invalid token or user"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey{}, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (models.User, bool) {
	if v := ctx.Value(ctxUserKey{}); v != nil {
		if u, ok := v.(models.User); ok {
			return u, true
		}
	}
	return models.User{}, false
}

// ContextWithUser injects a user; used by handler tests.
func ContextWithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, u)
}
