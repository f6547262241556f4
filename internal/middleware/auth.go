package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/jason-s-yu/cordless/internal/session"
)

type ctxKey int

const userKey ctxKey = iota

// SessionResolver is implemented by session.Manager.
type SessionResolver interface {
	ResolveOrAnonymous(ctx context.Context, token string) *models.User
}

// RequireUser resolves the session cookie and rejects anonymous callers
// with 401 {"error":"Unauthorized"}.
func RequireUser(sessions SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := sessions.ResolveOrAnonymous(r.Context(), session.TokenFromRequest(r))
			if u == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the user stored by RequireUser, or nil.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}
