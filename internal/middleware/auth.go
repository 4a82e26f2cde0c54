package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mealcart/backend/internal/contextkeys"
	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/internal/service"
)

// Auth verifies the bearer JWT and puts the caller's claims and a user-tagged logger
// on the request context.
func Auth(authSvc *service.AuthService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				handler.Error(w, r, err)
				return
			}

			claims, err := authSvc.VerifyToken(token)
			if err != nil {
				handler.Error(w, r, domain.ErrUnauthorized("invalid or expired token"))
				return
			}

			ctx := contextkeys.WithUser(r.Context(), claims.Sub, claims.Email, claims.Role)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", claims.Sub)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrUnauthorized("no token provided")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", domain.ErrUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}
