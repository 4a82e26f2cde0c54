package middleware

import (
	"net/http"

	"github.com/mealcart/backend/internal/contextkeys"
	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/logger"
)

// AdminOnly lets only admin tokens through. Must run after Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role := contextkeys.RoleFrom(r.Context()); role != domain.RoleAdmin {
			logger.FromContext(r.Context()).Warn("admin route denied", "role", role, "path", r.URL.Path)
			handler.Error(w, r, domain.ErrForbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
