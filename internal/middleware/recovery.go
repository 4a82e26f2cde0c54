package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/logger"
)

// Recovery turns a handler panic into a logged 500. http.ErrAbortHandler is re-raised
// so net/http can drop the connection as the handler asked.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			logger.FromContext(r.Context()).Error("panic recovered",
				"panic", rec,
				"method", r.Method,
				"stack", string(debug.Stack()),
			)
			handler.Error(w, r, domain.ErrInternal("internal server error", nil))
		}()
		next.ServeHTTP(w, r)
	})
}
