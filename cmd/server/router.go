package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mealcart/backend/internal/handler"
	appMiddleware "github.com/mealcart/backend/internal/middleware"
	"github.com/mealcart/backend/internal/service"
	"github.com/mealcart/backend/internal/ws"
)

// routes holds what the router mounts.
type routes struct {
	log         *slog.Logger
	corsOrigins []string
	authSvc     *service.AuthService
	subs        *service.SubscriptionService

	auth    *handler.AuthHandler
	payment *handler.PaymentHandler
	webhook *handler.WebhookHandler
	admin   *handler.AdminHandler
	health  *handler.HealthHandler
	status  *ws.StatusHandler
}

func newRouter(rt routes) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Logger(rt.log))
	r.Use(appMiddleware.Recovery)

	// Signed gateway deliveries skip CORS and the per-IP limiter.
	r.Post("/webhook/payment", rt.webhook.Payment)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Rate limiter (20 req/sec per IP, burst of 40)
		globalRL := appMiddleware.NewRateLimiter(20, 40)
		r.Use(globalRL.Middleware())

		// Public routes
		r.Get("/health", rt.health.Check)
		r.Post("/subscription/create-checkout", rt.payment.CreateCheckout)
		r.Get("/subscription/checkout/status/{sessionID}", rt.payment.CheckoutStatus)
		r.Get("/subscription/status/{userID}", rt.payment.Status)

		// Auth routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.StrictRateLimiter())
			r.Post("/api/auth/register", rt.auth.Register)
			r.Post("/api/auth/login", rt.auth.Login)
		})

		// Protected API routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.Auth(rt.authSvc))

			r.Get("/api/auth/me", rt.auth.Me)

			r.With(appMiddleware.RequireAccess(rt.subs)).Get("/api/premium/access", rt.payment.PremiumAccess)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.AdminOnly)
				r.Get("/api/admin/stats", rt.admin.GetStats)
				r.Get("/api/admin/users", rt.admin.ListUsers)
				r.Get("/api/admin/users/{id}/ledger", rt.admin.UserLedger)
				r.Get("/api/admin/webhook-events", rt.admin.WebhookEvents)
				r.Post("/api/admin/webhook-events/{id}/replay", rt.admin.ReplayWebhookEvent)
			})
		})

		// WebSocket status stream (auth via query param)
		r.HandleFunc("/subscription/ws", rt.status.Handle)
	})

	return r
}
