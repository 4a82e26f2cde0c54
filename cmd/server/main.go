package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mealcart/backend/internal/config"
	"github.com/mealcart/backend/internal/eventbus"
	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/internal/repository"
	"github.com/mealcart/backend/internal/service"
	"github.com/mealcart/backend/internal/ws"
	"github.com/mealcart/backend/pkg/crypto"
	"github.com/mealcart/backend/pkg/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Initialize database
	stores, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer stores.Close()
	log.Info("database connected & migrated", "driver", stores.Driver)

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	// Status cache (optional)
	var cache service.StatusCache = repository.NoopStatusCache{}
	var cachePing handler.PingFunc
	if cfg.RedisURL != "" {
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		cache = repository.NewStatusCache(client, cfg.StatusCacheTTL)
		cachePing = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		log.Info("redis status cache enabled")
	}

	// Change bus (optional)
	var publisher eventbus.Publisher = eventbus.NewNoopPublisher(log)
	if cfg.RabbitMQURL != "" {
		p, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		publisher = p
		log.Info("rabbitmq publisher enabled", "exchange", eventbus.ExchangeName)
	}
	defer publisher.Close()

	gateway := payment.NewBreakerGateway(newGateway(cfg), payment.BreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		CallTimeout:      cfg.GatewayCallTimeout,
	}, log)
	log.Info("payment gateway ready", "gateway", gateway.Name())

	// Services
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, cfg.TrialPeriod, stores.Accounts, log)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		return fmt.Errorf("admin seed: %w", err)
	}

	subSvc := service.NewSubscriptionService(stores.Subscriptions, stores.Ledger, cache, cfg.MaxFailedPayments, cfg.ExpiryGrace)
	checkoutSvc := service.NewCheckoutService(stores.Accounts, stores.Subscriptions, stores.Ledger, gateway, cfg.PlanAmount, cfg.Currency)

	hub := ws.NewHub(log)
	notifier := service.NewChangeNotifier(subSvc, publisher, hub, log)
	webhookSvc := service.NewWebhookService(gateway, subSvc, stores.Events, stores.Tx, sealer, notifier, cfg.WebhookTimeout)

	service.NewExpirySweeper(subSvc, notifier, cfg.SweepInterval, log).Start(ctx)

	// Router
	r := newRouter(routes{
		log:         log,
		corsOrigins: cfg.CORSOrigins,
		authSvc:     authSvc,
		subs:        subSvc,
		auth:        handler.NewAuthHandler(authSvc),
		payment:     handler.NewPaymentHandler(checkoutSvc, subSvc),
		webhook:     handler.NewWebhookHandler(webhookSvc),
		admin:       handler.NewAdminHandler(authSvc, subSvc, checkoutSvc, webhookSvc, gateway),
		health:      handler.NewHealthHandler(stores.Ping, cachePing),
		status:      ws.NewStatusHandler(hub, authSvc, subSvc, log),
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0 for WebSocket connections (they are long-lived)
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("mealcart billing listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newGateway(cfg *config.Config) payment.PaymentGateway {
	if cfg.Gateway == "stripe" {
		return payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripePriceID, cfg.WebhookSecret)
	}
	return payment.NewMockGateway(cfg.WebhookSecret)
}
