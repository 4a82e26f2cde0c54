package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls to the provider.
var ErrCircuitOpen = errors.New("payment: gateway circuit open")

// BreakerConfig tunes the circuit breaker around gateway API calls.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	CallTimeout      time.Duration
}

// BreakerGateway guards the outbound API calls of a gateway with a circuit breaker
// and a per-call timeout. Signature checks are local and pass straight through.
type BreakerGateway struct {
	next        PaymentGateway
	cb          *gobreaker.CircuitBreaker[*Session]
	callTimeout time.Duration
}

func NewBreakerGateway(next PaymentGateway, cfg BreakerConfig, logger *slog.Logger) *BreakerGateway {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway breaker state changed",
				"gateway", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up says nothing about provider health
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerGateway{
		next:        next,
		cb:          gobreaker.NewCircuitBreaker[*Session](settings),
		callTimeout: cfg.CallTimeout,
	}
}

func (g *BreakerGateway) Name() string { return g.next.Name() }

func (g *BreakerGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	return g.call(ctx, func(ctx context.Context) (*Session, error) {
		return g.next.CreateCheckoutSession(ctx, params)
	})
}

func (g *BreakerGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	return g.call(ctx, func(ctx context.Context) (*Session, error) {
		return g.next.GetCheckoutSession(ctx, sessionID)
	})
}

func (g *BreakerGateway) SignatureHeader() string { return g.next.SignatureHeader() }

func (g *BreakerGateway) VerifySignature(payload []byte, signature string) error {
	return g.next.VerifySignature(payload, signature)
}

// State reports the breaker state for health output.
func (g *BreakerGateway) State() string {
	return g.cb.State().String()
}

func (g *BreakerGateway) call(ctx context.Context, fn func(context.Context) (*Session, error)) (*Session, error) {
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}
	s, err := g.cb.Execute(func() (*Session, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return s, err
}
