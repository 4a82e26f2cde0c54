package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockSignatureHeader carries "sha256=<hex hmac>" of the raw body.
const MockSignatureHeader = "X-Payment-Signature"

// MockGateway is an in-memory gateway for development and tests. Webhooks are
// authenticated with an HMAC-SHA256 of the raw body.
type MockGateway struct {
	secret  string
	baseURL string

	mu       sync.Mutex
	sessions map[string]*Session
	err      error
}

func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{
		secret:   secret,
		baseURL:  "https://checkout.mock.local/pay/",
		sessions: make(map[string]*Session),
	}
}

func (g *MockGateway) Name() string { return "mock" }

// FailWith makes every subsequent API call return err. Pass nil to recover.
func (g *MockGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}

	id := "cs_mock_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	s := &Session{
		ID:            id,
		URL:           g.baseURL + id,
		Status:        SessionOpen,
		PaymentStatus: "unpaid",
	}
	g.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (g *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("mock: no such checkout session %q", sessionID)
	}
	cp := *s
	return &cp, nil
}

// SetSessionState moves a mock session, mirroring what the hosted page would do.
func (g *MockGateway) SetSessionState(sessionID, status, paymentStatus string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[sessionID]; ok {
		s.Status = status
		s.PaymentStatus = paymentStatus
	}
}

func (g *MockGateway) SignatureHeader() string { return MockSignatureHeader }

func (g *MockGateway) VerifySignature(payload []byte, signature string) error {
	prefix, sig, ok := strings.Cut(signature, "=")
	if !ok || prefix != "sha256" || sig == "" {
		return ErrSignature
	}
	expected := Sign(g.secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrSignature
	}
	return nil
}

// Sign returns the header value the mock gateway accepts for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// NewEventPayload renders a gateway event envelope around object.
func NewEventPayload(id string, kind Kind, created time.Time, object any) ([]byte, error) {
	if id == "" {
		id = "evt_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    string(kind),
		"created": created.Unix(),
		"data":    map[string]any{"object": object},
	})
}
