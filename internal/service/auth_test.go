package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/internal/domain"
)

func TestRegister_StartsTrial(t *testing.T) {
	h := newHarness(t)

	resp, err := h.auth.Register(h.ctx(), &domain.RegisterRequest{Email: "Ana@Example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ana@example.com", resp.User.Email)
	assert.Equal(t, domain.StatusTrial, resp.User.SubscriptionStatus)
	require.NotNil(t, resp.User.TrialEndDate)
	assert.True(t, resp.User.TrialEndDate.Equal(t0.Add(7*24*time.Hour)))

	rec := h.record(resp.User.ID)
	assert.Equal(t, domain.StatusTrial, rec.Status)
	assert.Zero(t, rec.PaymentFailureCount)

	_, err = h.auth.Register(h.ctx(), &domain.RegisterRequest{Email: "ana@example.com", Password: "another1"})
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)

	_, err = h.auth.Register(h.ctx(), &domain.RegisterRequest{Email: "bob@example.com", Password: "123"})
	appErr, ok = domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Code)
}

func TestLogin_AndVerifyToken(t *testing.T) {
	h := newHarness(t)
	h.now = time.Now().UTC()
	userID := h.register("ana@example.com")

	resp, err := h.auth.Login(h.ctx(), &domain.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	claims, err := h.auth.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Sub)
	assert.Equal(t, "user", claims.Role)

	_, err = h.auth.Login(h.ctx(), &domain.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.Error(t, err)
	_, err = h.auth.Login(h.ctx(), &domain.LoginRequest{Email: "ghost@example.com", Password: "secret123"})
	assert.Error(t, err)

	_, err = h.auth.VerifyToken(resp.Token + "x")
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	h := newHarness(t)
	h.now = time.Now().UTC().Add(-8 * 24 * time.Hour)
	h.register("ana@example.com")

	resp, err := h.auth.Login(h.ctx(), &domain.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = h.auth.VerifyToken(resp.Token)
	assert.Error(t, err)
}

func TestSeedAdmin_Once(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.auth.SeedAdmin(ctx))
	require.NoError(t, h.auth.SeedAdmin(ctx))

	users, err := h.auth.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Role)

	me, err := h.auth.GetUserByID(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@mealcart.test", me.Email)

	_, err = h.auth.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
