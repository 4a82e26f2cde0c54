package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/pkg/payment"
)

func TestSignEvent(t *testing.T) {
	created := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	payload, sig, err := signEvent(strings.NewReader(`{"id":"in_1","customer":"cus_1","billing_reason":"subscription_cycle"}`),
		payment.KindInvoicePaid, "evt_1", "whsec_test", created)
	require.NoError(t, err)

	require.NoError(t, payment.NewMockGateway("whsec_test").VerifySignature(payload, sig))

	ev, err := payment.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, payment.KindInvoicePaid, ev.Kind)
	assert.True(t, ev.Created.Equal(created))
}

func TestSignEvent_Errors(t *testing.T) {
	_, _, err := signEvent(strings.NewReader(`{}`), payment.KindInvoicePaid, "", "", time.Now())
	assert.Error(t, err)

	_, _, err = signEvent(strings.NewReader(`not json`), payment.KindInvoicePaid, "", "s", time.Now())
	assert.Error(t, err)
}

func TestWebhookSignCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(`{"id":"sub_1","customer":"cus_1","status":"past_due"}`))
	rootCmd.SetArgs([]string{"webhook", "sign", "--kind", "customer.subscription.updated", "--secret", "whsec_test"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"type":"customer.subscription.updated"`)
	assert.Contains(t, out.String(), payment.MockSignatureHeader+": sha256=")
}
