package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mealcart/backend/internal/service"
	"github.com/mealcart/backend/pkg/crypto"
	"github.com/mealcart/backend/pkg/payment"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Sign and replay payment gateway events",
}

var (
	signKind    string
	signEventID string
	signSecret  string
)

var webhookSignCmd = &cobra.Command{
	Use:   "sign [object.json]",
	Short: "Wrap a gateway object in an event envelope and sign it for the mock gateway",
	Long: `Reads the event's data object from the given file (or stdin) and prints the
signed envelope followed by the signature header, ready for curl:

  billingctl webhook sign --kind invoice.payment_succeeded invoice.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		payload, signature, err := signEvent(in, payment.Kind(signKind), signEventID, signSecret, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", payment.MockSignatureHeader, signature)
		return nil
	},
}

func signEvent(in io.Reader, kind payment.Kind, eventID, secret string, created time.Time) ([]byte, string, error) {
	if secret == "" {
		return nil, "", fmt.Errorf("webhook secret is required (--secret or WEBHOOK_SECRET)")
	}
	var object map[string]any
	if err := json.NewDecoder(in).Decode(&object); err != nil {
		return nil, "", fmt.Errorf("decode object: %w", err)
	}
	payload, err := payment.NewEventPayload(eventID, kind, created, object)
	if err != nil {
		return nil, "", err
	}
	return payload, payment.Sign(secret, payload), nil
}

var webhookReplayCmd = &cobra.Command{
	Use:   "replay <event-id>",
	Short: "Re-apply an archived event that was skipped for a missing record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		sealer, err := crypto.NewSealer(e.cfg.EncryptionKey)
		if err != nil {
			return err
		}
		subs := service.NewSubscriptionService(e.stores.Subscriptions, e.stores.Ledger, nil, e.cfg.MaxFailedPayments, e.cfg.ExpiryGrace)
		webhooks := service.NewWebhookService(payment.NewMockGateway(e.cfg.WebhookSecret), subs,
			e.stores.Events, e.stores.Tx, sealer, nil, e.cfg.WebhookTimeout)

		out, err := webhooks.Replay(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], out)
		return nil
	},
}

func init() {
	webhookSignCmd.Flags().StringVar(&signKind, "kind", string(payment.KindCheckoutCompleted), "event type")
	webhookSignCmd.Flags().StringVar(&signEventID, "id", "", "event id (generated when empty)")
	webhookSignCmd.Flags().StringVar(&signSecret, "secret", os.Getenv("WEBHOOK_SECRET"), "mock gateway webhook secret")

	webhookCmd.AddCommand(webhookSignCmd)
	webhookCmd.AddCommand(webhookReplayCmd)
}
