package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mealcart/backend/internal/eventbus"
	"github.com/mealcart/backend/internal/service"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire subscriptions whose paid period ended past the grace window",
	Long: `Runs one pass of the expiry sweeper. Active subscriptions whose end date
is older than EXPIRY_GRACE move to expired and a change message is published
for each one when RABBITMQ_URL is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var publisher eventbus.Publisher = eventbus.NewNoopPublisher(e.log)
		if e.cfg.RabbitMQURL != "" {
			if publisher, err = eventbus.NewRabbitMQPublisher(e.cfg.RabbitMQURL, e.log); err != nil {
				return err
			}
		}
		defer publisher.Close()

		subs := service.NewSubscriptionService(e.stores.Subscriptions, e.stores.Ledger, nil, e.cfg.MaxFailedPayments, e.cfg.ExpiryGrace)
		notifier := service.NewChangeNotifier(subs, publisher, nil, e.log)

		n, err := service.NewExpirySweeper(subs, notifier, e.cfg.SweepInterval, e.log).SweepOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d subscription(s)\n", n)
		return nil
	},
}
