package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flexile-backend/internal/application/emails"
	"flexile-backend/internal/infrastructure/queue"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func notificationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Short: "Notification worker"}
	cmd.AddCommand(&cobra.Command{
		Use:   "work",
		Short: "Send queued payout notifications through Brevo until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.container.Config
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL is not configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sender := &emails.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
			log.Info().Str("queue", queue.RecipientDeactivatedQueue).Msg("notification worker started")
			err := queue.Consume(ctx, cfg.RabbitMQURL, queue.RecipientDeactivatedQueue, deactivationHandler(sender))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	})
	return cmd
}

func deactivationHandler(sender emails.Sender) func(context.Context, []byte) error {
	return func(ctx context.Context, body []byte) error {
		var n emails.BankAccountDeactivated
		if err := json.Unmarshal(body, &n); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		if n.ToEmail == "" {
			return errors.New("notification has no recipient")
		}
		return sender.SendBankAccountDeactivated(ctx, n)
	}
}
