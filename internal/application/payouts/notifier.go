package payouts

import (
	"context"

	"flexile-backend/internal/application/emails"
	"flexile-backend/internal/infrastructure/queue"

	"github.com/rs/zerolog/log"
)

// Notifier tells an investor their payout bank account was closed.
type Notifier interface {
	NotifyBankAccountDeactivated(ctx context.Context, n emails.BankAccountDeactivated) error
}

type publisher interface {
	Publish(ctx context.Context, queueName string, v interface{}) error
}

// QueueNotifier enqueues the notification for the email worker.
type QueueNotifier struct {
	Publisher publisher
}

func (q *QueueNotifier) NotifyBankAccountDeactivated(ctx context.Context, n emails.BankAccountDeactivated) error {
	return q.Publisher.Publish(ctx, queue.RecipientDeactivatedQueue, n)
}

// EmailNotifier sends the notification inline. Used when no broker is configured.
type EmailNotifier struct {
	Sender emails.Sender
}

func (e *EmailNotifier) NotifyBankAccountDeactivated(ctx context.Context, n emails.BankAccountDeactivated) error {
	return e.Sender.SendBankAccountDeactivated(ctx, n)
}

// LogNotifier only records the notification.
type LogNotifier struct{}

func (LogNotifier) NotifyBankAccountDeactivated(_ context.Context, n emails.BankAccountDeactivated) error {
	log.Warn().
		Str("payment_id", n.PaymentIDParam).
		Str("currency", n.Currency).
		Int64("net_amount_in_usd_cents", n.NetAmountInUsdCents).
		Msg("bank account deactivated; no notifier configured")
	return nil
}
