package billing

import (
	"context"
	"errors"

	"flexile-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"gorm.io/gorm"
)

type ChargeRequest struct {
	AmountCents    int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
	Metadata       map[string]string
}

// Charger abstracts Stripe PaymentIntent creation for testability.
type Charger interface {
	CreatePaymentIntent(ctx context.Context, req ChargeRequest) (string, error)
}

// StripeCharger debits the company's saved bank account through a PaymentIntent.
type StripeCharger struct {
	SecretKey string
}

func (s *StripeCharger) CreatePaymentIntent(ctx context.Context, req ChargeRequest) (string, error) {
	if s.SecretKey == "" {
		return "", errors.New("Stripe not configured")
	}
	stripe.Key = s.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(req.Currency),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"us_bank_account"}),
		Confirm:            stripe.Bool(true),
		OffSession:         stripe.Bool(true),
		Metadata:           req.Metadata,
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

var chargeableStatuses = []string{domain.ConsolidatedInvoiceCreated, domain.ConsolidatedInvoiceFailed}

func chargeable(status string) bool {
	for _, st := range chargeableStatuses {
		if status == st {
			return true
		}
	}
	return false
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*domain.ConsolidatedInvoice, error) {
	var ci domain.ConsolidatedInvoice
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&ci).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConsolidatedInvoiceNotFound
		}
		return nil, err
	}
	return &ci, nil
}

// Charge collects a created (or previously failed) consolidated invoice from the company.
// The record and its invoices move to processing until Stripe reports the outcome.
func (s *Service) Charge(ctx context.Context, id uuid.UUID) (*domain.ConsolidatedInvoice, error) {
	ci, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, ci.CompanyID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock; a concurrent charge may have moved it on.
	if ci, err = s.find(ctx, id); err != nil {
		return nil, err
	}
	if !chargeable(ci.Status) {
		return nil, ErrNotChargeable
	}
	company, err := s.readyCompany(ctx, ci.CompanyID)
	if err != nil {
		return nil, err
	}
	if company.StripeCustomerID == nil || *company.StripeCustomerID == "" {
		return nil, ErrNoStripeCustomer
	}

	// One idempotency key per attempt so a failed charge can be retried.
	attempt := uuid.New().String()
	intentID, err := s.Charger.CreatePaymentIntent(ctx, ChargeRequest{
		AmountCents:    ci.TotalCents,
		Currency:       "usd",
		CustomerID:     *company.StripeCustomerID,
		IdempotencyKey: "consolidated_invoice:" + ci.ID.String() + ":" + attempt,
		Metadata: map[string]string{
			"consolidated_invoice_id": ci.ID.String(),
			"company_id":              ci.CompanyID.String(),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("consolidated_invoice_id", ci.ID.String()).Msg("stripe charge failed")
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.ConsolidatedInvoice{}).
			Where("id = ? AND status IN ?", ci.ID, chargeableStatuses).
			Updates(map[string]interface{}{
				"status":                   domain.ConsolidatedInvoiceProcessing,
				"stripe_payment_intent_id": intentID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Error().Str("consolidated_invoice_id", ci.ID.String()).Str("payment_intent_id", intentID).
				Msg("consolidated invoice changed while charging")
			return ErrNotChargeable
		}
		return tx.Model(&domain.Invoice{}).Where("consolidated_invoice_id = ?", ci.ID).
			Update("status", domain.InvoiceProcessing).Error
	})
	if err != nil {
		return nil, err
	}
	ci.Status = domain.ConsolidatedInvoiceProcessing
	ci.StripePaymentIntentID = &intentID
	log.Info().Str("consolidated_invoice_id", ci.ID.String()).Str("payment_intent_id", intentID).Msg("consolidated invoice charged")
	return ci, nil
}

// Settle records the PaymentIntent outcome. Unknown intents and already settled records
// are ignored so webhook redelivery is harmless.
func (s *Service) Settle(ctx context.Context, paymentIntentID string, succeeded bool) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ci domain.ConsolidatedInvoice
		if err := tx.Where("stripe_payment_intent_id = ?", paymentIntentID).First(&ci).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if ci.Status != domain.ConsolidatedInvoiceProcessing {
			return nil
		}
		status, invoiceStatus := domain.ConsolidatedInvoicePaid, domain.InvoicePaid
		if !succeeded {
			status, invoiceStatus = domain.ConsolidatedInvoiceFailed, domain.InvoicePaymentPending
		}
		if err := tx.Model(&ci).Update("status", status).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Invoice{}).Where("consolidated_invoice_id = ?", ci.ID).
			Update("status", invoiceStatus).Error; err != nil {
			return err
		}
		log.Info().Str("consolidated_invoice_id", ci.ID.String()).Str("status", status).Msg("consolidated invoice settled")
		return nil
	})
}
