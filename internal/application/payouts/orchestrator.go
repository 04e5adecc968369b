// Package payouts moves a batch of one investor's dividends or buyback proceeds to their
// bank account through the payment processor.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flexile-backend/internal/application/emails"
	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/infrastructure/wise"
	"flexile-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNoItems                  = errors.New("No payout items given")
	ErrItemsNotFound            = errors.New("Payout items not found")
	ErrMixedInvestors           = errors.New("Payout items belong to more than one investor")
	ErrInvalidItemStatus        = errors.New("Payout item is not payable in its current status")
	ErrInvestorNotFound         = errors.New("Investor not found")
	ErrOnboardingIncomplete     = errors.New("Investor has not completed onboarding")
	ErrTaxInformationUnverified = errors.New("Investor tax information is not confirmed and verified")
	ErrNoBankAccount            = errors.New("Investor has no bank account for payouts")
	ErrInsufficientBalance      = errors.New("Insufficient processor balance for payout")
	ErrRecipientInactive        = errors.New("recipient bank account is no longer active")
	ErrNoBalancePaymentOption   = errors.New("quote has no balance payment option")
	ErrFundingNotCompleted      = errors.New("transfer funding was not completed")
	ErrPaymentNotFound          = errors.New("Payment not found")
	ErrNoTransfer               = errors.New("Payment has no transfer")
)

// Named failure kinds of the external steps.
const (
	KindExchangeRateFailed      = "exchange_rate_failed"
	KindRecipientLookupFailed   = "recipient_lookup_failed"
	KindRecipientInactive       = "recipient_inactive"
	KindQuoteFailed             = "quote_failed"
	KindTransferCreationFailed  = "transfer_creation_failed"
	KindTransferFundingFailed   = "transfer_funding_failed"
	// The transfer was funded but the payment row could not be updated.
	// The payment is left unfailed; SyncTransfer reconciles it.
	KindFundedStatusNotRecorded = "funded_status_not_recorded"
)

// TransferError is a failed external step. Except for KindFundedStatusNotRecorded
// the payment is already marked failed.
type TransferError struct {
	Kind      string
	PaymentID uuid.UUID
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("payment %s: %s: %v", e.PaymentID, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Processor is the payment processor API the orchestrator drives.
type Processor interface {
	GetExchangeRate(ctx context.Context, targetCurrency string) (decimal.Decimal, error)
	GetRecipientAccount(ctx context.Context, recipientID string) (*wise.Account, error)
	CreateQuote(ctx context.Context, req wise.QuoteRequest) (*wise.Quote, error)
	CreateTransfer(ctx context.Context, req wise.TransferRequest) (*wise.Transfer, error)
	FundTransfer(ctx context.Context, transferID string) (*wise.FundResult, error)
	GetTransfer(ctx context.Context, transferID string) (*wise.Transfer, error)
	DeliveryEstimate(ctx context.Context, transferID string) (time.Time, error)
	HasSufficientBalance(ctx context.Context, amountUsd decimal.Decimal) (bool, error)
}

// Outcome is the result of a batch that did not fail. Retained batches have no Payment.
type Outcome struct {
	Status         string          `json:"status"`
	RetainedReason string          `json:"retained_reason,omitempty"`
	Payment        *domain.Payment `json:"payment,omitempty"`
}

type Orchestrator struct {
	DB                  *gorm.DB
	Processor           Processor
	Locker              locker.Locker
	SanctionedCountries []string
	LockTTL             time.Duration
	Now                 func() time.Time
}

func LockKey(payoutType string, investorID uuid.UUID) string {
	return "payout:" + payoutType + ":" + investorID.String()
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

type batch struct {
	investor  domain.CompanyInvestor
	recipient *domain.WiseRecipient
	items     []Item
}

// Process pays itemIDs to investorID. Eligibility outcomes (sanctions, minimum amount)
// come back as a retained Outcome. A failure after the Payment exists leaves the Payment
// failed and returns a *TransferError; items already moved to processing stay there.
func (o *Orchestrator) Process(ctx context.Context, v Variant, investorID uuid.UUID, itemIDs []uuid.UUID) (*Outcome, error) {
	if len(itemIDs) == 0 {
		return nil, ErrNoItems
	}
	ttl := o.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	release, err := o.Locker.Lock(ctx, LockKey(v.PayoutType, investorID), ttl)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := o.load(ctx, v, investorID, itemIDs)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("investor_id", investorID.String()).Str("payout_type", v.PayoutType).Logger()

	if o.sanctioned(b.investor.User.CountryCode) {
		if err := o.retain(ctx, v, b.items, domain.RetainedReasonOFACSanctionedCountry); err != nil {
			return nil, err
		}
		logger.Info().Str("country", b.investor.User.CountryCode).Msg("payout retained: sanctioned country")
		return &Outcome{Status: domain.PayoutItemRetained, RetainedReason: domain.RetainedReasonOFACSanctionedCountry}, nil
	}

	net := v.NetAmountInCents(b.items)
	netUsd := money.Cents(net).Div(money.Hundred)
	ok, err := o.Processor.HasSufficientBalance(ctx, netUsd)
	if err != nil {
		return nil, fmt.Errorf("balance check: %w", err)
	}
	if !ok {
		logger.Error().Int64("net_amount_in_cents", net).Msg("payout blocked: insufficient balance")
		return nil, ErrInsufficientBalance
	}

	if v.Validate != nil {
		if reason := v.Validate(&b.investor, net); reason != "" {
			if err := o.retain(ctx, v, b.items, reason); err != nil {
				return nil, err
			}
			logger.Info().Str("reason", reason).Int64("net_amount_in_cents", net).Msg("payout retained")
			return &Outcome{Status: domain.PayoutItemRetained, RetainedReason: reason}, nil
		}
	}

	payment, err := o.issue(ctx, v, b, net)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("payment_id", payment.ID.String()).Logger()
	logger.Info().Str("step", "payment_created").Str("processor_uuid", payment.ProcessorUUID).Msg("payout started")

	if err := o.transfer(ctx, v, b, payment, logger); err != nil {
		return nil, err
	}
	return &Outcome{Status: domain.PayoutItemProcessing, Payment: payment}, nil
}

// load checks every precondition without writing anything.
func (o *Orchestrator) load(ctx context.Context, v Variant, investorID uuid.UUID, itemIDs []uuid.UUID) (*batch, error) {
	db := o.DB.WithContext(ctx)
	var b batch
	if err := db.Table(v.Table).Where("id IN ?", itemIDs).Find(&b.items).Error; err != nil {
		return nil, err
	}
	if len(b.items) != len(uniqueIDs(itemIDs)) {
		return nil, ErrItemsNotFound
	}
	for _, it := range b.items {
		if it.CompanyInvestorID != investorID {
			return nil, ErrMixedInvestors
		}
		if !v.validStatus(it.Status) {
			return nil, fmt.Errorf("%w: %s is %s", ErrInvalidItemStatus, it.ID, it.Status)
		}
	}

	if err := db.Preload("User").Where("id = ?", investorID).First(&b.investor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvestorNotFound
		}
		return nil, err
	}
	if b.investor.OnboardingCompletedAt == nil {
		return nil, ErrOnboardingIncomplete
	}
	if b.investor.User.TaxInformationConfirmedAt == nil || !b.investor.User.TaxIDVerified() {
		return nil, ErrTaxInformationUnverified
	}

	var recipient domain.WiseRecipient
	err := db.Where("user_id = ? AND used_for_dividends = ?", b.investor.UserID, true).
		Order("created_at DESC").First(&recipient).Error
	switch {
	case err == nil:
		b.recipient = &recipient
	case errors.Is(err, gorm.ErrRecordNotFound):
		if v.RequiresBankAccount {
			return nil, ErrNoBankAccount
		}
	default:
		return nil, err
	}
	return &b, nil
}

func uniqueIDs(ids []uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func (o *Orchestrator) sanctioned(country string) bool {
	for _, c := range o.SanctionedCountries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}

func idsOf(items []Item) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func (o *Orchestrator) retain(ctx context.Context, v Variant, items []Item, reason string) error {
	return o.DB.WithContext(ctx).Table(v.Table).Where("id IN ?", idsOf(items)).Updates(map[string]interface{}{
		"status":          domain.PayoutItemRetained,
		"retained_reason": reason,
		"updated_at":      o.now(),
	}).Error
}

// issue stamps fees, flips items to issued and creates the Payment, all in one transaction.
func (o *Orchestrator) issue(ctx context.Context, v Variant, b *batch, net int64) (*domain.Payment, error) {
	payment := &domain.Payment{
		PayoutType:          v.PayoutType,
		CompanyInvestorID:   b.investor.ID,
		ProcessorUUID:       uuid.New().String(),
		Status:              domain.PaymentInitial,
		NetAmountInUsdCents: net,
	}
	if b.recipient != nil {
		payment.WiseRecipientID = &b.recipient.ID
		payment.TransferCurrency = strings.ToUpper(b.recipient.Currency)
		payment.RecipientLast4 = b.recipient.LastFourDigits
	}

	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range b.items {
			fee := int64(0)
			if v.Fee != nil {
				var err error
				if fee, err = v.Fee(b.items[i]); err != nil {
					return err
				}
			}
			if err := tx.Table(v.Table).Where("id = ?", b.items[i].ID).Updates(map[string]interface{}{
				"status":               v.IssuedStatus,
				"retained_reason":      nil,
				"processing_fee_cents": fee,
				"updated_at":           o.now(),
			}).Error; err != nil {
				return err
			}
			b.items[i].Status = v.IssuedStatus
			b.items[i].ProcessingFeeCents = fee
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		links := make([]domain.PaymentItem, 0, len(b.items))
		for _, it := range b.items {
			links = append(links, domain.PaymentItem{PaymentID: payment.ID, ItemType: v.PayoutType, ItemID: it.ID})
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// transfer runs the external steps in order. Any failure before funding
// completes marks the payment failed.
func (o *Orchestrator) transfer(ctx context.Context, v Variant, b *batch, payment *domain.Payment, logger zerolog.Logger) error {
	fail := func(kind string, err error) error {
		reason := kind + ": " + err.Error()
		if uerr := o.DB.WithContext(ctx).Model(payment).Updates(map[string]interface{}{
			"status":         domain.PaymentFailed,
			"failure_reason": reason,
		}).Error; uerr != nil {
			logger.Error().Err(uerr).Msg("could not mark payment failed")
		}
		payment.Status = domain.PaymentFailed
		payment.FailureReason = &reason
		logger.Error().Err(err).Str("step", kind).Msg("payout failed")
		return &TransferError{Kind: kind, PaymentID: payment.ID, Err: err}
	}
	if b.recipient == nil {
		return fail(KindRecipientLookupFailed, ErrNoBankAccount)
	}

	currency := payment.TransferCurrency
	amount := money.Cents(payment.NetAmountInUsdCents).Div(money.Hundred)
	if currency != "USD" {
		rate, err := o.Processor.GetExchangeRate(ctx, currency)
		if err != nil {
			return fail(KindExchangeRateFailed, err)
		}
		amount = amount.Mul(rate).Round(2)
		logger.Info().Str("step", "exchange_rate").Str("currency", currency).Str("rate", rate.String()).Msg("payout converted")
	}

	account, err := o.Processor.GetRecipientAccount(ctx, b.recipient.RecipientID)
	if err != nil {
		return fail(KindRecipientLookupFailed, err)
	}
	if !account.Active {
		if derr := o.DB.WithContext(ctx).Delete(b.recipient).Error; derr != nil {
			logger.Error().Err(derr).Msg("could not remove inactive bank account")
		}
		o.notifyDeactivated(ctx, v, b, payment, amount, currency, logger)
		return fail(KindRecipientInactive, ErrRecipientInactive)
	}

	quote, err := o.Processor.CreateQuote(ctx, wise.QuoteRequest{
		TargetCurrency: currency,
		Amount:         amount,
		RecipientID:    b.recipient.RecipientID,
	})
	if err != nil {
		return fail(KindQuoteFailed, err)
	}
	option, ok := quote.BalanceOption()
	if !ok {
		return fail(KindQuoteFailed, ErrNoBalancePaymentOption)
	}
	feeCents := money.RoundCents(option.Fee.Total.Mul(money.Hundred))
	sourceCents := money.RoundCents(option.SourceAmount.Mul(money.Hundred))
	payment.WiseQuoteID = &quote.ID
	payment.WiseQuote = datatypes.JSON(quote.Raw)
	payment.TransferFeeInCents = &feeCents
	payment.TotalTransactionCents = &sourceCents
	payment.ConversionRate = decimal.NewNullDecimal(quote.Rate)
	if err := o.DB.WithContext(ctx).Model(payment).Updates(map[string]interface{}{
		"wise_quote_id":           quote.ID,
		"wise_quote":              payment.WiseQuote,
		"transfer_fee_in_cents":   feeCents,
		"total_transaction_cents": sourceCents,
		"conversion_rate":         payment.ConversionRate,
	}).Error; err != nil {
		return fail(KindQuoteFailed, err)
	}
	logger.Info().Str("step", "quote").Str("quote_id", quote.ID).Int64("fee_cents", feeCents).Msg("payout quoted")

	tr, err := o.Processor.CreateTransfer(ctx, wise.TransferRequest{
		QuoteID:             quote.ID,
		RecipientID:         b.recipient.RecipientID,
		UniqueTransactionID: payment.ProcessorUUID,
		Reference:           v.Reference,
	})
	if err != nil {
		return fail(KindTransferCreationFailed, err)
	}
	transferID := strconv.FormatInt(tr.ID, 10)
	payment.TransferID = &transferID
	payment.WiseTransferStatus = &tr.Status
	if tr.Rate.IsPositive() {
		payment.ConversionRate = decimal.NewNullDecimal(tr.Rate)
	}
	err = o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payment).Updates(map[string]interface{}{
			"transfer_id":          transferID,
			"wise_transfer_status": tr.Status,
			"conversion_rate":      payment.ConversionRate,
		}).Error; err != nil {
			return err
		}
		return tx.Table(v.Table).Where("id IN ?", idsOf(b.items)).Updates(map[string]interface{}{
			"status":     v.ProcessingStatus,
			"updated_at": o.now(),
		}).Error
	})
	if err != nil {
		return fail(KindTransferCreationFailed, err)
	}
	logger.Info().Str("step", "transfer").Str("transfer_id", transferID).Msg("payout transfer created")

	funded, err := o.Processor.FundTransfer(ctx, transferID)
	if err != nil {
		return fail(KindTransferFundingFailed, err)
	}
	if funded.Status != wise.FundingCompleted {
		return fail(KindTransferFundingFailed, fmt.Errorf("%w: status %q", ErrFundingNotCompleted, funded.Status))
	}

	updates := map[string]interface{}{"status": domain.PaymentProcessing}
	payment.Status = domain.PaymentProcessing
	if eta, err := o.Processor.DeliveryEstimate(ctx, transferID); err != nil {
		logger.Warn().Err(err).Msg("delivery estimate unavailable")
	} else {
		payment.WiseTransferEstimate = &eta
		updates["wise_transfer_estimate"] = eta
	}
	if err := o.DB.WithContext(ctx).Model(payment).Updates(updates).Error; err != nil {
		logger.Error().Err(err).Str("step", "funded").Str("transfer_id", transferID).Msg("payout funded but status not recorded")
		return &TransferError{Kind: KindFundedStatusNotRecorded, PaymentID: payment.ID, Err: err}
	}
	logger.Info().Str("step", "funded").Str("transfer_id", transferID).Msg("payout funded")
	return nil
}

// notifyDeactivated never fails the caller; the payout already failed.
func (o *Orchestrator) notifyDeactivated(ctx context.Context, v Variant, b *batch, payment *domain.Payment, amount decimal.Decimal, currency string, logger zerolog.Logger) {
	notifier := v.FailureNotifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	err := notifier.NotifyBankAccountDeactivated(ctx, emails.BankAccountDeactivated{
		PaymentIDParam:      payment.ID.String(),
		Amount:              amount,
		Currency:            currency,
		NetAmountInUsdCents: payment.NetAmountInUsdCents,
		ToEmail:             b.investor.User.Email,
		ToName:              b.investor.User.LegalName,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("bank account notification not sent")
	}
}
