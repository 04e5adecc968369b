package payouts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flexile-backend/internal/application/emails"
	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/infrastructure/wise"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProcessor struct {
	mu             sync.Mutex
	rate           decimal.Decimal
	accountActive  bool
	balanceOK      bool
	quoteErr       error
	fundStatus     string
	transferStatus string
	nextTransferID int64
	calls          []string
	quotes         []wise.QuoteRequest
	transfers      []wise.TransferRequest
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		rate:           decimal.RequireFromString("0.9"),
		accountActive:  true,
		balanceOK:      true,
		fundStatus:     wise.FundingCompleted,
		transferStatus: "processing",
		nextTransferID: 555,
	}
}

func (f *fakeProcessor) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProcessor) GetExchangeRate(ctx context.Context, targetCurrency string) (decimal.Decimal, error) {
	f.record("rate")
	return f.rate, nil
}

func (f *fakeProcessor) GetRecipientAccount(ctx context.Context, recipientID string) (*wise.Account, error) {
	f.record("account")
	return &wise.Account{ID: 1, Active: f.accountActive}, nil
}

func (f *fakeProcessor) CreateQuote(ctx context.Context, req wise.QuoteRequest) (*wise.Quote, error) {
	f.record("quote")
	f.quotes = append(f.quotes, req)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &wise.Quote{
		ID:   "quote-1",
		Rate: decimal.NewFromInt(1),
		PaymentOptions: []wise.PaymentOption{
			{PayIn: "BANK_TRANSFER", Fee: wise.Fee{Total: decimal.RequireFromString("9.99")}},
			{PayIn: wise.PayInBalance, Fee: wise.Fee{Total: decimal.RequireFromString("1.25")}, SourceAmount: req.Amount.Add(decimal.RequireFromString("1.25"))},
		},
		Raw: []byte(`{"id":"quote-1"}`),
	}, nil
}

func (f *fakeProcessor) CreateTransfer(ctx context.Context, req wise.TransferRequest) (*wise.Transfer, error) {
	f.record("transfer")
	f.transfers = append(f.transfers, req)
	return &wise.Transfer{ID: f.nextTransferID, Status: "incoming_payment_waiting"}, nil
}

func (f *fakeProcessor) FundTransfer(ctx context.Context, transferID string) (*wise.FundResult, error) {
	f.record("fund")
	return &wise.FundResult{Type: wise.PayInBalance, Status: f.fundStatus}, nil
}

func (f *fakeProcessor) GetTransfer(ctx context.Context, transferID string) (*wise.Transfer, error) {
	f.record("get_transfer")
	return &wise.Transfer{Status: f.transferStatus}, nil
}

func (f *fakeProcessor) DeliveryEstimate(ctx context.Context, transferID string) (time.Time, error) {
	return time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC), nil
}

func (f *fakeProcessor) HasSufficientBalance(ctx context.Context, amountUsd decimal.Decimal) (bool, error) {
	f.record("balance")
	return f.balanceOK, nil
}

type recordingNotifier struct {
	sent []emails.BankAccountDeactivated
	err  error
}

func (r *recordingNotifier) NotifyBankAccountDeactivated(_ context.Context, n emails.BankAccountDeactivated) error {
	r.sent = append(r.sent, n)
	return r.err
}

type payoutFixture struct {
	orch      *Orchestrator
	db        *gorm.DB
	proc      *fakeProcessor
	investor  domain.CompanyInvestor
	recipient domain.WiseRecipient
	round     domain.DividendRound
}

func setupPayoutsTest(t *testing.T) *payoutFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Company{},
		&domain.User{},
		&domain.CompanyInvestor{},
		&domain.WiseRecipient{},
		&domain.DividendRound{},
		&domain.Dividend{},
		&domain.EquityBuyback{},
		&domain.Payment{},
		&domain.PaymentItem{},
	))

	company := domain.Company{Name: "Acme"}
	require.NoError(t, db.Create(&company).Error)
	confirmed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	user := domain.User{
		Email:                     "investor@example.com",
		LegalName:                 "Ana Investor",
		CountryCode:               "US",
		TaxInformationConfirmedAt: &confirmed,
		TaxIDStatus:               domain.TaxIDStatusVerified,
	}
	require.NoError(t, db.Create(&user).Error)
	investor := domain.CompanyInvestor{CompanyID: company.ID, UserID: user.ID, OnboardingCompletedAt: &confirmed}
	require.NoError(t, db.Create(&investor).Error)
	investor.User = user
	recipient := domain.WiseRecipient{UserID: user.ID, RecipientID: "148510101", Currency: "USD", LastFourDigits: "6789", UsedForDividends: true}
	require.NoError(t, db.Create(&recipient).Error)
	round := domain.DividendRound{CompanyID: company.ID, IssuedAt: confirmed, TotalAmountInCents: 1_000_000}
	require.NoError(t, db.Create(&round).Error)

	proc := newFakeProcessor()
	return &payoutFixture{
		orch: &Orchestrator{
			DB:                  db,
			Processor:           proc,
			Locker:              locker.NewLocalLocker(),
			SanctionedCountries: []string{"CU", "IR", "KP", "RU", "SY"},
		},
		db:        db,
		proc:      proc,
		investor:  investor,
		recipient: recipient,
		round:     round,
	}
}

func (f *payoutFixture) dividend(t *testing.T, cents int64) domain.Dividend {
	d := domain.Dividend{
		CompanyID:          f.investor.CompanyID,
		DividendRoundID:    f.round.ID,
		CompanyInvestorID:  f.investor.ID,
		TotalAmountInCents: cents,
		Status:             domain.PayoutItemIssued,
	}
	require.NoError(t, f.db.Create(&d).Error)
	return d
}

func (f *payoutFixture) reloadDividend(t *testing.T, id uuid.UUID) domain.Dividend {
	var d domain.Dividend
	require.NoError(t, f.db.First(&d, "id = ?", id).Error)
	return d
}

func (f *payoutFixture) paymentCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&n).Error)
	return n
}

func TestProcess_PaysDividendBatch(t *testing.T) {
	f := setupPayoutsTest(t)
	d1 := f.dividend(t, 10_000)
	d2 := f.dividend(t, 5_000)

	out, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d1.ID, d2.ID})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutItemProcessing, out.Status)
	require.NotNil(t, out.Payment)

	var p domain.Payment
	require.NoError(t, f.db.Preload("Items").First(&p, "id = ?", out.Payment.ID).Error)
	assert.Equal(t, domain.PaymentProcessing, p.Status)
	assert.Equal(t, int64(15_000), p.NetAmountInUsdCents)
	assert.Equal(t, "555", *p.TransferID)
	assert.Equal(t, "quote-1", *p.WiseQuoteID)
	assert.Equal(t, int64(125), *p.TransferFeeInCents)
	assert.Equal(t, int64(15_125), *p.TotalTransactionCents)
	assert.Equal(t, "6789", p.RecipientLast4)
	require.NotNil(t, p.WiseTransferEstimate)
	assert.Len(t, p.Items, 2)

	require.Len(t, f.proc.transfers, 1)
	assert.Equal(t, p.ProcessorUUID, f.proc.transfers[0].UniqueTransactionID)
	assert.Equal(t, "DIV", f.proc.transfers[0].Reference)
	assert.NotContains(t, f.proc.calls, "rate")

	got := f.reloadDividend(t, d1.ID)
	assert.Equal(t, domain.PayoutItemProcessing, got.Status)
	assert.Equal(t, int64(320), got.ProcessingFeeCents)
}

func TestProcess_SanctionedCountryRetainsWithoutPayment(t *testing.T) {
	f := setupPayoutsTest(t)
	require.NoError(t, f.db.Model(&domain.User{}).Where("id = ?", f.investor.UserID).Update("country_code", "IR").Error)
	d := f.dividend(t, 10_000)

	out, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutItemRetained, out.Status)
	assert.Equal(t, domain.RetainedReasonOFACSanctionedCountry, out.RetainedReason)
	assert.Nil(t, out.Payment)

	assert.Zero(t, f.paymentCount(t))
	assert.Empty(t, f.proc.calls)
	got := f.reloadDividend(t, d.ID)
	assert.Equal(t, domain.PayoutItemRetained, got.Status)
	require.NotNil(t, got.RetainedReason)
	assert.Equal(t, domain.RetainedReasonOFACSanctionedCountry, *got.RetainedReason)
}

func TestProcess_RetryCreatesNewPayment(t *testing.T) {
	f := setupPayoutsTest(t)
	d := f.dividend(t, 10_000)
	ctx := context.Background()

	f.proc.quoteErr = errors.New("processor timeout")
	_, err := f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindQuoteFailed, terr.Kind)
	assert.ErrorContains(t, err, "processor timeout")

	var failed domain.Payment
	require.NoError(t, f.db.First(&failed, "id = ?", terr.PaymentID).Error)
	assert.Equal(t, domain.PaymentFailed, failed.Status)
	assert.Equal(t, domain.PayoutItemIssued, f.reloadDividend(t, d.ID).Status)

	f.proc.quoteErr = nil
	out, err := f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)
	assert.NotEqual(t, failed.ID, out.Payment.ID)
	assert.NotEqual(t, failed.ProcessorUUID, out.Payment.ProcessorUUID)
	assert.Equal(t, int64(2), f.paymentCount(t))

	var stillFailed domain.Payment
	require.NoError(t, f.db.First(&stillFailed, "id = ?", failed.ID).Error)
	assert.Equal(t, domain.PaymentFailed, stillFailed.Status)
	assert.Equal(t, failed.ProcessorUUID, stillFailed.ProcessorUUID)
}

func TestProcess_InsufficientBalanceIsFatal(t *testing.T) {
	f := setupPayoutsTest(t)
	f.proc.balanceOK = false
	d := f.dividend(t, 10_000)

	_, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Zero(t, f.paymentCount(t))
	assert.Equal(t, domain.PayoutItemIssued, f.reloadDividend(t, d.ID).Status)
}

func TestProcess_BelowMinimumIsRetained(t *testing.T) {
	f := setupPayoutsTest(t)
	require.NoError(t, f.db.Model(&domain.CompanyInvestor{}).Where("id = ?", f.investor.ID).
		Update("minimum_dividend_payment_in_cents", 10_000).Error)
	d := f.dividend(t, 5_000)

	out, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.RetainedReasonBelowMinimumPaymentThreshold, out.RetainedReason)
	assert.Zero(t, f.paymentCount(t))
	assert.Equal(t, domain.PayoutItemRetained, f.reloadDividend(t, d.ID).Status)
}

func TestProcess_RetainedItemsCanBeRedriven(t *testing.T) {
	f := setupPayoutsTest(t)
	d := f.dividend(t, 10_000)
	reason := domain.RetainedReasonBelowMinimumPaymentThreshold
	require.NoError(t, f.db.Model(&domain.Dividend{}).Where("id = ?", d.ID).
		Updates(map[string]interface{}{"status": domain.PayoutItemRetained, "retained_reason": reason}).Error)

	out, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutItemProcessing, out.Status)
	got := f.reloadDividend(t, d.ID)
	assert.Equal(t, domain.PayoutItemProcessing, got.Status)
	assert.Nil(t, got.RetainedReason)
}

func TestProcess_InactiveRecipientFailsAndNotifies(t *testing.T) {
	f := setupPayoutsTest(t)
	f.proc.accountActive = false
	notifier := &recordingNotifier{err: errors.New("broker down")}
	d := f.dividend(t, 10_000)

	_, err := f.orch.Process(context.Background(), DividendVariant(notifier), f.investor.ID, []uuid.UUID{d.ID})
	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindRecipientInactive, terr.Kind)
	assert.ErrorIs(t, err, ErrRecipientInactive)

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, terr.PaymentID.String(), n.PaymentIDParam)
	assert.Equal(t, "USD", n.Currency)
	assert.True(t, n.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(10_000), n.NetAmountInUsdCents)
	assert.Equal(t, "investor@example.com", n.ToEmail)

	var p domain.Payment
	require.NoError(t, f.db.First(&p, "id = ?", terr.PaymentID).Error)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.NotContains(t, f.proc.calls, "quote")

	var alive int64
	f.db.Model(&domain.WiseRecipient{}).Where("id = ?", f.recipient.ID).Count(&alive)
	assert.Zero(t, alive)
}

func TestProcess_UnfundedTransferLeavesItemsProcessing(t *testing.T) {
	f := setupPayoutsTest(t)
	f.proc.fundStatus = "REJECTED"
	d := f.dividend(t, 10_000)

	_, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindTransferFundingFailed, terr.Kind)
	assert.ErrorIs(t, err, ErrFundingNotCompleted)

	var p domain.Payment
	require.NoError(t, f.db.First(&p, "id = ?", terr.PaymentID).Error)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	require.NotNil(t, p.TransferID)
	assert.Equal(t, domain.PayoutItemProcessing, f.reloadDividend(t, d.ID).Status)
}

func TestProcess_FundedButUnrecordedKeepsPaymentOpen(t *testing.T) {
	f := setupPayoutsTest(t)
	d := f.dividend(t, 10_000)
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("fail_processing_update", func(tx *gorm.DB) {
		if tx.Statement.Table != "payments" {
			return
		}
		if m, ok := tx.Statement.Dest.(map[string]interface{}); ok && m["status"] == domain.PaymentProcessing {
			_ = tx.AddError(errors.New("connection reset"))
		}
	}))

	_, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindFundedStatusNotRecorded, terr.Kind)
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, f.db.Callback().Update().Remove("fail_processing_update"))

	var p domain.Payment
	require.NoError(t, f.db.First(&p, "id = ?", terr.PaymentID).Error)
	assert.Equal(t, domain.PaymentInitial, p.Status)
	require.NotNil(t, p.TransferID)
	assert.Equal(t, "555", *p.TransferID)
	assert.Equal(t, domain.PayoutItemProcessing, f.reloadDividend(t, d.ID).Status)
}

func TestProcess_ConvertsToRecipientCurrency(t *testing.T) {
	f := setupPayoutsTest(t)
	require.NoError(t, f.db.Model(&domain.WiseRecipient{}).Where("id = ?", f.recipient.ID).Update("currency", "EUR").Error)
	d := f.dividend(t, 10_000)

	out, err := f.orch.Process(context.Background(), DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	require.NoError(t, err)
	assert.Equal(t, "EUR", out.Payment.TransferCurrency)
	require.Len(t, f.proc.quotes, 1)
	assert.Equal(t, "EUR", f.proc.quotes[0].TargetCurrency)
	assert.True(t, f.proc.quotes[0].Amount.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, []string{"balance", "rate", "account", "quote", "transfer", "fund"}, f.proc.calls)
}

func TestProcess_Preconditions(t *testing.T) {
	f := setupPayoutsTest(t)
	d := f.dividend(t, 10_000)
	ctx := context.Background()

	_, err := f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, nil)
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrItemsNotFound)

	_, err = f.orch.Process(ctx, DividendVariant(nil), uuid.New(), []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, ErrMixedInvestors)

	require.NoError(t, f.db.Model(&domain.CompanyInvestor{}).Where("id = ?", f.investor.ID).Update("onboarding_completed_at", nil).Error)
	_, err = f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, ErrOnboardingIncomplete)

	require.NoError(t, f.db.Model(&domain.CompanyInvestor{}).Where("id = ?", f.investor.ID).Update("onboarding_completed_at", time.Now()).Error)
	require.NoError(t, f.db.Model(&domain.User{}).Where("id = ?", f.investor.UserID).Update("tax_id_status", domain.TaxIDStatusInvalid).Error)
	_, err = f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, ErrTaxInformationUnverified)

	require.NoError(t, f.db.Model(&domain.User{}).Where("id = ?", f.investor.UserID).Update("tax_id_status", domain.TaxIDStatusVerified).Error)
	require.NoError(t, f.db.Delete(&f.recipient).Error)
	_, err = f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, ErrNoBankAccount)

	require.NoError(t, f.db.Model(&domain.Dividend{}).Where("id = ?", d.ID).Update("status", domain.PayoutItemProcessing).Error)
	_, err = f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, ErrInvalidItemStatus)

	assert.Zero(t, f.paymentCount(t))
	assert.Empty(t, f.proc.calls)
}

func TestProcess_SerializesPerInvestorAndType(t *testing.T) {
	f := setupPayoutsTest(t)
	d := f.dividend(t, 10_000)
	ctx := context.Background()

	release, err := f.orch.Locker.Lock(ctx, LockKey(domain.PayoutTypeDividend, f.investor.ID), time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = f.orch.Process(ctx, DividendVariant(nil), f.investor.ID, []uuid.UUID{d.ID})
	assert.ErrorIs(t, err, locker.ErrLocked)
}

func TestProcess_PaysEquityBuyback(t *testing.T) {
	f := setupPayoutsTest(t)
	b := domain.EquityBuyback{
		CompanyID:         f.investor.CompanyID,
		CompanyInvestorID: f.investor.ID,
		ShareClassName:    "Common",
		NumberOfShares:    100,
		SharePriceCents:   250,
		Status:            domain.PayoutItemIssued,
	}
	require.NoError(t, f.db.Create(&b).Error)

	out, err := f.orch.Process(context.Background(), EquityBuybackVariant(nil), f.investor.ID, []uuid.UUID{b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), out.Payment.NetAmountInUsdCents)
	assert.Equal(t, domain.PayoutTypeEquityBuyback, out.Payment.PayoutType)
	assert.Equal(t, "EB", f.proc.transfers[0].Reference)

	var got domain.EquityBuyback
	require.NoError(t, f.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, domain.PayoutItemProcessing, got.Status)
	assert.Zero(t, got.ProcessingFeeCents)
}
