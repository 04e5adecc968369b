package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	paysvc "flexile-backend/internal/application/payouts"
	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/infrastructure/wise"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubProcessor struct {
	transferErr error
}

func (s *stubProcessor) GetExchangeRate(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func (s *stubProcessor) GetRecipientAccount(context.Context, string) (*wise.Account, error) {
	return &wise.Account{Active: true}, nil
}

func (s *stubProcessor) CreateQuote(_ context.Context, req wise.QuoteRequest) (*wise.Quote, error) {
	return &wise.Quote{ID: "q-1", Rate: decimal.NewFromInt(1), PaymentOptions: []wise.PaymentOption{
		{PayIn: wise.PayInBalance, SourceAmount: req.Amount},
	}}, nil
}

func (s *stubProcessor) CreateTransfer(context.Context, wise.TransferRequest) (*wise.Transfer, error) {
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	return &wise.Transfer{ID: 77, Status: "incoming_payment_waiting"}, nil
}

func (s *stubProcessor) FundTransfer(context.Context, string) (*wise.FundResult, error) {
	return &wise.FundResult{Status: wise.FundingCompleted}, nil
}

func (s *stubProcessor) GetTransfer(context.Context, string) (*wise.Transfer, error) {
	return &wise.Transfer{Status: "outgoing_payment_sent"}, nil
}

func (s *stubProcessor) DeliveryEstimate(context.Context, string) (time.Time, error) {
	return time.Now(), nil
}

func (s *stubProcessor) HasSufficientBalance(context.Context, decimal.Decimal) (bool, error) {
	return true, nil
}

type fixture struct {
	app      *fiber.App
	db       *gorm.DB
	proc     *stubProcessor
	investor domain.CompanyInvestor
	round    domain.DividendRound
}

func setupPayoutHandlers(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Company{}, &domain.User{}, &domain.CompanyInvestor{}, &domain.WiseRecipient{},
		&domain.DividendRound{}, &domain.Dividend{}, &domain.EquityBuyback{},
		&domain.Payment{}, &domain.PaymentItem{},
	))
	now := time.Now()
	company := domain.Company{Name: "Acme"}
	require.NoError(t, db.Create(&company).Error)
	user := domain.User{Email: "inv@example.com", CountryCode: "US", TaxInformationConfirmedAt: &now, TaxIDStatus: domain.TaxIDStatusVerified}
	require.NoError(t, db.Create(&user).Error)
	investor := domain.CompanyInvestor{CompanyID: company.ID, UserID: user.ID, OnboardingCompletedAt: &now}
	require.NoError(t, db.Create(&investor).Error)
	require.NoError(t, db.Create(&domain.WiseRecipient{UserID: user.ID, RecipientID: "1", Currency: "USD", UsedForDividends: true}).Error)
	round := domain.DividendRound{CompanyID: company.ID, IssuedAt: now, TotalAmountInCents: 10_000}
	require.NoError(t, db.Create(&round).Error)

	proc := &stubProcessor{}
	h := &Handlers{Orchestrator: &paysvc.Orchestrator{DB: db, Processor: proc, Locker: locker.NewLocalLocker()}}
	app := fiber.New()
	app.Post("/payouts/dividends", h.Dividends)
	app.Post("/payouts/equity_buybacks", h.EquityBuybacks)
	app.Post("/payments/:id/sync", h.Sync)
	return &fixture{app: app, db: db, proc: proc, investor: investor, round: round}
}

func (f *fixture) dividend(t *testing.T) domain.Dividend {
	d := domain.Dividend{CompanyID: f.investor.CompanyID, DividendRoundID: f.round.ID, CompanyInvestorID: f.investor.ID, TotalAmountInCents: 10_000, Status: domain.PayoutItemIssued}
	require.NoError(t, f.db.Create(&d).Error)
	return d
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) domain.Dividend {
	var d domain.Dividend
	require.NoError(t, f.db.First(&d, "id = ?", id).Error)
	return d
}

func post(t *testing.T, app *fiber.App, path string, body interface{}) (int, map[string]interface{}) {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestDividends_ProcessesAndSyncs(t *testing.T) {
	f := setupPayoutHandlers(t)
	d := f.dividend(t)

	code, out := post(t, f.app, "/payouts/dividends", map[string]interface{}{
		"company_investor_id": f.investor.ID.String(),
		"ids":                 []string{d.ID.String()},
	})
	require.Equal(t, 200, code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "processing", data["status"])
	paymentID := data["payment"].(map[string]interface{})["id"].(string)

	code, _ = post(t, f.app, "/payments/"+paymentID+"/sync", nil)
	require.Equal(t, 200, code)
	var payment domain.Payment
	require.NoError(t, f.db.First(&payment, "id = ?", paymentID).Error)
	assert.Equal(t, domain.PaymentSucceeded, payment.Status)
	assert.Equal(t, domain.PayoutItemSucceeded, f.reload(t, d.ID).Status)
}

func TestDividends_TransferFailureIs502WithKind(t *testing.T) {
	f := setupPayoutHandlers(t)
	f.proc.transferErr = errors.New("duplicate transaction")
	d := f.dividend(t)

	code, out := post(t, f.app, "/payouts/dividends", map[string]interface{}{
		"company_investor_id": f.investor.ID.String(),
		"ids":                 []string{d.ID.String()},
	})
	assert.Equal(t, 502, code)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, paysvc.KindTransferCreationFailed, details["kind"])
	assert.Equal(t, "duplicate transaction", details["reason"])
}

func TestDividends_BadRequests(t *testing.T) {
	f := setupPayoutHandlers(t)
	d := f.dividend(t)

	code, _ := post(t, f.app, "/payouts/dividends", map[string]interface{}{"company_investor_id": "x", "ids": []string{d.ID.String()}})
	assert.Equal(t, 400, code)

	code, out := post(t, f.app, "/payouts/dividends", map[string]interface{}{"company_investor_id": f.investor.ID.String()})
	assert.Equal(t, 400, code)
	assert.Equal(t, "at least one id is required", out["error"].(map[string]interface{})["message"])

	code, _ = post(t, f.app, "/payouts/equity_buybacks", map[string]interface{}{
		"company_investor_id": f.investor.ID.String(),
		"ids":                 []string{uuid.NewString()},
	})
	assert.Equal(t, 404, code)

	code, _ = post(t, f.app, "/payouts/dividends", map[string]interface{}{
		"company_investor_id": uuid.NewString(),
		"ids":                 []string{d.ID.String()},
	})
	assert.Equal(t, 422, code)

	code, _ = post(t, f.app, "/payments/"+uuid.NewString()+"/sync", nil)
	assert.Equal(t, 404, code)
}
