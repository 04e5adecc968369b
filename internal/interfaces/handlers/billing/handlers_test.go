package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	billsvc "flexile-backend/internal/application/billing"
	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/locker"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret_123"

type fakeCharger struct{}

func (fakeCharger) CreatePaymentIntent(context.Context, billsvc.ChargeRequest) (string, error) {
	return "pi_test_123", nil
}

func setupBillingHandlers(t *testing.T) (*fiber.App, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Company{}, &domain.Invoice{}, &domain.ConsolidatedInvoice{},
		&domain.DividendRound{}, &domain.Dividend{},
	))
	svc := &billsvc.Service{DB: db, Locker: locker.NewLocalLocker(), Charger: fakeCharger{}}
	h := &Handlers{Service: svc}
	wh := &WebhookHandler{Service: svc, WebhookSecret: testSecret}

	app := fiber.New()
	app.Post("/companies/:company_id/consolidated_invoices", h.ConsolidateInvoices)
	app.Post("/dividend_rounds/:id/consolidated_invoice", h.ConsolidateDividendRound)
	app.Post("/consolidated_invoices/:id/charge", h.Charge)
	app.Post("/stripe/webhook", wh.HandleWebhook)
	return app, db
}

func seedBillableCompany(t *testing.T, db *gorm.DB) domain.Company {
	customer := "cus_123"
	c := domain.Company{Name: "Acme", BankAccountReady: true, StripeCustomerID: &customer}
	require.NoError(t, db.Create(&c).Error)
	require.NoError(t, db.Create(&domain.Invoice{
		CompanyID:             c.ID,
		UserID:                uuid.New(),
		InvoiceDate:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalAmountInUsdCents: 10_000,
		CashAmountInCents:     10_000,
		FlexileFeeCents:       200,
		Status:                domain.InvoiceApproved,
	}).Error)
	return c
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	stamp := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", stamp, hex.EncodeToString(mac.Sum(nil)))
}

func call(t *testing.T, app *fiber.App, path, body, sig string) (int, map[string]interface{}) {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestConsolidateChargeAndWebhook(t *testing.T) {
	app, db := setupBillingHandlers(t)
	company := seedBillableCompany(t, db)

	code, out := call(t, app, "/companies/"+company.ID.String()+"/consolidated_invoices", "", "")
	require.Equal(t, 201, code)
	list := out["data"].(map[string]interface{})["consolidated_invoices"].([]interface{})
	require.Len(t, list, 1)
	ciID := list[0].(map[string]interface{})["id"].(string)

	code, _ = call(t, app, "/consolidated_invoices/"+ciID+"/charge", "", "")
	require.Equal(t, 200, code)

	code, _ = call(t, app, "/consolidated_invoices/"+ciID+"/charge", "", "")
	assert.Equal(t, 409, code)

	event := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_test_123","status":"succeeded"}}}`
	code, _ = call(t, app, "/stripe/webhook", event, signPayload([]byte(event), testSecret, time.Now()))
	require.Equal(t, 200, code)

	var ci domain.ConsolidatedInvoice
	require.NoError(t, db.First(&ci, "id = ?", ciID).Error)
	assert.Equal(t, domain.ConsolidatedInvoicePaid, ci.Status)
	var inv domain.Invoice
	require.NoError(t, db.First(&inv, "consolidated_invoice_id = ?", ciID).Error)
	assert.Equal(t, domain.InvoicePaid, inv.Status)
}

func TestConsolidate_Errors(t *testing.T) {
	app, db := setupBillingHandlers(t)

	code, _ := call(t, app, "/companies/nope/consolidated_invoices", "", "")
	assert.Equal(t, 400, code)

	code, _ = call(t, app, "/companies/"+uuid.NewString()+"/consolidated_invoices", "", "")
	assert.Equal(t, 404, code)

	notReady := domain.Company{Name: "Beta"}
	require.NoError(t, db.Create(&notReady).Error)
	code, _ = call(t, app, "/companies/"+notReady.ID.String()+"/consolidated_invoices", "", "")
	assert.Equal(t, 422, code)

	code, _ = call(t, app, "/dividend_rounds/"+uuid.NewString()+"/consolidated_invoice", "", "")
	assert.Equal(t, 404, code)

	code, _ = call(t, app, "/consolidated_invoices/"+uuid.NewString()+"/charge", "", "")
	assert.Equal(t, 404, code)
}

func TestWebhook_RejectsBadSignatures(t *testing.T) {
	app, _ := setupBillingHandlers(t)
	event := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_x"}}}`

	code, _ := call(t, app, "/stripe/webhook", event, "")
	assert.Equal(t, 400, code)

	code, _ = call(t, app, "/stripe/webhook", event, signPayload([]byte(event), "whsec_other", time.Now()))
	assert.Equal(t, 400, code)

	code, _ = call(t, app, "/stripe/webhook", event, signPayload([]byte(event), testSecret, time.Now().Add(-10*time.Minute)))
	assert.Equal(t, 400, code)
}

func TestWebhook_IgnoresUnknownEventsAndIntents(t *testing.T) {
	app, _ := setupBillingHandlers(t)

	other := `{"id":"evt_2","type":"charge.refunded","data":{"object":{}}}`
	code, _ := call(t, app, "/stripe/webhook", other, signPayload([]byte(other), testSecret, time.Now()))
	assert.Equal(t, 200, code)

	unknown := `{"id":"evt_3","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_unknown"}}}`
	code, _ = call(t, app, "/stripe/webhook", unknown, signPayload([]byte(unknown), testSecret, time.Now()))
	assert.Equal(t, 200, code)
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Unix(1_700_000_000, 0)

	assert.NoError(t, verifyStripeSignature(payload, signPayload(payload, testSecret, now), testSecret, now))
	assert.EqualError(t, verifyStripeSignature(payload, "garbage", testSecret, now), "invalid signature format")
	assert.EqualError(t, verifyStripeSignature(payload, "", testSecret, now), "missing signature or secret")
	assert.EqualError(t, verifyStripeSignature(payload, signPayload(payload, testSecret, now), testSecret, now.Add(6*time.Minute)), "timestamp too old")
}
