// Package wise is a thin client for the payment processor's REST API. It only covers the
// calls the payout flow makes and keeps the processor's JSON key names.
package wise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayInBalance       = "BALANCE"
	FundingCompleted   = "COMPLETED"
	defaultHTTPTimeout = 30 * time.Second
)

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wise %s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type ExchangeRate struct {
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
	Target string          `json:"target"`
	Time   string          `json:"time"`
}

type Account struct {
	ID       int64  `json:"id"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}

type Fee struct {
	Total decimal.Decimal `json:"total"`
}

type PaymentOption struct {
	PayIn        string          `json:"payIn"`
	PayOut       string          `json:"payOut"`
	Disabled     bool            `json:"disabled"`
	Fee          Fee             `json:"fee"`
	SourceAmount decimal.Decimal `json:"sourceAmount"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
}

type Quote struct {
	ID             string          `json:"id"`
	Rate           decimal.Decimal `json:"rate"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	PaymentOptions []PaymentOption `json:"paymentOptions"`
	// Raw is the response body as received, kept for the payment record.
	Raw json.RawMessage `json:"-"`
}

// BalanceOption returns the enabled option paid from the platform balance.
func (q *Quote) BalanceOption() (*PaymentOption, bool) {
	for i := range q.PaymentOptions {
		if q.PaymentOptions[i].PayIn == PayInBalance && !q.PaymentOptions[i].Disabled {
			return &q.PaymentOptions[i], true
		}
	}
	return nil, false
}

type Transfer struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	Rate        decimal.Decimal `json:"rate"`
	SourceValue decimal.Decimal `json:"sourceValue"`
	TargetValue decimal.Decimal `json:"targetValue"`
}

type FundResult struct {
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	ErrorCode *string `json:"errorCode"`
}

type QuoteRequest struct {
	TargetCurrency string
	// Amount is in the target currency.
	Amount      decimal.Decimal
	RecipientID string
}

type TransferRequest struct {
	QuoteID             string
	RecipientID         string
	UniqueTransactionID string
	Reference           string
}

type Client struct {
	BaseURL   string
	APIKey    string
	ProfileID string
	HTTP      *http.Client
}

func NewClient(baseURL, apiKey, profileID string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		ProfileID: profileID,
		HTTP:      &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("wise %s %s: decode: %w", method, path, err)
		}
	}
	return raw, nil
}

// GetExchangeRate returns how many targetCurrency units one USD buys.
func (c *Client) GetExchangeRate(ctx context.Context, targetCurrency string) (decimal.Decimal, error) {
	var rates []ExchangeRate
	path := "/v1/rates?source=USD&target=" + strings.ToUpper(targetCurrency)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &rates); err != nil {
		return decimal.Zero, err
	}
	if len(rates) == 0 || !rates[0].Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("wise: no USD/%s rate", targetCurrency)
	}
	return rates[0].Rate, nil
}

func (c *Client) GetRecipientAccount(ctx context.Context, recipientID string) (*Account, error) {
	var acct Account
	if _, err := c.do(ctx, http.MethodGet, "/v2/accounts/"+recipientID, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// CreateQuote prices a USD-funded payout of req.Amount in req.TargetCurrency.
func (c *Client) CreateQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	body := map[string]interface{}{
		"sourceCurrency": "USD",
		"targetCurrency": strings.ToUpper(req.TargetCurrency),
		"targetAmount":   json.Number(req.Amount.String()),
		"targetAccount":  req.RecipientID,
		"payOut":         "BANK_TRANSFER",
		"preferredPayIn": PayInBalance,
	}
	var q Quote
	raw, err := c.do(ctx, http.MethodPost, "/v3/profiles/"+c.ProfileID+"/quotes", body, &q)
	if err != nil {
		return nil, err
	}
	q.Raw = raw
	return &q, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	body := map[string]interface{}{
		"targetAccount":         req.RecipientID,
		"quoteUuid":             req.QuoteID,
		"customerTransactionId": req.UniqueTransactionID,
		"details":               map[string]string{"reference": req.Reference},
	}
	var t Transfer
	if _, err := c.do(ctx, http.MethodPost, "/v1/transfers", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FundTransfer pays the transfer from the platform balance.
func (c *Client) FundTransfer(ctx context.Context, transferID string) (*FundResult, error) {
	var res FundResult
	path := "/v3/profiles/" + c.ProfileID + "/transfers/" + transferID + "/payments"
	if _, err := c.do(ctx, http.MethodPost, path, map[string]string{"type": PayInBalance}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	var t Transfer
	if _, err := c.do(ctx, http.MethodGet, "/v1/transfers/"+transferID, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeliveryEstimate(ctx context.Context, transferID string) (time.Time, error) {
	var res struct {
		EstimatedDeliveryDate time.Time `json:"estimatedDeliveryDate"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/v1/delivery-estimates/"+transferID, nil, &res); err != nil {
		return time.Time{}, err
	}
	return res.EstimatedDeliveryDate, nil
}

// HasSufficientBalance reports whether the platform's USD balance covers amountUsd.
func (c *Client) HasSufficientBalance(ctx context.Context, amountUsd decimal.Decimal) (bool, error) {
	var balances []struct {
		Currency string `json:"currency"`
		Amount   struct {
			Value    decimal.Decimal `json:"value"`
			Currency string          `json:"currency"`
		} `json:"amount"`
	}
	path := "/v4/profiles/" + c.ProfileID + "/balances?types=STANDARD"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &balances); err != nil {
		return false, err
	}
	for _, b := range balances {
		if strings.EqualFold(b.Currency, "USD") {
			return b.Amount.Value.GreaterThanOrEqual(amountUsd), nil
		}
	}
	return false, nil
}
