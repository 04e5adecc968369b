package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches the Brevo v3 transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// BankAccountDeactivated is the notification sent when a payout's bank account turns out
// to be closed at the processor. The first four keys are the notification parameters the
// payout flow promises; ToEmail and ToName address the investor.
type BankAccountDeactivated struct {
	PaymentIDParam      string          `json:"paymentIdParam"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	NetAmountInUsdCents int64           `json:"netAmountInUsdCents"`
	ToEmail             string          `json:"to_email"`
	ToName              string          `json:"to_name"`
}

// Sender sends transactional emails.
type Sender interface {
	SendBankAccountDeactivated(ctx context.Context, n BankAccountDeactivated) error
}

// BrevoClient sends emails via the Brevo (Sendinblue) API. An empty APIKey makes every
// send a no-op.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Endpoint string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@flexile.com"
}

func (c *BrevoClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return brevoAPI
}

func (c *BrevoClient) send(ctx context.Context, toEmail, toName, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "Flexile"},
		To:          []BrevoTo{{Email: toEmail, Name: toName}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoReplyTo{Email: supportEmail, Name: "Flexile Support"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *BrevoClient) SendBankAccountDeactivated(ctx context.Context, n BankAccountDeactivated) error {
	if c.APIKey == "" {
		return nil
	}
	if n.ToEmail == "" {
		return fmt.Errorf("bank account notification for payment %s has no recipient", n.PaymentIDParam)
	}
	return c.send(ctx, n.ToEmail, n.ToName, "Action needed: update your bank account", EmailLayout(bankAccountDeactivatedContent(n)))
}

func bankAccountDeactivatedContent(n BankAccountDeactivated) string {
	name := n.ToName
	if name == "" {
		name = "there"
	}
	usd := decimal.NewFromInt(n.NetAmountInUsdCents).Shift(-2).StringFixed(2)
	return fmt.Sprintf(`
    <h1>We couldn't send your payout</h1>
    <p>Hi %s,</p>
    <p>Your bank returned our transfer because the account on file is no longer active. We've removed it from your profile so no further payments go to it.</p>
    <table class="details">
      <tr><td>Amount</td><td><strong>%s %s</strong></td></tr>
      <tr><td>USD value</td><td>$%s</td></tr>
      <tr><td>Reference</td><td>%s</td></tr>
    </table>
    <p>Add a new bank account and we'll retry the payment on the next payout run.</p>
`, EscapeHTML(name), n.Amount.StringFixed(2), EscapeHTML(strings.ToUpper(n.Currency)), usd, EscapeHTML(n.PaymentIDParam))
}
