package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	billsvc "flexile-backend/internal/application/billing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const signatureTolerance = 5 * time.Minute

type WebhookHandler struct {
	Service       *billsvc.Service
	WebhookSecret string
	// Now is overridable in tests.
	Now func() time.Time
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntentObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// HandleWebhook POST /api/v1/stripe/webhook. The raw body is verified before it is parsed.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body")
		return c.Status(400).SendString("Webhook Error: empty body")
	}
	if err := verifyStripeSignature(rawBody, sig, wh.WebhookSecret, wh.now()); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.WebhookSecret != "").Msg("Stripe webhook signature verification failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Stripe webhook JSON parse failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var succeeded bool
	switch event.Type {
	case "payment_intent.succeeded":
		succeeded = true
	case "payment_intent.payment_failed":
	default:
		return c.Status(200).SendString("ok")
	}

	var pi paymentIntentObject
	if err := json.Unmarshal(event.Data.Object, &pi); err != nil || pi.ID == "" {
		return c.Status(200).SendString("ok")
	}
	if err := wh.Service.Settle(c.UserContext(), pi.ID, succeeded); err != nil {
		// A non-2xx response makes Stripe redeliver the event.
		log.Error().Err(err).Str("event_id", event.ID).Str("payment_intent_id", pi.ID).Msg("Stripe webhook settle failed")
		return c.Status(500).SendString("Webhook Error: settle failed")
	}
	return c.Status(200).SendString("ok")
}

func (wh *WebhookHandler) now() time.Time {
	if wh.Now != nil {
		return wh.Now()
	}
	return time.Now()
}

// verifyStripeSignature checks the Stripe-Signature header against the webhook secret.
func verifyStripeSignature(payload []byte, sigHeader, secret string, now time.Time) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if !hmac.Equal([]byte(sig), []byte(expectedSig)) {
			continue
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return errors.New("invalid timestamp")
		}
		diff := now.Sub(time.Unix(ts, 0))
		if diff < 0 {
			diff = -diff
		}
		if diff > signatureTolerance {
			return errors.New("timestamp too old")
		}
		return nil
	}
	return errors.New("signature mismatch")
}
