package equity

import (
	"errors"

	equitysvc "flexile-backend/internal/application/equity"
	"flexile-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct{}

type SplitRequest struct {
	ServiceAmountCents int64            `json:"service_amount_cents"`
	EquityPercentage   int              `json:"equity_percentage"`
	SharePriceUsd      *decimal.Decimal `json:"share_price_usd"`
	EquityEnabled      bool             `json:"equity_enabled"`
	UnvestedShares     *int64           `json:"unvested_shares"`
}

// Split POST /api/v1/equity/split: cash/equity breakdown of a service payment.
func (h *Handlers) Split(c *fiber.Ctx) error {
	var req SplitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	split, err := equitysvc.Calculate(equitysvc.Input{
		ServiceAmountCents: req.ServiceAmountCents,
		EquityPercentage:   req.EquityPercentage,
		SharePriceUsd:      req.SharePriceUsd,
		EquityEnabled:      req.EquityEnabled,
		UnvestedShares:     req.UnvestedShares,
	})
	if err != nil {
		switch {
		case errors.Is(err, equitysvc.ErrNegativeServiceAmount),
			errors.Is(err, equitysvc.ErrInvalidEquityPercentage):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, equitysvc.ErrInsufficientUnvestedShares):
			return response.Error(c, err.Error(), 422, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Equity split calculated", split, nil)
}
