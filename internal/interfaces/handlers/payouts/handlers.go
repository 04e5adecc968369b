package payouts

import (
	"errors"

	paysvc "flexile-backend/internal/application/payouts"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/pkg/response"
	"flexile-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Orchestrator *paysvc.Orchestrator
	Notifier     paysvc.Notifier
}

type ProcessRequest struct {
	CompanyInvestorID string   `json:"company_investor_id"`
	IDs               []string `json:"ids"`
}

// Dividends POST /api/v1/payouts/dividends
func (h *Handlers) Dividends(c *fiber.Ctx) error {
	return h.process(c, paysvc.DividendVariant(h.Notifier))
}

// EquityBuybacks POST /api/v1/payouts/equity_buybacks
func (h *Handlers) EquityBuybacks(c *fiber.Ctx) error {
	return h.process(c, paysvc.EquityBuybackVariant(h.Notifier))
}

func (h *Handlers) process(c *fiber.Ctx, v paysvc.Variant) error {
	var req ProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	investorID, err := uuid.Parse(req.CompanyInvestorID)
	if err != nil {
		return response.Error(c, "Invalid company_investor_id", 400, nil)
	}
	ids, err := validation.ParseUUIDs(req.IDs)
	if err != nil {
		return response.Error(c, err.Error(), 400, nil)
	}

	out, err := h.Orchestrator.Process(c.UserContext(), v, investorID, ids)
	if err != nil {
		return mapError(c, err)
	}
	if out.Payment == nil {
		return response.Success(c, "Payout retained", out, nil)
	}
	return response.Success(c, "Payout processing", out, nil)
}

// Sync POST /api/v1/payments/:id/sync
func (h *Handlers) Sync(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid payment id", 400, nil)
	}
	payment, err := h.Orchestrator.SyncTransfer(c.UserContext(), id)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Payment synced", fiber.Map{"payment": payment}, nil)
}

var statusMap = []struct {
	err  error
	code int
}{
	{paysvc.ErrNoItems, 400},
	{paysvc.ErrItemsNotFound, 404},
	{paysvc.ErrInvestorNotFound, 404},
	{paysvc.ErrPaymentNotFound, 404},
	{paysvc.ErrMixedInvestors, 422},
	{paysvc.ErrInvalidItemStatus, 422},
	{paysvc.ErrOnboardingIncomplete, 422},
	{paysvc.ErrTaxInformationUnverified, 422},
	{paysvc.ErrNoBankAccount, 422},
	{paysvc.ErrNoTransfer, 422},
	{paysvc.ErrInsufficientBalance, 409},
	{locker.ErrLocked, 409},
}

func mapError(c *fiber.Ctx, err error) error {
	var terr *paysvc.TransferError
	if errors.As(err, &terr) {
		return response.Error(c, "Payout failed", 502, fiber.Map{
			"kind":       terr.Kind,
			"payment_id": terr.PaymentID,
			"reason":     terr.Err.Error(),
		})
	}
	for _, m := range statusMap {
		if errors.Is(err, m.err) {
			return response.Error(c, err.Error(), m.code, nil)
		}
	}
	return response.Error(c, "Internal Server Error", 500, nil)
}
