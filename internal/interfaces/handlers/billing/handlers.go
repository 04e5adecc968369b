package billing

import (
	"errors"

	billsvc "flexile-backend/internal/application/billing"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Service *billsvc.Service
}

// ConsolidateInvoices POST /api/v1/companies/:company_id/consolidated_invoices
func (h *Handlers) ConsolidateInvoices(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Params("company_id"))
	if err != nil {
		return response.Error(c, "Invalid company id", 400, nil)
	}
	created, err := h.Service.ConsolidateInvoices(c.UserContext(), companyID)
	if err != nil {
		return mapError(c, err)
	}
	if len(created) == 0 {
		return response.Success(c, "No approved invoices to consolidate", fiber.Map{"consolidated_invoices": created}, nil)
	}
	return response.SuccessCreated(c, "Invoices consolidated", fiber.Map{"consolidated_invoices": created}, nil)
}

// ConsolidateDividendRound POST /api/v1/dividend_rounds/:id/consolidated_invoice
func (h *Handlers) ConsolidateDividendRound(c *fiber.Ctx) error {
	roundID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid dividend round id", 400, nil)
	}
	ci, err := h.Service.ConsolidateDividendRound(c.UserContext(), roundID)
	if err != nil {
		return mapError(c, err)
	}
	return response.SuccessCreated(c, "Dividend round consolidated", fiber.Map{"consolidated_invoice": ci}, nil)
}

// Charge POST /api/v1/consolidated_invoices/:id/charge
func (h *Handlers) Charge(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid consolidated invoice id", 400, nil)
	}
	ci, err := h.Service.Charge(c.UserContext(), id)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Consolidated invoice charged", fiber.Map{"consolidated_invoice": ci}, nil)
}

var statusMap = []struct {
	err  error
	code int
}{
	{billsvc.ErrCompanyNotFound, 404},
	{billsvc.ErrDividendRoundNotFound, 404},
	{billsvc.ErrConsolidatedInvoiceNotFound, 404},
	{billsvc.ErrBillingNotReady, 422},
	{billsvc.ErrNoStripeCustomer, 422},
	{billsvc.ErrNotChargeable, 409},
	{billsvc.ErrRoundAlreadyConsolidated, 409},
	{locker.ErrLocked, 409},
}

func mapError(c *fiber.Ctx, err error) error {
	for _, m := range statusMap {
		if errors.Is(err, m.err) {
			return response.Error(c, err.Error(), m.code, nil)
		}
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("billing request failed")
	return response.Error(c, "Internal Server Error", 500, nil)
}
