package liquidation

import (
	"errors"

	liqsvc "flexile-backend/internal/application/liquidation"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/pkg/response"
	"flexile-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *liqsvc.Service
}

type CreateRequest struct {
	Name            string `json:"name"`
	ExitAmountCents int64  `json:"exit_amount_cents"`
	ExitDate        string `json:"exit_date"`
}

// Create POST /api/v1/companies/:company_id/liquidation_scenarios
func (h *Handlers) Create(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Params("company_id"))
	if err != nil {
		return response.Error(c, "Invalid company_id", 400, nil)
	}
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	in := liqsvc.CreateInput{Name: req.Name, ExitAmountCents: req.ExitAmountCents}
	if req.ExitDate != "" {
		d, err := validation.ParseDate(req.ExitDate)
		if err != nil {
			return response.Error(c, err.Error(), 400, nil)
		}
		in.ExitDate = &d
	}

	res, err := h.Service.Create(c.UserContext(), companyID, in)
	if err != nil {
		return mapError(c, err)
	}
	if !res.Success {
		code := 422
		if res.Error == "Company not found" {
			code = 404
		}
		return response.Error(c, res.Error, code, nil)
	}
	return response.SuccessCreated(c, "Liquidation scenario created", fiber.Map{"scenario": res.Scenario}, nil)
}

// Calculate POST /api/v1/liquidation_scenarios/:id/calculate
func (h *Handlers) Calculate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid scenario id", 400, nil)
	}
	scenario, err := h.Service.Calculate(c.UserContext(), id)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Liquidation scenario calculated", fiber.Map{"scenario": scenario}, nil)
}

// Payouts GET /api/v1/liquidation_scenarios/:id/payouts
func (h *Handlers) Payouts(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid scenario id", 400, nil)
	}
	ctx := c.UserContext()
	payouts, err := h.Service.Payouts(ctx, id)
	if err != nil {
		return mapError(c, err)
	}
	summary, err := h.Service.Summary(ctx, id)
	if err != nil {
		return mapError(c, err)
	}
	return response.Success(c, "Liquidation payouts", fiber.Map{
		"payouts":   payouts,
		"investors": summary,
	}, nil)
}

func mapError(c *fiber.Ctx, err error) error {
	var inv *liqsvc.InvariantError
	switch {
	case errors.Is(err, liqsvc.ErrScenarioNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, locker.ErrLocked):
		return response.Error(c, "Liquidation scenario is being calculated", 409, nil)
	case errors.Is(err, liqsvc.ErrNoSecurities), errors.Is(err, liqsvc.ErrNonPositiveExitAmount):
		return response.Error(c, err.Error(), 422, nil)
	case errors.As(err, &inv), errors.Is(err, liqsvc.ErrMissingInvestor), errors.Is(err, liqsvc.ErrUnknownShareClass):
		return response.Error(c, err.Error(), 500, nil)
	}
	return response.Error(c, "Internal Server Error", 500, nil)
}
