package invoices

import (
	"errors"

	invsvc "flexile-backend/internal/application/invoices"
	"flexile-backend/internal/pkg/response"
	"flexile-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *invsvc.Service
}

type CreateRequest struct {
	UserID                string  `json:"user_id"`
	CompanyInvestorID     *string `json:"company_investor_id"`
	InvoiceNumber         string  `json:"invoice_number"`
	InvoiceDate           string  `json:"invoice_date"`
	TotalAmountInUsdCents int64   `json:"total_amount_in_usd_cents"`
	EquityPercentage      int     `json:"equity_percentage"`
}

// Create POST /api/v1/companies/:company_id/invoices
func (h *Handlers) Create(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Params("company_id"))
	if err != nil {
		return response.Error(c, "Invalid company_id", 400, nil)
	}
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return response.Error(c, "Invalid user_id", 400, nil)
	}
	date, err := validation.ParseDate(req.InvoiceDate)
	if err != nil {
		return response.Error(c, err.Error(), 400, nil)
	}
	in := invsvc.CreateInput{
		UserID:                userID,
		InvoiceNumber:         req.InvoiceNumber,
		InvoiceDate:           date,
		TotalAmountInUsdCents: req.TotalAmountInUsdCents,
		EquityPercentage:      req.EquityPercentage,
	}
	if req.CompanyInvestorID != nil {
		id, err := uuid.Parse(*req.CompanyInvestorID)
		if err != nil {
			return response.Error(c, "Invalid company_investor_id", 400, nil)
		}
		in.CompanyInvestorID = &id
	}

	res, err := h.Service.Create(c.UserContext(), companyID, in)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	if !res.Success {
		return response.Error(c, res.Error, 422, nil)
	}
	return response.SuccessCreated(c, "Invoice created", fiber.Map{"invoice": res.Invoice}, nil)
}

// Approve PATCH /api/v1/invoices/:id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid invoice id", 400, nil)
	}
	var body struct {
		ApprovedByID *string `json:"approved_by_id"`
	}
	_ = c.BodyParser(&body)
	var approver *uuid.UUID
	if body.ApprovedByID != nil {
		a, err := uuid.Parse(*body.ApprovedByID)
		if err != nil {
			return response.Error(c, "Invalid approved_by_id", 400, nil)
		}
		approver = &a
	}

	res, err := h.Service.Approve(c.UserContext(), id, approver)
	if err != nil {
		if errors.Is(err, invsvc.ErrInvoiceNotFound) {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	if !res.Success {
		return response.Error(c, res.Error, 422, nil)
	}
	return response.Success(c, "Invoice approved", fiber.Map{"invoice": res.Invoice}, nil)
}
