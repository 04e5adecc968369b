package fees

import (
	feesvc "flexile-backend/internal/application/fees"
	"flexile-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct{}

type QuoteRequest struct {
	Schedule   string `json:"schedule"`
	TotalCents *int64 `json:"total_cents"`
}

// Quote POST /api/v1/fees/quote: platform fee for an invoice or dividend amount.
func (h *Handlers) Quote(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil || req.TotalCents == nil {
		return response.Error(c, "Missing required field: total_cents", 400, nil)
	}
	if req.Schedule == "" {
		req.Schedule = feesvc.InvoiceSchedule.Name
	}
	schedule, ok := feesvc.ScheduleByName(req.Schedule)
	if !ok {
		return response.Error(c, "Unknown fee schedule", 400, nil)
	}
	fee, err := schedule.Fee(*req.TotalCents)
	if err != nil {
		return response.Error(c, err.Error(), 400, nil)
	}
	return response.Success(c, "Fee calculated", fiber.Map{
		"schedule":    schedule.Name,
		"total_cents": *req.TotalCents,
		"fee_cents":   fee,
	}, nil)
}
