// Package invoices records contractor invoices with their cash/equity split and platform fee.
package invoices

import (
	"context"
	"errors"
	"strings"
	"time"

	"flexile-backend/internal/application/equity"
	"flexile-backend/internal/application/fees"
	"flexile-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrInvoiceNotFound = errors.New("Invoice not found")
	ErrNotApprovable   = errors.New("Invoice cannot be approved in its current status")
)

type Service struct {
	DB     *gorm.DB
	Equity *equity.Service
}

type CreateInput struct {
	UserID                uuid.UUID  `json:"user_id"`
	CompanyInvestorID     *uuid.UUID `json:"company_investor_id"`
	InvoiceNumber         string     `json:"invoice_number"`
	InvoiceDate           time.Time  `json:"invoice_date"`
	TotalAmountInUsdCents int64      `json:"total_amount_in_usd_cents"`
	EquityPercentage      int        `json:"equity_percentage"`
}

// Result is a validation outcome. Invoice is set on success.
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Invoice *domain.Invoice `json:"invoice,omitempty"`
}

func failure(err error) *Result {
	return &Result{Error: err.Error()}
}

// validationErrors are reported as a failed Result rather than returned.
var validationErrors = []error{
	equity.ErrCompanyNotFound,
	equity.ErrNegativeServiceAmount,
	equity.ErrInvalidEquityPercentage,
	equity.ErrInsufficientUnvestedShares,
	fees.ErrNegativeAmount,
}

func isValidation(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// Create splits the invoice total into cash and equity, stamps the platform fee and
// stores the invoice as received.
func (s *Service) Create(ctx context.Context, companyID uuid.UUID, in CreateInput) (*Result, error) {
	if in.UserID == uuid.Nil {
		return &Result{Error: "user_id is required"}, nil
	}
	if in.InvoiceDate.IsZero() {
		return &Result{Error: "invoice_date is required"}, nil
	}

	split, err := s.Equity.SplitForInvoice(ctx, companyID, in.CompanyInvestorID, in.InvoiceDate, in.TotalAmountInUsdCents, in.EquityPercentage)
	if err != nil {
		if isValidation(err) {
			return failure(err), nil
		}
		return nil, err
	}
	fee, err := fees.InvoiceFee(in.TotalAmountInUsdCents)
	if err != nil {
		return failure(err), nil
	}

	inv := &domain.Invoice{
		CompanyID:             companyID,
		UserID:                in.UserID,
		CompanyInvestorID:     in.CompanyInvestorID,
		InvoiceNumber:         strings.TrimSpace(in.InvoiceNumber),
		InvoiceDate:           in.InvoiceDate,
		TotalAmountInUsdCents: in.TotalAmountInUsdCents,
		CashAmountInCents:     split.CashCents,
		EquityAmountInCents:   split.EquityCents,
		EquityPercentage:      split.EffectiveEquityPercentage,
		EquityAmountInOptions: split.EquityOptionShares,
		FlexileFeeCents:       fee,
		Status:                domain.InvoiceReceived,
	}
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	log.Info().
		Str("invoice_id", inv.ID.String()).
		Int64("cash_cents", inv.CashAmountInCents).
		Int64("equity_cents", inv.EquityAmountInCents).
		Msg("invoice created")
	return &Result{Success: true, Invoice: inv}, nil
}

// Approve moves a received invoice to approved so billing can consolidate it.
func (s *Service) Approve(ctx context.Context, invoiceID uuid.UUID, approverID *uuid.UUID) (*Result, error) {
	var inv domain.Invoice
	if err := s.DB.WithContext(ctx).Where("id = ?", invoiceID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if inv.Status != domain.InvoiceReceived {
		return failure(ErrNotApprovable), nil
	}

	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", inv.ID, domain.InvoiceReceived).
		Updates(map[string]interface{}{
			"status":         domain.InvoiceApproved,
			"approved_at":    now,
			"approved_by_id": approverID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return failure(ErrNotApprovable), nil
	}
	inv.Status = domain.InvoiceApproved
	inv.ApprovedAt = &now
	inv.ApprovedByID = approverID
	return &Result{Success: true, Invoice: &inv}, nil
}
