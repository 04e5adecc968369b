package equity

import (
	"context"
	"errors"
	"time"

	"flexile-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrCompanyNotFound = errors.New("Company not found")

type Service struct {
	DB *gorm.DB
}

// PriceSource is where the share price of a split came from.
type PriceSource struct {
	SharePriceUsd  *decimal.Decimal
	UnvestedShares *int64
	FromGrant      bool
}

// ResolveSharePrice prefers the investor's unvested grant for the invoice year and
// falls back to the company's fair market value.
func (s *Service) ResolveSharePrice(ctx context.Context, company *domain.Company, investorID *uuid.UUID, invoiceDate time.Time) (PriceSource, error) {
	if investorID != nil {
		var grant domain.EquityGrant
		err := s.DB.WithContext(ctx).
			Where("company_investor_id = ? AND period_year = ? AND unvested_shares > 0", *investorID, invoiceDate.Year()).
			Order("created_at DESC").
			First(&grant).Error
		if err == nil {
			price := grant.SharePriceUsd
			unvested := grant.UnvestedShares
			return PriceSource{SharePriceUsd: &price, UnvestedShares: &unvested, FromGrant: true}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return PriceSource{}, err
		}
	}
	if company.FmvPerShareInUsd.Valid {
		price := company.FmvPerShareInUsd.Decimal
		return PriceSource{SharePriceUsd: &price}, nil
	}
	return PriceSource{}, nil
}

// SplitForInvoice resolves the share price and computes the split for one invoice.
func (s *Service) SplitForInvoice(ctx context.Context, companyID uuid.UUID, investorID *uuid.UUID, invoiceDate time.Time, serviceAmountCents int64, equityPercentage int) (Split, error) {
	var company domain.Company
	if err := s.DB.WithContext(ctx).Where("id = ?", companyID).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Split{}, ErrCompanyNotFound
		}
		return Split{}, err
	}
	src, err := s.ResolveSharePrice(ctx, &company, investorID, invoiceDate)
	if err != nil {
		return Split{}, err
	}
	return Calculate(Input{
		ServiceAmountCents: serviceAmountCents,
		EquityPercentage:   equityPercentage,
		SharePriceUsd:      src.SharePriceUsd,
		EquityEnabled:      company.EquityEnabled,
		UnvestedShares:     src.UnvestedShares,
	})
}
