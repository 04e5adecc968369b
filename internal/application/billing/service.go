// Package billing rolls payable invoices and dividend rounds up into the single
// consolidated invoice a company is charged for each payment cycle.
package billing

import (
	"context"
	"errors"
	"sort"
	"time"

	"flexile-backend/internal/application/fees"
	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/locker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrCompanyNotFound             = errors.New("Company not found")
	ErrBillingNotReady             = errors.New("Company billing is not active or its bank account is not ready")
	ErrDividendRoundNotFound       = errors.New("Dividend round not found")
	ErrRoundAlreadyConsolidated    = errors.New("Dividend round already has a consolidated invoice")
	ErrConsolidatedInvoiceNotFound = errors.New("Consolidated invoice not found")
	ErrNotChargeable               = errors.New("Consolidated invoice is not awaiting payment")
	ErrNoStripeCustomer            = errors.New("Company has no Stripe customer")
)

const defaultLockTTL = time.Minute

type Service struct {
	DB      *gorm.DB
	Locker  locker.Locker
	Charger Charger
	LockTTL time.Duration
}

func companyLockKey(companyID uuid.UUID) string {
	return "billing:company:" + companyID.String()
}

func (s *Service) lock(ctx context.Context, companyID uuid.UUID) (func(), error) {
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return s.Locker.Lock(ctx, companyLockKey(companyID), ttl)
}

// readyCompany loads the company and checks it can be billed.
func (s *Service) readyCompany(ctx context.Context, companyID uuid.UUID) (*domain.Company, error) {
	var company domain.Company
	if err := s.DB.WithContext(ctx).Where("id = ?", companyID).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	if !company.Active() || !company.BankAccountReady {
		return nil, ErrBillingNotReady
	}
	return &company, nil
}

// ConsolidateInvoices groups the company's approved, not yet consolidated invoices by
// invoice date and creates one consolidated invoice per date. Grouped invoices move to
// payment_pending in the same transaction. No payable invoices means an empty result.
func (s *Service) ConsolidateInvoices(ctx context.Context, companyID uuid.UUID) ([]domain.ConsolidatedInvoice, error) {
	if _, err := s.readyCompany(ctx, companyID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, companyID)
	if err != nil {
		return nil, err
	}
	defer release()

	var created []domain.ConsolidatedInvoice
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoices []domain.Invoice
		if err := tx.Where("company_id = ? AND status = ? AND consolidated_invoice_id IS NULL", companyID, domain.InvoiceApproved).
			Order("invoice_date, created_at").Find(&invoices).Error; err != nil {
			return err
		}

		groups := make(map[string][]domain.Invoice)
		for _, inv := range invoices {
			key := inv.InvoiceDate.Format("2006-01-02")
			groups[key] = append(groups[key], inv)
		}
		dates := make([]string, 0, len(groups))
		for d := range groups {
			dates = append(dates, d)
		}
		sort.Strings(dates)

		for _, d := range dates {
			group := groups[d]
			ci := domain.ConsolidatedInvoice{
				CompanyID:   companyID,
				InvoiceDate: group[0].InvoiceDate,
				Status:      domain.ConsolidatedInvoiceCreated,
			}
			ids := make([]uuid.UUID, 0, len(group))
			for _, inv := range group {
				ci.InvoiceAmountCents += inv.CashAmountInCents
				ci.FlexileFeeCents += inv.FlexileFeeCents
				ids = append(ids, inv.ID)
			}
			ci.TotalCents = ci.InvoiceAmountCents + ci.FlexileFeeCents + ci.TransferFeeCents
			if err := tx.Create(&ci).Error; err != nil {
				return err
			}
			if err := tx.Model(&domain.Invoice{}).Where("id IN ?", ids).Updates(map[string]interface{}{
				"consolidated_invoice_id": ci.ID,
				"status":                  domain.InvoicePaymentPending,
			}).Error; err != nil {
				return err
			}
			created = append(created, ci)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("company_id", companyID.String()).Int("consolidated_invoices", len(created)).Msg("invoices consolidated")
	return created, nil
}

// ConsolidateDividendRound bills the company for a dividend round: the dividends' total
// plus the processing fee of each dividend.
func (s *Service) ConsolidateDividendRound(ctx context.Context, roundID uuid.UUID) (*domain.ConsolidatedInvoice, error) {
	var round domain.DividendRound
	if err := s.DB.WithContext(ctx).Where("id = ?", roundID).First(&round).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDividendRoundNotFound
		}
		return nil, err
	}
	if _, err := s.readyCompany(ctx, round.CompanyID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, round.CompanyID)
	if err != nil {
		return nil, err
	}
	defer release()

	var ci *domain.ConsolidatedInvoice
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&domain.ConsolidatedInvoice{}).Where("dividend_round_id = ?", roundID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrRoundAlreadyConsolidated
		}

		var dividends []domain.Dividend
		if err := tx.Where("dividend_round_id = ?", roundID).Find(&dividends).Error; err != nil {
			return err
		}
		ci = &domain.ConsolidatedInvoice{
			CompanyID:       round.CompanyID,
			DividendRoundID: &round.ID,
			InvoiceDate:     round.IssuedAt,
			Status:          domain.ConsolidatedInvoiceCreated,
		}
		for _, d := range dividends {
			fee, err := fees.DividendFee(d.TotalAmountInCents)
			if err != nil {
				return err
			}
			ci.InvoiceAmountCents += d.TotalAmountInCents
			ci.FlexileFeeCents += fee
		}
		ci.TotalCents = ci.InvoiceAmountCents + ci.FlexileFeeCents + ci.TransferFeeCents
		return tx.Create(ci).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("dividend_round_id", roundID.String()).Int64("total_cents", ci.TotalCents).Msg("dividend round consolidated")
	return ci, nil
}
