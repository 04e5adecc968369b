package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrDuplicateDefaultShareClass = errors.New("company already has a default share class")
	ErrShareHoldingImmutable      = errors.New("share holdings cannot be modified once issued")
)

// ShareClass describes the economic terms of one class of shares.
// A nil SeniorityRank sorts after every ranked class.
type ShareClass struct {
	ID                            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID                     uuid.UUID           `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	Name                          string              `gorm:"column:name;not null" json:"name"`
	IsDefault                     bool                `gorm:"column:is_default;not null;default:false" json:"is_default"`
	SeniorityRank                 *int                `gorm:"column:seniority_rank" json:"seniority_rank"`
	OriginalIssuePriceInDollars   decimal.NullDecimal `gorm:"column:original_issue_price_in_dollars;type:decimal(20,10)" json:"original_issue_price_in_dollars"`
	LiquidationPreferenceMultiple decimal.Decimal     `gorm:"column:liquidation_preference_multiple;type:decimal(10,4);not null;default:1" json:"liquidation_preference_multiple"`
	Preferred                     bool                `gorm:"column:preferred;not null;default:false" json:"preferred"`
	Participating                 bool                `gorm:"column:participating;not null;default:false" json:"participating"`
	ParticipationCapMultiple      decimal.NullDecimal `gorm:"column:participation_cap_multiple;type:decimal(10,4)" json:"participation_cap_multiple"`
	CreatedAt                     time.Time           `json:"createdAt"`
	UpdatedAt                     time.Time           `json:"updatedAt"`
}

func (ShareClass) TableName() string {
	return "share_classes"
}

func (s *ShareClass) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// BeforeSave keeps at most one default (common) class per company.
func (s *ShareClass) BeforeSave(tx *gorm.DB) error {
	if !s.IsDefault {
		return nil
	}
	var count int64
	if err := tx.Model(&ShareClass{}).
		Where("company_id = ? AND is_default = ? AND id <> ?", s.CompanyID, true, s.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateDefaultShareClass
	}
	return nil
}

// ShareHolding is an issued block of shares. Immutable once created.
type ShareHolding struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID         uuid.UUID       `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	CompanyInvestorID uuid.UUID       `gorm:"column:company_investor_id;type:uuid;not null;index" json:"company_investor_id"`
	ShareClassID      uuid.UUID       `gorm:"column:share_class_id;type:uuid;not null" json:"share_class_id"`
	NumberOfShares    int64           `gorm:"column:number_of_shares;not null" json:"number_of_shares"`
	SharePriceUsd     decimal.Decimal `gorm:"column:share_price_usd;type:decimal(20,10);not null" json:"share_price_usd"`
	IssuedAt          time.Time       `gorm:"column:issued_at;not null" json:"issued_at"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (ShareHolding) TableName() string {
	return "share_holdings"
}

func (h *ShareHolding) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.NumberOfShares < 0 {
		return errors.New("number_of_shares must be >= 0")
	}
	return nil
}

func (h *ShareHolding) BeforeUpdate(tx *gorm.DB) error {
	return ErrShareHoldingImmutable
}

// ConvertibleSecurity is a SAFE or note. Principal terms never change after issuance.
type ConvertibleSecurity struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID             uuid.UUID           `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	CompanyInvestorID     uuid.UUID           `gorm:"column:company_investor_id;type:uuid;not null;index" json:"company_investor_id"`
	PrincipalValueInCents int64               `gorm:"column:principal_value_in_cents;not null" json:"principal_value_in_cents"`
	InterestRatePercent   decimal.NullDecimal `gorm:"column:interest_rate_percent;type:decimal(8,4)" json:"interest_rate_percent"`
	MaturityDate          *time.Time          `gorm:"column:maturity_date" json:"maturity_date"`
	IssuedAt              time.Time           `gorm:"column:issued_at;not null" json:"issued_at"`
	ValuationCapCents     *int64              `gorm:"column:valuation_cap_cents" json:"valuation_cap_cents"`
	DiscountRatePercent   decimal.NullDecimal `gorm:"column:discount_rate_percent;type:decimal(8,4)" json:"discount_rate_percent"`
	ImpliedShares         decimal.Decimal     `gorm:"column:implied_shares;type:decimal(30,10);not null" json:"implied_shares"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

func (ConvertibleSecurity) TableName() string {
	return "convertible_securities"
}

func (c *ConvertibleSecurity) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// EquityGrant is an option grant whose price drives the invoice equity split.
type EquityGrant struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyInvestorID uuid.UUID       `gorm:"column:company_investor_id;type:uuid;not null;index" json:"company_investor_id"`
	PeriodYear        int             `gorm:"column:period_year;not null" json:"period_year"`
	SharePriceUsd     decimal.Decimal `gorm:"column:share_price_usd;type:decimal(20,10);not null" json:"share_price_usd"`
	UnvestedShares    int64           `gorm:"column:unvested_shares;not null" json:"unvested_shares"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (EquityGrant) TableName() string {
	return "equity_grants"
}

func (g *EquityGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
