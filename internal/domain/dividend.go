package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DividendRound is one dividend distribution by a company.
type DividendRound struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID          uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	IssuedAt           time.Time  `gorm:"column:issued_at;not null" json:"issued_at"`
	TotalAmountInCents int64      `gorm:"column:total_amount_in_cents;not null" json:"total_amount_in_cents"`
	Status             string     `gorm:"column:status;not null;default:'issued'" json:"status"`
	Dividends          []Dividend `gorm:"foreignKey:DividendRoundID" json:"dividends,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (DividendRound) TableName() string {
	return "dividend_rounds"
}

func (r *DividendRound) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Dividend is one investor's share of a dividend round.
//
// Dividend and EquityBuyback share the payout item columns (company_investor_id, status,
// net_amount_in_cents, retained_reason, processing_fee_cents, paid_at) so the payout
// orchestrator can drive either table.
type Dividend struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID          uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	DividendRoundID    uuid.UUID  `gorm:"column:dividend_round_id;type:uuid;not null;index" json:"dividend_round_id"`
	CompanyInvestorID  uuid.UUID  `gorm:"column:company_investor_id;type:uuid;not null;index" json:"company_investor_id"`
	TotalAmountInCents int64      `gorm:"column:total_amount_in_cents;not null" json:"total_amount_in_cents"`
	WithheldTaxCents   int64      `gorm:"column:withheld_tax_cents;not null;default:0" json:"withheld_tax_cents"`
	NetAmountInCents   int64      `gorm:"column:net_amount_in_cents;not null" json:"net_amount_in_cents"`
	ProcessingFeeCents int64      `gorm:"column:processing_fee_cents;not null;default:0" json:"processing_fee_cents"`
	Status             string     `gorm:"column:status;not null;default:'issued'" json:"status"`
	RetainedReason     *string    `gorm:"column:retained_reason" json:"retained_reason"`
	PaidAt             *time.Time `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (Dividend) TableName() string {
	return "dividends"
}

func (d *Dividend) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.NetAmountInCents == 0 {
		d.NetAmountInCents = d.TotalAmountInCents - d.WithheldTaxCents
	}
	return nil
}

// EquityBuyback is one investor's allocation in a tender offer.
type EquityBuyback struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID          uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	CompanyInvestorID  uuid.UUID  `gorm:"column:company_investor_id;type:uuid;not null;index" json:"company_investor_id"`
	ShareClassName     string     `gorm:"column:share_class_name" json:"share_class_name"`
	NumberOfShares     int64      `gorm:"column:number_of_shares;not null" json:"number_of_shares"`
	SharePriceCents    int64      `gorm:"column:share_price_cents;not null" json:"share_price_cents"`
	TotalAmountInCents int64      `gorm:"column:total_amount_in_cents;not null" json:"total_amount_in_cents"`
	NetAmountInCents   int64      `gorm:"column:net_amount_in_cents;not null" json:"net_amount_in_cents"`
	ProcessingFeeCents int64      `gorm:"column:processing_fee_cents;not null;default:0" json:"processing_fee_cents"`
	Status             string     `gorm:"column:status;not null;default:'issued'" json:"status"`
	RetainedReason     *string    `gorm:"column:retained_reason" json:"retained_reason"`
	PaidAt             *time.Time `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (EquityBuyback) TableName() string {
	return "equity_buybacks"
}

func (b *EquityBuyback) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.TotalAmountInCents == 0 {
		b.TotalAmountInCents = b.NumberOfShares * b.SharePriceCents
	}
	if b.NetAmountInCents == 0 {
		b.NetAmountInCents = b.TotalAmountInCents
	}
	return nil
}
