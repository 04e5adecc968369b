package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invoice is a contractor's bill to a company, split into cash and equity.
type Invoice struct {
	ID                    uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID             uuid.UUID      `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	UserID                uuid.UUID      `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	CompanyInvestorID     *uuid.UUID     `gorm:"column:company_investor_id;type:uuid" json:"company_investor_id"`
	InvoiceNumber         string         `gorm:"column:invoice_number" json:"invoice_number"`
	InvoiceDate           time.Time      `gorm:"column:invoice_date;type:date;not null" json:"invoice_date"`
	TotalAmountInUsdCents int64          `gorm:"column:total_amount_in_usd_cents;not null" json:"total_amount_in_usd_cents"`
	CashAmountInCents     int64          `gorm:"column:cash_amount_in_cents;not null" json:"cash_amount_in_cents"`
	EquityAmountInCents   int64          `gorm:"column:equity_amount_in_cents;not null;default:0" json:"equity_amount_in_cents"`
	EquityPercentage      int            `gorm:"column:equity_percentage;not null;default:0" json:"equity_percentage"`
	EquityAmountInOptions *int64         `gorm:"column:equity_amount_in_options" json:"equity_amount_in_options"`
	FlexileFeeCents       int64          `gorm:"column:flexile_fee_cents;not null;default:0" json:"flexile_fee_cents"`
	Status                string         `gorm:"column:status;not null;default:'received'" json:"status"`
	ConsolidatedInvoiceID *uuid.UUID     `gorm:"column:consolidated_invoice_id;type:uuid;index" json:"consolidated_invoice_id"`
	ApprovedByID          *uuid.UUID     `gorm:"column:approved_by_id;type:uuid" json:"approved_by_id"`
	ApprovedAt            *time.Time     `gorm:"column:approved_at" json:"approved_at"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ConsolidatedInvoice is the platform's single bill to a company for one payment cycle.
type ConsolidatedInvoice struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID             uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	DividendRoundID       *uuid.UUID `gorm:"column:dividend_round_id;type:uuid;uniqueIndex" json:"dividend_round_id"`
	InvoiceDate           time.Time  `gorm:"column:invoice_date;type:date;not null" json:"invoice_date"`
	InvoiceAmountCents    int64      `gorm:"column:invoice_amount_cents;not null" json:"invoice_amount_cents"`
	FlexileFeeCents       int64      `gorm:"column:flexile_fee_cents;not null" json:"flexile_fee_cents"`
	TransferFeeCents      int64      `gorm:"column:transfer_fee_cents;not null;default:0" json:"transfer_fee_cents"`
	TotalCents            int64      `gorm:"column:total_cents;not null" json:"total_cents"`
	Status                string     `gorm:"column:status;not null;default:'created'" json:"status"`
	StripePaymentIntentID *string    `gorm:"column:stripe_payment_intent_id" json:"stripe_payment_intent_id"`
	Invoices              []Invoice  `gorm:"foreignKey:ConsolidatedInvoiceID" json:"invoices,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func (ConsolidatedInvoice) TableName() string {
	return "consolidated_invoices"
}

func (c *ConsolidatedInvoice) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
