package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment is one orchestration attempt for a batch of payout items. A retry always
// creates a new Payment with a fresh ProcessorUUID.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PayoutType            string              `gorm:"column:payout_type;not null" json:"payout_type"`
	CompanyInvestorID     uuid.UUID           `gorm:"column:company_investor_id;type:uuid;not null;index" json:"company_investor_id"`
	WiseRecipientID       *uuid.UUID          `gorm:"column:wise_recipient_id;type:uuid" json:"wise_recipient_id"`
	ProcessorUUID         string              `gorm:"column:processor_uuid;not null;uniqueIndex" json:"processor_uuid"`
	Status                string              `gorm:"column:status;not null;default:'initial'" json:"status"`
	NetAmountInUsdCents   int64               `gorm:"column:net_amount_in_usd_cents;not null" json:"net_amount_in_usd_cents"`
	WiseQuoteID           *string             `gorm:"column:wise_quote_id" json:"wise_quote_id"`
	WiseQuote             datatypes.JSON      `gorm:"column:wise_quote;type:jsonb" json:"wise_quote"`
	TransferID            *string             `gorm:"column:transfer_id" json:"transfer_id"`
	WiseTransferStatus    *string             `gorm:"column:wise_transfer_status" json:"wise_transfer_status"`
	WiseTransferEstimate  *time.Time          `gorm:"column:wise_transfer_estimate" json:"wise_transfer_estimate"`
	ConversionRate        decimal.NullDecimal `gorm:"column:conversion_rate;type:decimal(20,10)" json:"conversion_rate"`
	TransferFeeInCents    *int64              `gorm:"column:transfer_fee_in_cents" json:"transfer_fee_in_cents"`
	TotalTransactionCents *int64              `gorm:"column:total_transaction_cents" json:"total_transaction_cents"`
	TransferCurrency      string              `gorm:"column:transfer_currency" json:"transfer_currency"`
	RecipientLast4        string              `gorm:"column:recipient_last4" json:"recipient_last4"`
	FailureReason         *string             `gorm:"column:failure_reason" json:"failure_reason"`
	Items                 []PaymentItem       `gorm:"foreignKey:PaymentID" json:"items,omitempty"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PaymentItem links a Payment to the dividend or buyback rows it pays.
type PaymentItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentID uuid.UUID `gorm:"column:payment_id;type:uuid;not null;index" json:"payment_id"`
	ItemType  string    `gorm:"column:item_type;not null" json:"item_type"`
	ItemID    uuid.UUID `gorm:"column:item_id;type:uuid;not null;index" json:"item_id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (PaymentItem) TableName() string {
	return "payment_items"
}

func (p *PaymentItem) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
