package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Company is the customer paying contractors and investors through the platform.
type Company struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name             string              `gorm:"column:name;not null" json:"name"`
	EquityEnabled    bool                `gorm:"column:equity_enabled;not null;default:false" json:"equity_enabled"`
	FmvPerShareInUsd decimal.NullDecimal `gorm:"column:fmv_per_share_in_usd;type:decimal(20,10)" json:"fmv_per_share_in_usd"`
	StripeCustomerID *string             `gorm:"column:stripe_customer_id" json:"stripe_customer_id"`
	BankAccountReady bool                `gorm:"column:bank_account_ready;not null;default:false" json:"bank_account_ready"`
	DeactivatedAt    *time.Time          `gorm:"column:deactivated_at" json:"deactivated_at"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt      `gorm:"index" json:"-"`
}

func (Company) TableName() string {
	return "companies"
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Active reports whether the company still has a billing relationship with the platform.
func (c *Company) Active() bool {
	return c.DeactivatedAt == nil
}

// User is a person on the platform: contractor, investor or administrator.
type User struct {
	ID                        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email                     string     `gorm:"column:email;not null;uniqueIndex" json:"email"`
	LegalName                 string     `gorm:"column:legal_name" json:"legal_name"`
	CountryCode               string     `gorm:"column:country_code;type:char(2)" json:"country_code"`
	TaxInformationConfirmedAt *time.Time `gorm:"column:tax_information_confirmed_at" json:"tax_information_confirmed_at"`
	TaxIDStatus               string     `gorm:"column:tax_id_status" json:"tax_id_status"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TaxIDVerified reports whether the user's tax id passed verification.
func (u *User) TaxIDVerified() bool {
	return u.TaxIDStatus == TaxIDStatusVerified
}

// CompanyInvestor links a user to a company they hold securities in.
type CompanyInvestor struct {
	ID                            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID                     uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	UserID                        uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	User                          User       `gorm:"foreignKey:UserID" json:"user"`
	OnboardingCompletedAt         *time.Time `gorm:"column:onboarding_completed_at" json:"onboarding_completed_at"`
	MinimumDividendPaymentInCents int64      `gorm:"column:minimum_dividend_payment_in_cents;not null;default:0" json:"minimum_dividend_payment_in_cents"`
	CreatedAt                     time.Time  `json:"createdAt"`
	UpdatedAt                     time.Time  `json:"updatedAt"`
}

func (CompanyInvestor) TableName() string {
	return "company_investors"
}

func (ci *CompanyInvestor) BeforeCreate(tx *gorm.DB) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	return nil
}

// WiseRecipient is a bank account registered with the payment processor.
type WiseRecipient struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	RecipientID      string         `gorm:"column:recipient_id;not null" json:"recipient_id"`
	Currency         string         `gorm:"column:currency;type:char(3);not null" json:"currency"`
	LastFourDigits   string         `gorm:"column:last_four_digits" json:"last_four_digits"`
	UsedForDividends bool           `gorm:"column:used_for_dividends;not null;default:false" json:"used_for_dividends"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (WiseRecipient) TableName() string {
	return "wise_recipients"
}

func (w *WiseRecipient) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
