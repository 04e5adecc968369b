package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LiquidationScenario is a what-if exit. Its payouts are regenerated on every calculation
// and are only valid as of CalculatedAt.
type LiquidationScenario struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyID       uuid.UUID           `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	Name            string              `gorm:"column:name;not null" json:"name"`
	ExitAmountCents int64               `gorm:"column:exit_amount_cents;not null" json:"exit_amount_cents"`
	ExitDate        *time.Time          `gorm:"column:exit_date" json:"exit_date"`
	Status          string              `gorm:"column:status;not null;default:'draft'" json:"status"`
	CalculatedAt    *time.Time          `gorm:"column:calculated_at" json:"calculated_at"`
	Metadata        datatypes.JSON      `gorm:"column:metadata;type:jsonb" json:"metadata"`
	Payouts         []LiquidationPayout `gorm:"foreignKey:LiquidationScenarioID" json:"payouts,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func (LiquidationScenario) TableName() string {
	return "liquidation_scenarios"
}

func (s *LiquidationScenario) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// LiquidationPayout is one (investor, share class) or (investor, convertible) allocation.
// Amount columns are cents.
type LiquidationPayout struct {
	ID                          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LiquidationScenarioID       uuid.UUID  `gorm:"column:liquidation_scenario_id;type:uuid;not null;index" json:"liquidation_scenario_id"`
	CompanyInvestorID           uuid.UUID  `gorm:"column:company_investor_id;type:uuid;not null" json:"company_investor_id"`
	SecurityType                string     `gorm:"column:security_type;not null" json:"security_type"`
	ShareClassID                *uuid.UUID `gorm:"column:share_class_id;type:uuid" json:"share_class_id"`
	ShareClassName              *string    `gorm:"column:share_class_name" json:"share_class_name"`
	ConvertibleSecurityID       *uuid.UUID `gorm:"column:convertible_security_id;type:uuid" json:"convertible_security_id"`
	ConversionPath              *string    `gorm:"column:conversion_path" json:"conversion_path"`
	NumberOfShares              int64      `gorm:"column:number_of_shares;not null;default:0" json:"number_of_shares"`
	PayoutAmountCents           int64      `gorm:"column:payout_amount_cents;not null" json:"payout_amount_cents"`
	LiquidationPreferenceAmount int64      `gorm:"column:liquidation_preference_amount;not null;default:0" json:"liquidation_preference_amount"`
	ParticipationAmount         int64      `gorm:"column:participation_amount;not null;default:0" json:"participation_amount"`
	CommonProceedsAmount        int64      `gorm:"column:common_proceeds_amount;not null;default:0" json:"common_proceeds_amount"`
	CreatedAt                   time.Time  `json:"createdAt"`
	UpdatedAt                   time.Time  `json:"updatedAt"`
}

func (LiquidationPayout) TableName() string {
	return "liquidation_payouts"
}

func (p *LiquidationPayout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
