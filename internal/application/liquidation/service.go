package liquidation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"flexile-backend/internal/domain"
	"flexile-backend/internal/infrastructure/locker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrScenarioNotFound = errors.New("Liquidation scenario not found")
	ErrMissingInvestor  = errors.New("security references an investor outside the company")
)

const defaultLockTTL = 5 * time.Minute

type Service struct {
	DB         *gorm.DB
	Locker     locker.Locker
	Calculator Calculator
	LockTTL    time.Duration
	// SnapshotTxOptions isolates the cap-table read. Postgres deployments set repeatable read.
	SnapshotTxOptions *sql.TxOptions
}

type CreateInput struct {
	Name            string     `json:"name"`
	ExitAmountCents int64      `json:"exit_amount_cents"`
	ExitDate        *time.Time `json:"exit_date"`
}

// CreateResult is a validation outcome; Scenario is set on success.
type CreateResult struct {
	Success  bool                        `json:"success"`
	Error    string                      `json:"error,omitempty"`
	Scenario *domain.LiquidationScenario `json:"scenario,omitempty"`
}

// InvestorSummary totals one investor's payouts in a scenario.
type InvestorSummary struct {
	CompanyInvestorID uuid.UUID `json:"company_investor_id"`
	EquityCents       int64     `json:"equity_cents"`
	ConvertibleCents  int64     `json:"convertible_cents"`
	TotalCents        int64     `json:"total_cents"`
}

func LockKey(scenarioID uuid.UUID) string {
	return "liquidation_scenario:" + scenarioID.String()
}

// Create stores a draft scenario and calculates it immediately.
func (s *Service) Create(ctx context.Context, companyID uuid.UUID, in CreateInput) (*CreateResult, error) {
	if in.ExitAmountCents <= 0 {
		return &CreateResult{Error: ErrNonPositiveExitAmount.Error()}, nil
	}
	name := in.Name
	if name == "" {
		name = fmt.Sprintf("Exit at %d", in.ExitAmountCents)
	}

	var company domain.Company
	if err := s.DB.WithContext(ctx).Where("id = ?", companyID).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CreateResult{Error: "Company not found"}, nil
		}
		return nil, err
	}

	hasSecurities, err := s.hasSecurities(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !hasSecurities {
		return &CreateResult{Error: ErrNoSecurities.Error()}, nil
	}

	scenario := domain.LiquidationScenario{
		CompanyID:       companyID,
		Name:            name,
		ExitAmountCents: in.ExitAmountCents,
		ExitDate:        in.ExitDate,
		Status:          domain.ScenarioDraft,
	}
	if err := s.DB.WithContext(ctx).Create(&scenario).Error; err != nil {
		return nil, err
	}

	calculated, err := s.Calculate(ctx, scenario.ID)
	if err != nil {
		if errors.Is(err, ErrNoSecurities) {
			// Securities were removed between the check and the calculation.
			if derr := s.DB.WithContext(ctx).Delete(&scenario).Error; derr != nil {
				return nil, derr
			}
			return &CreateResult{Error: err.Error()}, nil
		}
		return nil, err
	}
	return &CreateResult{Success: true, Scenario: calculated}, nil
}

func (s *Service) hasSecurities(ctx context.Context, companyID uuid.UUID) (bool, error) {
	db := s.DB.WithContext(ctx)
	var holdings, convertibles int64
	if err := db.Model(&domain.ShareHolding{}).Where("company_id = ?", companyID).Count(&holdings).Error; err != nil {
		return false, err
	}
	if holdings > 0 {
		return true, nil
	}
	if err := db.Model(&domain.ConvertibleSecurity{}).Where("company_id = ?", companyID).Count(&convertibles).Error; err != nil {
		return false, err
	}
	return convertibles > 0, nil
}

// Calculate regenerates every payout row of the scenario from the current cap table.
// Only one calculation per scenario runs at a time; a concurrent call gets locker.ErrLocked.
func (s *Service) Calculate(ctx context.Context, scenarioID uuid.UUID) (*domain.LiquidationScenario, error) {
	start := time.Now()
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	release, err := s.Locker.Lock(ctx, LockKey(scenarioID), ttl)
	if err != nil {
		return nil, err
	}
	defer release()

	scenario, input, err := s.snapshot(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	result, err := s.Calculator.Calculate(*input)
	if err != nil {
		var inv *InvariantError
		if errors.As(err, &inv) {
			log.Error().Str("scenario_id", scenarioID.String()).
				Int64("exit_amount_cents", inv.ExitAmountCents).
				Int64("total_payout_cents", inv.TotalPayoutCents).
				Msg("liquidation payouts exceed exit amount")
		}
		return nil, err
	}

	rows := make([]domain.LiquidationPayout, 0, len(result.Payouts))
	for _, p := range result.Payouts {
		row := domain.LiquidationPayout{
			LiquidationScenarioID:       scenario.ID,
			CompanyInvestorID:           p.InvestorID,
			SecurityType:                p.SecurityType,
			ShareClassID:                p.ShareClassID,
			ConvertibleSecurityID:       p.ConvertibleSecurityID,
			NumberOfShares:              p.NumberOfShares,
			PayoutAmountCents:           p.PayoutAmountCents,
			LiquidationPreferenceAmount: p.LiquidationPreferenceAmount,
			ParticipationAmount:         p.ParticipationAmount,
			CommonProceedsAmount:        p.CommonProceedsAmount,
		}
		if p.ShareClassName != "" {
			name := p.ShareClassName
			row.ShareClassName = &name
		}
		if p.ConversionPath != "" {
			path := p.ConversionPath
			row.ConversionPath = &path
		}
		rows = append(rows, row)
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"total_payout_cents":  result.TotalPayoutCents,
		"equity_pool_cents":   result.EquityPoolCents,
		"undistributed_cents": result.UndistributedCents,
		"payout_count":        len(rows),
	})
	if err != nil {
		return nil, err
	}
	calculatedAt := time.Now()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("liquidation_scenario_id = ?", scenario.ID).Delete(&domain.LiquidationPayout{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
				return err
			}
		}
		return tx.Model(&domain.LiquidationScenario{}).Where("id = ?", scenario.ID).Updates(map[string]interface{}{
			"calculated_at": calculatedAt,
			"metadata":      datatypes.JSON(metadata),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	scenario.CalculatedAt = &calculatedAt
	scenario.Metadata = datatypes.JSON(metadata)
	scenario.Payouts = rows
	log.Info().
		Str("scenario_id", scenario.ID.String()).
		Int("payouts", len(rows)).
		Int64("total_payout_cents", result.TotalPayoutCents).
		Dur("duration", time.Since(start)).
		Msg("liquidation scenario calculated")
	return scenario, nil
}

// snapshot reads the scenario and its company's cap table in one transaction.
func (s *Service) snapshot(ctx context.Context, scenarioID uuid.UUID) (*domain.LiquidationScenario, *Input, error) {
	var (
		scenario     domain.LiquidationScenario
		classes      []domain.ShareClass
		holdings     []domain.ShareHolding
		convertibles []domain.ConvertibleSecurity
		investorIDs  []uuid.UUID
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", scenarioID).First(&scenario).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScenarioNotFound
			}
			return err
		}
		if err := tx.Where("company_id = ?", scenario.CompanyID).Find(&classes).Error; err != nil {
			return err
		}
		if err := tx.Where("company_id = ?", scenario.CompanyID).Find(&holdings).Error; err != nil {
			return err
		}
		if err := tx.Where("company_id = ?", scenario.CompanyID).Find(&convertibles).Error; err != nil {
			return err
		}
		return tx.Model(&domain.CompanyInvestor{}).Where("company_id = ?", scenario.CompanyID).Pluck("id", &investorIDs).Error
	}, s.SnapshotTxOptions)
	if err != nil {
		return nil, nil, err
	}

	known := make(map[uuid.UUID]bool, len(investorIDs))
	for _, id := range investorIDs {
		known[id] = true
	}

	in := &Input{ExitAmountCents: scenario.ExitAmountCents}
	for _, sc := range classes {
		terms := ShareClassTerms{
			ID:                            sc.ID,
			Name:                          sc.Name,
			SeniorityRank:                 sc.SeniorityRank,
			OriginalIssuePriceInDollars:   decimal.Zero,
			LiquidationPreferenceMultiple: sc.LiquidationPreferenceMultiple,
			Preferred:                     sc.Preferred,
			Participating:                 sc.Participating,
		}
		if sc.OriginalIssuePriceInDollars.Valid {
			terms.OriginalIssuePriceInDollars = sc.OriginalIssuePriceInDollars.Decimal
		}
		if sc.ParticipationCapMultiple.Valid {
			capMultiple := sc.ParticipationCapMultiple.Decimal
			terms.ParticipationCapMultiple = &capMultiple
		}
		in.ShareClasses = append(in.ShareClasses, terms)
	}
	for _, h := range holdings {
		if !known[h.CompanyInvestorID] {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingInvestor, h.CompanyInvestorID)
		}
		in.Holdings = append(in.Holdings, Holding{
			InvestorID:     h.CompanyInvestorID,
			ShareClassID:   h.ShareClassID,
			NumberOfShares: h.NumberOfShares,
		})
	}
	for _, cs := range convertibles {
		if !known[cs.CompanyInvestorID] {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingInvestor, cs.CompanyInvestorID)
		}
		c := Convertible{
			ID:                    cs.ID,
			InvestorID:            cs.CompanyInvestorID,
			PrincipalValueInCents: cs.PrincipalValueInCents,
			MaturityDate:          cs.MaturityDate,
			IssuedAt:              cs.IssuedAt,
			ValuationCapCents:     cs.ValuationCapCents,
			ImpliedShares:         cs.ImpliedShares,
		}
		if cs.InterestRatePercent.Valid {
			rate := cs.InterestRatePercent.Decimal
			c.InterestRatePercent = &rate
		}
		if cs.DiscountRatePercent.Valid {
			discount := cs.DiscountRatePercent.Decimal
			c.DiscountRatePercent = &discount
		}
		in.Convertibles = append(in.Convertibles, c)
	}
	return &scenario, in, nil
}

// Payouts lists the scenario's rows, largest first.
func (s *Service) Payouts(ctx context.Context, scenarioID uuid.UUID) ([]domain.LiquidationPayout, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.LiquidationScenario{}).Where("id = ?", scenarioID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrScenarioNotFound
	}
	var rows []domain.LiquidationPayout
	err := s.DB.WithContext(ctx).
		Where("liquidation_scenario_id = ?", scenarioID).
		Order("payout_amount_cents DESC").
		Find(&rows).Error
	return rows, err
}

// Summary aggregates the scenario's payouts per investor, largest total first.
func (s *Service) Summary(ctx context.Context, scenarioID uuid.UUID) ([]InvestorSummary, error) {
	rows, err := s.Payouts(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	byInvestor := map[uuid.UUID]*InvestorSummary{}
	var out []*InvestorSummary
	for _, r := range rows {
		sum, ok := byInvestor[r.CompanyInvestorID]
		if !ok {
			sum = &InvestorSummary{CompanyInvestorID: r.CompanyInvestorID}
			byInvestor[r.CompanyInvestorID] = sum
			out = append(out, sum)
		}
		if r.SecurityType == domain.SecurityTypeConvertible {
			sum.ConvertibleCents += r.PayoutAmountCents
		} else {
			sum.EquityCents += r.PayoutAmountCents
		}
		sum.TotalCents += r.PayoutAmountCents
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalCents > out[j].TotalCents })
	summaries := make([]InvestorSummary, 0, len(out))
	for _, sum := range out {
		summaries = append(summaries, *sum)
	}
	return summaries, nil
}
