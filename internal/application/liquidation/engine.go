// Package liquidation allocates an exit amount across a company's share classes and
// convertible securities.
package liquidation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"flexile-backend/internal/domain"
	"flexile-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveExitAmount = errors.New("exit amount must be greater than zero")
	ErrNoSecurities          = errors.New("company has no share holdings or convertible securities")
	ErrUnknownShareClass     = errors.New("share holding references an unknown share class")
)

var daysPerYear = decimal.RequireFromString("365.25")

// InvariantError reports a payout set that breaks conservation. It means the model is
// wrong; nothing derived from it may be persisted.
type InvariantError struct {
	ExitAmountCents  int64
	TotalPayoutCents int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("liquidation payouts total %d cents, exceeding exit amount %d cents", e.TotalPayoutCents, e.ExitAmountCents)
}

// ShareClassTerms are the economic terms of a class. A nil SeniorityRank sorts last.
type ShareClassTerms struct {
	ID                            uuid.UUID
	Name                          string
	SeniorityRank                 *int
	OriginalIssuePriceInDollars   decimal.Decimal
	LiquidationPreferenceMultiple decimal.Decimal
	Preferred                     bool
	Participating                 bool
	ParticipationCapMultiple      *decimal.Decimal
}

type Holding struct {
	InvestorID     uuid.UUID
	ShareClassID   uuid.UUID
	NumberOfShares int64
}

type Convertible struct {
	ID                    uuid.UUID
	InvestorID            uuid.UUID
	PrincipalValueInCents int64
	InterestRatePercent   *decimal.Decimal
	MaturityDate          *time.Time
	IssuedAt              time.Time
	ValuationCapCents     *int64
	DiscountRatePercent   *decimal.Decimal
	ImpliedShares         decimal.Decimal
}

// Input is a consistent snapshot of the cap table for one calculation.
type Input struct {
	ExitAmountCents int64
	ShareClasses    []ShareClassTerms
	Holdings        []Holding
	Convertibles    []Convertible
}

// Payout is one computed allocation, in whole cents.
type Payout struct {
	InvestorID                  uuid.UUID
	SecurityType                string
	ShareClassID                *uuid.UUID
	ShareClassName              string
	ConvertibleSecurityID       *uuid.UUID
	ConversionPath              string
	NumberOfShares              int64
	PayoutAmountCents           int64
	LiquidationPreferenceAmount int64
	ParticipationAmount         int64
	CommonProceedsAmount        int64
}

type Result struct {
	Payouts            []Payout
	TotalPayoutCents   int64
	EquityPoolCents    int64
	UndistributedCents int64
}

// Calculator runs the waterfall. Now defaults to time.Now and dates convertible interest.
type Calculator struct {
	Now func() time.Time
}

// exact is a payout before rounding.
type exact struct {
	payout        Payout
	preference    decimal.Decimal
	participation decimal.Decimal
	common        decimal.Decimal
}

func (e exact) total() decimal.Decimal {
	return e.preference.Add(e.participation).Add(e.common)
}

type classKey struct {
	investor uuid.UUID
	class    uuid.UUID
}

// Calculate allocates the exit amount.
//
// Convertibles are valued against the full exit amount; the equity waterfall then
// distributes whatever the convertible payouts leave. Equity preferences are paid by
// seniority, then the residual goes pro rata to common and participating preferred
// holders, subject to participation caps.
func (c Calculator) Calculate(in Input) (*Result, error) {
	if in.ExitAmountCents <= 0 {
		return nil, ErrNonPositiveExitAmount
	}
	if len(in.Holdings) == 0 && len(in.Convertibles) == 0 {
		return nil, ErrNoSecurities
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	classes := make(map[uuid.UUID]ShareClassTerms, len(in.ShareClasses))
	for _, sc := range in.ShareClasses {
		classes[sc.ID] = sc
	}

	shares := map[classKey]int64{}
	var keys []classKey
	var totalEquityShares int64
	for _, h := range in.Holdings {
		if _, ok := classes[h.ShareClassID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownShareClass, h.ShareClassID)
		}
		k := classKey{investor: h.InvestorID, class: h.ShareClassID}
		if _, seen := shares[k]; !seen {
			keys = append(keys, k)
		}
		shares[k] += h.NumberOfShares
		totalEquityShares += h.NumberOfShares
	}

	exit := money.Cents(in.ExitAmountCents)
	convertibles := valueConvertibles(in.Convertibles, exit, totalEquityShares, now)

	convertibleTotal := money.Zero
	for _, e := range convertibles {
		convertibleTotal = convertibleTotal.Add(e.total())
	}
	equityPool := money.Max(exit.Sub(convertibleTotal), money.Zero)
	equity := distributeEquity(classes, shares, keys, equityPool)

	all := append(equity, convertibles...)
	payouts, total := roundPayouts(all)
	if total > in.ExitAmountCents {
		return nil, &InvariantError{ExitAmountCents: in.ExitAmountCents, TotalPayoutCents: total}
	}

	return &Result{
		Payouts:            payouts,
		TotalPayoutCents:   total,
		EquityPoolCents:    money.RoundCents(equityPool),
		UndistributedCents: in.ExitAmountCents - total,
	}, nil
}

// OrderedClasses sorts by seniority rank ascending with unranked classes last. Equal
// ranks keep a stable order by id.
func OrderedClasses(classes []ShareClassTerms) []ShareClassTerms {
	out := append([]ShareClassTerms(nil), classes...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].SeniorityRank, out[j].SeniorityRank
		switch {
		case ri == nil && rj == nil:
		case ri == nil:
			return false
		case rj == nil:
			return true
		case *ri != *rj:
			return *ri < *rj
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func distributeEquity(classes map[uuid.UUID]ShareClassTerms, shares map[classKey]int64, keys []classKey, remaining decimal.Decimal) []exact {
	byClass := map[uuid.UUID][]classKey{}
	list := make([]ShareClassTerms, 0, len(classes))
	for _, k := range keys {
		if _, ok := byClass[k.class]; !ok {
			list = append(list, classes[k.class])
		}
		byClass[k.class] = append(byClass[k.class], k)
	}
	ordered := OrderedClasses(list)

	rows := make(map[classKey]*exact, len(keys))
	for _, k := range keys {
		sc := classes[k.class]
		classID := sc.ID
		rows[k] = &exact{
			payout: Payout{
				InvestorID:     k.investor,
				SecurityType:   domain.SecurityTypeEquity,
				ShareClassID:   &classID,
				ShareClassName: sc.Name,
				NumberOfShares: shares[k],
			},
			preference:    money.Zero,
			participation: money.Zero,
			common:        money.Zero,
		}
	}

	// Preferences, most senior first. Stops once the pool is exhausted.
	for _, sc := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !sc.Preferred {
			continue
		}
		prefPerShare := sc.OriginalIssuePriceInDollars.Mul(money.Hundred).Mul(sc.LiquidationPreferenceMultiple)
		var classShares int64
		for _, k := range byClass[sc.ID] {
			classShares += shares[k]
		}
		totalPref := prefPerShare.Mul(decimal.NewFromInt(classShares))
		amountToPay := money.Min(totalPref, remaining)
		if totalPref.IsPositive() {
			// amountToPay / totalPref of each holder's claim; multiply first to keep precision.
			for _, k := range byClass[sc.ID] {
				claim := prefPerShare.Mul(decimal.NewFromInt(shares[k]))
				rows[k].preference = claim.Mul(amountToPay).Div(totalPref)
			}
		}
		remaining = remaining.Sub(amountToPay)
	}

	// Residual to common and participating preferred.
	var eligibleShares int64
	for _, k := range keys {
		sc := classes[k.class]
		if !sc.Preferred || sc.Participating {
			eligibleShares += shares[k]
		}
	}
	if remaining.IsPositive() && eligibleShares > 0 {
		for _, k := range keys {
			sc := classes[k.class]
			if sc.Preferred && !sc.Participating {
				continue
			}
			row := rows[k]
			amount := remaining.Mul(decimal.NewFromInt(shares[k])).Div(decimal.NewFromInt(eligibleShares))
			if sc.Preferred {
				if sc.ParticipationCapMultiple != nil && sc.ParticipationCapMultiple.IsPositive() {
					capTotal := sc.OriginalIssuePriceInDollars.Mul(money.Hundred).Mul(*sc.ParticipationCapMultiple).Mul(decimal.NewFromInt(shares[k]))
					amount = money.Min(amount, money.Max(capTotal.Sub(row.preference), money.Zero))
				}
				row.participation = amount
			} else {
				row.common = amount
			}
		}
	}

	out := make([]exact, 0, len(keys))
	for _, k := range keys {
		out = append(out, *rows[k])
	}
	return out
}

func valueConvertibles(list []Convertible, exit decimal.Decimal, totalEquityShares int64, now time.Time) []exact {
	totalImplied := money.Zero
	for _, cs := range list {
		totalImplied = totalImplied.Add(cs.ImpliedShares)
	}
	equityShares := decimal.NewFromInt(totalEquityShares)

	sharePrice := money.Zero
	if totalEquityShares > 0 {
		sharePrice = exit.Div(equityShares.Add(totalImplied))
	}

	out := make([]exact, 0, len(list))
	for _, cs := range list {
		principal := money.Cents(cs.PrincipalValueInCents)
		if cs.InterestRatePercent != nil && cs.MaturityDate != nil {
			principal = principal.Mul(decimal.NewFromInt(1).Add(money.Percent(yearsOutstanding(cs.IssuedAt, now), *cs.InterestRatePercent)))
		}

		conversion := money.Zero
		if totalEquityShares > 0 {
			price := sharePrice
			if cs.ValuationCapCents != nil {
				price = money.Min(price, money.Cents(*cs.ValuationCapCents).Div(equityShares))
			}
			if cs.DiscountRatePercent != nil {
				price = price.Sub(money.Percent(price, *cs.DiscountRatePercent))
			}
			conversion = price.Mul(cs.ImpliedShares)
		}

		id := cs.ID
		row := exact{
			payout: Payout{
				InvestorID:            cs.InvestorID,
				SecurityType:          domain.SecurityTypeConvertible,
				ConvertibleSecurityID: &id,
			},
			preference:    money.Zero,
			participation: money.Zero,
			common:        money.Zero,
		}
		// Strictly greater: an exact tie returns principal.
		if conversion.GreaterThan(principal) {
			row.common = conversion
			row.payout.ConversionPath = domain.ConversionPathConverted
			row.payout.NumberOfShares = cs.ImpliedShares.Round(0).IntPart()
		} else {
			row.preference = principal
			row.payout.ConversionPath = domain.ConversionPathPrincipalReturned
		}
		out = append(out, row)
	}
	return out
}

func yearsOutstanding(issuedAt, now time.Time) decimal.Decimal {
	days := now.Sub(issuedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return decimal.NewFromInt(int64(days)).Div(daysPerYear)
}

// roundPayouts converts exact amounts to cents. Rows share the whole cents of the exact
// total by largest remainder, and each row's components share that row's cents the same way.
func roundPayouts(rows []exact) ([]Payout, int64) {
	totals := make([]decimal.Decimal, len(rows))
	sum := money.Zero
	for i, r := range rows {
		totals[i] = r.total()
		sum = sum.Add(totals[i])
	}
	// Division leaves repeating decimals truncated; round before flooring so 99.99..9 counts as 100.
	grand := sum.Round(6).Floor().IntPart()
	rowCents := money.Allocate(totals, grand)

	out := make([]Payout, 0, len(rows))
	var total int64
	for i, r := range rows {
		parts := money.Allocate([]decimal.Decimal{r.preference, r.participation, r.common}, rowCents[i])
		p := r.payout
		p.LiquidationPreferenceAmount = parts[0]
		p.ParticipationAmount = parts[1]
		p.CommonProceedsAmount = parts[2]
		p.PayoutAmountCents = parts[0] + parts[1] + parts[2]
		total += p.PayoutAmountCents
		out = append(out, p)
	}
	return out, total
}
