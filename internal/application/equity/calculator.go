// Package equity splits a service payment into cash and equity.
package equity

import (
	"errors"

	"flexile-backend/internal/pkg/money"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeServiceAmount      = errors.New("service amount must be >= 0")
	ErrInvalidEquityPercentage    = errors.New("equity percentage must be between 0 and 100")
	ErrInsufficientUnvestedShares = errors.New("not enough unvested shares in the equity grant")
)

// Input describes one service payment. SharePriceUsd is nil when neither a grant nor
// a company fair-market value is known. UnvestedShares, when set, bounds the options
// that may be issued.
type Input struct {
	ServiceAmountCents int64
	EquityPercentage   int
	SharePriceUsd      *decimal.Decimal
	EquityEnabled      bool
	UnvestedShares     *int64
}

// Split is the cash/equity breakdown of a service payment.
type Split struct {
	CashCents                 int64  `json:"cash_cents"`
	EquityCents               int64  `json:"equity_cents"`
	EquityOptionShares        *int64 `json:"equity_option_shares"`
	EffectiveEquityPercentage int    `json:"effective_equity_percentage"`
}

// Calculate applies the equity percentage to the service amount.
//
// When the option count rounds to zero the payment is treated as cash-only: the equity
// cents and effective percentage are zeroed so no cash is withheld for shares that will
// never be issued.
func Calculate(in Input) (Split, error) {
	if in.ServiceAmountCents < 0 {
		return Split{}, ErrNegativeServiceAmount
	}
	if in.EquityPercentage < 0 || in.EquityPercentage > 100 {
		return Split{}, ErrInvalidEquityPercentage
	}
	if !in.EquityEnabled {
		return Split{CashCents: in.ServiceAmountCents}, nil
	}

	equityCents := money.RoundCents(money.Percent(money.Cents(in.ServiceAmountCents), decimal.NewFromInt(int64(in.EquityPercentage))))
	out := Split{
		EquityCents:               equityCents,
		EffectiveEquityPercentage: in.EquityPercentage,
	}

	if in.SharePriceUsd != nil && in.SharePriceUsd.IsPositive() {
		priceCents := in.SharePriceUsd.Mul(money.Hundred)
		shares := money.Cents(equityCents).Div(priceCents).Round(0).IntPart()
		if shares <= 0 {
			out.EquityCents = 0
			out.EffectiveEquityPercentage = 0
		} else {
			if in.UnvestedShares != nil && shares > *in.UnvestedShares {
				return Split{}, ErrInsufficientUnvestedShares
			}
			out.EquityOptionShares = &shares
		}
	}

	out.CashCents = in.ServiceAmountCents - out.EquityCents
	return out, nil
}
