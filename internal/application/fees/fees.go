// Package fees computes the platform fee charged on invoices and dividends.
package fees

import (
	"errors"

	"flexile-backend/internal/pkg/money"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("amount must be a non-negative number of cents")

// Schedule is base + percent of total, capped at MaxCents.
type Schedule struct {
	Name      string
	BaseCents int64
	Percent   decimal.Decimal
	MaxCents  int64
}

var (
	InvoiceSchedule = Schedule{
		Name:      "invoice",
		BaseCents: 50,
		Percent:   decimal.RequireFromString("1.5"),
		MaxCents:  15_00,
	}
	DividendSchedule = Schedule{
		Name:      "dividend",
		BaseCents: 30,
		Percent:   decimal.RequireFromString("2.9"),
		MaxCents:  30_00,
	}
)

// Fee returns min(round(base + total * percent / 100), max).
func (s Schedule) Fee(totalCents int64) (int64, error) {
	if totalCents < 0 {
		return 0, ErrNegativeAmount
	}
	fee := money.RoundCents(money.Cents(s.BaseCents).Add(money.Percent(money.Cents(totalCents), s.Percent)))
	if fee > s.MaxCents {
		return s.MaxCents, nil
	}
	return fee, nil
}

// InvoiceFee is the fee charged to a company for one contractor invoice.
func InvoiceFee(totalCents int64) (int64, error) {
	return InvoiceSchedule.Fee(totalCents)
}

// DividendFee is the processing fee for one dividend payout.
func DividendFee(totalCents int64) (int64, error) {
	return DividendSchedule.Fee(totalCents)
}

// ScheduleByName resolves "invoice" or "dividend".
func ScheduleByName(name string) (Schedule, bool) {
	switch name {
	case InvoiceSchedule.Name:
		return InvoiceSchedule, true
	case DividendSchedule.Name:
		return DividendSchedule, true
	}
	return Schedule{}, false
}
