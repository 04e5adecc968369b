package payouts

import (
	"flexile-backend/internal/application/fees"
	"flexile-backend/internal/domain"

	"github.com/google/uuid"
)

// Item is one payable row of a dividend or buyback table. Both tables share these columns.
type Item struct {
	ID                 uuid.UUID
	CompanyInvestorID  uuid.UUID
	Status             string
	TotalAmountInCents int64
	NetAmountInCents   int64
	ProcessingFeeCents int64
	RetainedReason     *string
}

// Variant supplies what differs between payout types. The orchestrator is otherwise
// identical for dividends and buybacks.
type Variant struct {
	PayoutType string
	// Table holds the items; it must carry the Item columns.
	Table               string
	ValidStatuses       []string
	IssuedStatus        string
	ProcessingStatus    string
	SucceededStatus     string
	FailedStatus        string
	Reference           string
	RequiresBankAccount bool
	// Fee is stamped on each item when it is issued for payment. Nil means no fee.
	Fee func(Item) (int64, error)
	// Validate returns a retained reason when the batch may not be paid yet.
	Validate func(investor *domain.CompanyInvestor, netAmountInCents int64) string
	// FailureNotifier is told when the batch fails because the bank account was closed.
	FailureNotifier Notifier
}

// NetAmountInCents sums what the investor receives for items.
func (v Variant) NetAmountInCents(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.NetAmountInCents
	}
	return total
}

func (v Variant) validStatus(status string) bool {
	for _, s := range v.ValidStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// DividendVariant pays dividends. Batches below the investor's minimum payment are retained.
func DividendVariant(notifier Notifier) Variant {
	return Variant{
		PayoutType:          domain.PayoutTypeDividend,
		Table:               domain.Dividend{}.TableName(),
		ValidStatuses:       []string{domain.PayoutItemIssued, domain.PayoutItemRetained},
		IssuedStatus:        domain.PayoutItemIssued,
		ProcessingStatus:    domain.PayoutItemProcessing,
		SucceededStatus:     domain.PayoutItemSucceeded,
		FailedStatus:        domain.PayoutItemFailed,
		Reference:           "DIV",
		RequiresBankAccount: true,
		Fee: func(it Item) (int64, error) {
			return fees.DividendFee(it.TotalAmountInCents)
		},
		Validate: func(investor *domain.CompanyInvestor, net int64) string {
			if net < investor.MinimumDividendPaymentInCents {
				return domain.RetainedReasonBelowMinimumPaymentThreshold
			}
			return ""
		},
		FailureNotifier: notifier,
	}
}

// EquityBuybackVariant pays tender-offer proceeds.
func EquityBuybackVariant(notifier Notifier) Variant {
	return Variant{
		PayoutType:          domain.PayoutTypeEquityBuyback,
		Table:               domain.EquityBuyback{}.TableName(),
		ValidStatuses:       []string{domain.PayoutItemIssued, domain.PayoutItemRetained},
		IssuedStatus:        domain.PayoutItemIssued,
		ProcessingStatus:    domain.PayoutItemProcessing,
		SucceededStatus:     domain.PayoutItemSucceeded,
		FailedStatus:        domain.PayoutItemFailed,
		Reference:           "EB",
		RequiresBankAccount: true,
		FailureNotifier:     notifier,
	}
}

// VariantFor returns the variant of a stored payout type.
func VariantFor(payoutType string, notifier Notifier) (Variant, bool) {
	switch payoutType {
	case domain.PayoutTypeDividend:
		return DividendVariant(notifier), true
	case domain.PayoutTypeEquityBuyback:
		return EquityBuybackVariant(notifier), true
	}
	return Variant{}, false
}
