package equity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCalculate_ZeroSharesMeansNoEquity(t *testing.T) {
	split, err := Calculate(Input{
		ServiceAmountCents: 100,
		EquityPercentage:   1,
		SharePriceUsd:      price("1000"),
		EquityEnabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), split.EquityCents)
	assert.Equal(t, 0, split.EffectiveEquityPercentage)
	assert.Equal(t, int64(100), split.CashCents)
	assert.Nil(t, split.EquityOptionShares)
}

func TestCalculate_SplitsCashAndEquity(t *testing.T) {
	split, err := Calculate(Input{
		ServiceAmountCents: 1_000_000,
		EquityPercentage:   20,
		SharePriceUsd:      price("11.38"),
		EquityEnabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), split.EquityCents)
	assert.Equal(t, int64(800_000), split.CashCents)
	require.NotNil(t, split.EquityOptionShares)
	// 200000 / 1138 = 175.75 -> 176
	assert.Equal(t, int64(176), *split.EquityOptionShares)
	assert.Equal(t, 20, split.EffectiveEquityPercentage)
}

func TestCalculate_EquityDisabledIsCashOnly(t *testing.T) {
	split, err := Calculate(Input{
		ServiceAmountCents: 50_000,
		EquityPercentage:   50,
		SharePriceUsd:      price("1"),
		EquityEnabled:      false,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), split.CashCents)
	assert.Equal(t, int64(0), split.EquityCents)
	assert.Nil(t, split.EquityOptionShares)
}

func TestCalculate_NoSharePriceKeepsPercentage(t *testing.T) {
	split, err := Calculate(Input{
		ServiceAmountCents: 100,
		EquityPercentage:   1,
		EquityEnabled:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), split.EquityCents)
	assert.Equal(t, 1, split.EffectiveEquityPercentage)
	assert.Nil(t, split.EquityOptionShares)
}

func TestCalculate_UnvestedSharesBound(t *testing.T) {
	unvested := int64(10)
	_, err := Calculate(Input{
		ServiceAmountCents: 100_000,
		EquityPercentage:   50,
		SharePriceUsd:      price("1"),
		EquityEnabled:      true,
		UnvestedShares:     &unvested,
	})
	assert.ErrorIs(t, err, ErrInsufficientUnvestedShares)
}

func TestCalculate_RejectsBadInput(t *testing.T) {
	_, err := Calculate(Input{ServiceAmountCents: -1})
	assert.ErrorIs(t, err, ErrNegativeServiceAmount)
	_, err = Calculate(Input{ServiceAmountCents: 1, EquityPercentage: 101})
	assert.ErrorIs(t, err, ErrInvalidEquityPercentage)
}

func TestCalculate_ZeroServiceAmount(t *testing.T) {
	split, err := Calculate(Input{ServiceAmountCents: 0, EquityPercentage: 10, SharePriceUsd: price("1"), EquityEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), split.CashCents)
	assert.Equal(t, 0, split.EffectiveEquityPercentage)
}
