package service_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/service"
)

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openEvent(price string, side domain.Side) domain.TradeEvent {
	return domain.TradeEvent{
		Kind:     domain.EventOrderFilled,
		Market:   "0xmarket",
		Side:     side,
		Price:    num(price),
		Identity: "0xtx-1",
	}
}

func fractionPolicy(fraction string) service.SizingPolicy {
	return service.SizingPolicy{Mode: service.SizingFixedFraction, CopyFraction: num(fraction), MinShares: num("0.01")}
}

func TestSize_FixedFraction(t *testing.T) {
	dec, err := service.Size(openEvent("0.40", domain.SideBuy), domain.AccountState{Balance: num("1000")}, fractionPolicy("0.10"))
	require.NoError(t, err)
	assert.False(t, dec.Skip)
	assert.True(t, num("250").Equal(dec.Shares), "shares=%s", dec.Shares)
	assert.True(t, num("100").Equal(dec.Notional))
}

func TestSize_TruncatesToLot(t *testing.T) {
	// 10 / 0.3 = 33.333...
	dec, err := service.Size(openEvent("0.3", domain.SideBuy), domain.AccountState{Balance: num("100")},
		service.SizingPolicy{Mode: service.SizingFixedAmount, FixedAmount: num("10"), MinShares: num("0.01")})
	require.NoError(t, err)
	assert.Equal(t, "33.33", dec.Shares.String())
}

func TestSize_BelowMinimumSkips(t *testing.T) {
	// notional 0.001 at price 0.5 is 0.002 shares.
	dec, err := service.Size(openEvent("0.5", domain.SideBuy), domain.AccountState{Balance: num("0.01")}, fractionPolicy("0.10"))
	require.NoError(t, err)
	assert.True(t, dec.Skip)
	assert.Equal(t, service.SkipBelowMinShares, dec.Reason)
	assert.True(t, dec.Shares.IsZero())
}

func TestSize_ExactlyMinimumSkips(t *testing.T) {
	dec, err := service.Size(openEvent("1", domain.SideBuy), domain.AccountState{Balance: num("10")},
		service.SizingPolicy{Mode: service.SizingFixedAmount, FixedAmount: num("0.01"), MinShares: num("0.01")})
	require.NoError(t, err)
	assert.True(t, dec.Skip)
}

func TestSize_InsufficientBalance(t *testing.T) {
	policy := service.SizingPolicy{Mode: service.SizingFixedAmount, FixedAmount: num("10"), MinShares: num("0.01")}

	dec, err := service.Size(openEvent("0.5", domain.SideBuy), domain.AccountState{Balance: num("5")}, policy)
	require.NoError(t, err)
	assert.True(t, dec.Skip)
	assert.Equal(t, service.SkipInsufficientBalance, dec.Reason)

	// Sells are not balance constrained.
	dec, err = service.Size(openEvent("0.5", domain.SideSell), domain.AccountState{Balance: num("5")}, policy)
	require.NoError(t, err)
	assert.False(t, dec.Skip)
	assert.Equal(t, "20", dec.Shares.String())
}

func TestSize_NonPositivePriceIsMalformed(t *testing.T) {
	for _, price := range []string{"0", "-0.5"} {
		_, err := service.Size(openEvent(price, domain.SideBuy), domain.AccountState{Balance: num("1000")}, fractionPolicy("0.10"))
		assert.ErrorIs(t, err, domain.ErrMalformedEvent, price)
	}
}
