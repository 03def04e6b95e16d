package rebalance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/codec"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

func equalShares(symbols ...domain.Symbol) domain.ExpectedShares {
	shares := make(domain.ExpectedShares, len(symbols))
	for _, s := range symbols {
		shares[s] = 1 / float64(len(symbols))
	}
	return shares
}

func fivePool(t *testing.T) *Pool {
	t.Helper()
	assets := domain.Snapshot{
		"sBTC": domain.NewAsset(0.9, 10000),
		"sETH": domain.NewAsset(20.2, 200),
		"sUSD": domain.NewAsset(100, 1),
		"sBNB": domain.NewAsset(50, 18),
		"sLTC": domain.NewAsset(10, 45),
	}
	pool, err := NewPool(equalShares("sBTC", "sETH", "sUSD", "sBNB", "sLTC"), assets, 1.0)
	require.NoError(t, err)
	return pool
}

func TestPlanSingleSwap(t *testing.T) {
	assets := domain.Snapshot{
		"A": domain.NewAsset(0.9, 10000),
		"B": domain.NewAsset(100, 1),
	}
	pool, err := NewPool(domain.ExpectedShares{"A": 0.5, "B": 0.5}, assets, 1.0)
	require.NoError(t, err)

	require.InDelta(t, 9100, pool.TotalValue(), 1e-9)
	require.InDelta(t, 4550, pool.ExpectedValue("A"), 1e-9)
	require.InDelta(t, -4450, pool.ExpectedValueChange("A"), 1e-9)
	require.InDelta(t, 4450, pool.ExpectedValueChange("B"), 1e-9)

	swaps := pool.Plan()
	require.Len(t, swaps, 1)
	require.Equal(t, "A", swaps[0].From)
	require.Equal(t, "B", swaps[0].To)
	require.InDelta(t, 0.445, swaps[0].FromAmount, 1e-12)
	require.False(t, pool.Balanced())
}

func TestPlanSmallAmountsEncode(t *testing.T) {
	assets := domain.Snapshot{
		"sBTC": domain.NewAsset(0.0137, 43123.17),
		"sUSD": domain.NewAsset(550.25, 1.0003),
	}
	pool, err := NewPool(domain.ExpectedShares{"sBTC": 0.5, "sUSD": 0.5}, assets, 1.0)
	require.NoError(t, err)

	swaps := pool.Plan()
	require.Len(t, swaps, 1)
	require.Equal(t, "sBTC", swaps[0].From)
	require.Less(t, swaps[0].FromAmount, 0.001)

	encoded, err := codec.EncodeFixed(swaps[0].FromAmount)
	require.NoError(t, err)
	decoded, err := codec.DecodeFixed(encoded)
	require.NoError(t, err)
	require.LessOrEqual(t, decoded, swaps[0].FromAmount)
	require.InDelta(t, swaps[0].FromAmount, decoded, 1e-18)
}

func TestPlanBalancedPool(t *testing.T) {
	assets := domain.Snapshot{
		"sBTC": domain.NewAsset(0.1, 10000),
		"sETH": domain.NewAsset(5, 200),
		"sUSD": domain.NewAsset(1000, 1),
	}
	pool, err := NewPool(equalShares("sBTC", "sETH", "sUSD"), assets, 1.0)
	require.NoError(t, err)

	for _, symbol := range pool.Symbols() {
		require.InDelta(t, pool.ExpectedShare(symbol), pool.Share(symbol), 1e-12)
	}
	require.Empty(t, pool.Plan())
	require.True(t, pool.Balanced())
}

func TestPlanMinTradeValueBoundary(t *testing.T) {
	assets := domain.Snapshot{
		"A": domain.NewAsset(60, 1),
		"B": domain.NewAsset(40, 1),
	}
	shares := domain.ExpectedShares{"A": 0.5, "B": 0.5}

	below, err := NewPool(shares, assets, 10.000001)
	require.NoError(t, err)
	require.Empty(t, below.Plan())
	require.True(t, below.Balanced())

	exact, err := NewPool(shares, assets, 10)
	require.NoError(t, err)
	swaps := exact.Plan()
	require.Len(t, swaps, 1)
	require.Equal(t, domain.Swap{From: "A", To: "B", FromAmount: 10}, swaps[0])
}

func TestPlanTakesLargerImbalance(t *testing.T) {
	assets := domain.Snapshot{
		"A": domain.NewAsset(70, 1),
		"B": domain.NewAsset(20, 1),
		"C": domain.NewAsset(10, 1),
	}
	pool, err := NewPool(domain.ExpectedShares{"A": 0.4, "B": 0.3, "C": 0.3}, assets, 1)
	require.NoError(t, err)

	// A is over by 30, C is under by 20, B under by 10 is left alone
	swaps := pool.Plan()
	require.Len(t, swaps, 1)
	require.Equal(t, "A", swaps[0].From)
	require.Equal(t, "C", swaps[0].To)
	require.InDelta(t, 30, swaps[0].FromAmount, 1e-9)
}

func TestPlanDeterministicTieBreak(t *testing.T) {
	assets := domain.Snapshot{
		"D": domain.NewAsset(40, 1),
		"C": domain.NewAsset(40, 1),
		"B": domain.NewAsset(10, 1),
		"A": domain.NewAsset(10, 1),
	}
	pool, err := NewPool(equalShares("A", "B", "C", "D"), assets, 1)
	require.NoError(t, err)

	expected := []domain.Swap{
		{From: "C", To: "B", FromAmount: 15},
		{From: "D", To: "A", FromAmount: 15},
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, expected, pool.Plan())
	}
}

func TestPlanConvergesInThreeRounds(t *testing.T) {
	pool := fivePool(t)
	require.InDelta(t, 14490, pool.TotalValue(), 1e-9)

	first := pool.Plan()
	require.Len(t, first, 2)
	require.Equal(t, "sBTC", first[0].From)
	require.Equal(t, "sUSD", first[0].To)
	require.InDelta(t, 0.6102, first[0].FromAmount, 1e-9)
	require.Equal(t, "sETH", first[1].From)
	require.Equal(t, "sLTC", first[1].To)
	require.InDelta(t, 12.24, first[1].FromAmount, 1e-9)

	for i := 0; i < 3; i++ {
		next, err := pool.Rebalanced(pool.Plan())
		require.NoError(t, err)
		pool = next
	}
	require.True(t, pool.Balanced())
}

func TestApplyConservesValue(t *testing.T) {
	pool := fivePool(t)
	before := pool.TotalValue()

	swaps := pool.Plan()
	require.NotEmpty(t, swaps)

	next, err := pool.Rebalanced(swaps)
	require.NoError(t, err)
	require.InDelta(t, before, next.TotalValue(), 1e-6)

	// rates never change
	for _, symbol := range pool.Symbols() {
		require.Equal(t, pool.Rate(symbol), next.Rate(symbol))
	}
	// the receiver is left untouched
	require.Equal(t, 0.9, pool.Balance("sBTC"))
}

func TestApplyUnknownSymbol(t *testing.T) {
	pool := fivePool(t)
	_, err := pool.Apply([]domain.Swap{{From: "sXAU", To: "sUSD", FromAmount: 1}})
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestNewPoolPreconditions(t *testing.T) {
	_, err := NewPool(domain.ExpectedShares{"sBTC": 1}, domain.Snapshot{}, 1)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = NewPool(domain.ExpectedShares{"sBTC": 0.5, "sETH": 0.5}, domain.Snapshot{"sBTC": domain.NewAsset(1, 1)}, 1)
	require.ErrorIs(t, err, domain.ErrPrecondition)
	require.Contains(t, err.Error(), "sETH")

	_, err = NewPool(domain.ExpectedShares{}, domain.Snapshot{"sBTC": domain.NewAsset(1, 1)}, 1)
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestPoolIgnoresUnweightedAssets(t *testing.T) {
	assets := domain.Snapshot{
		"sBTC": domain.NewAsset(1, 100),
		"sUSD": domain.NewAsset(100, 1),
		"sXAU": domain.NewAsset(1000, 1000),
	}
	pool, err := NewPool(equalShares("sBTC", "sUSD"), assets, 1)
	require.NoError(t, err)

	require.Equal(t, 200.0, pool.TotalValue())
	require.Equal(t, []domain.Symbol{"sBTC", "sUSD"}, pool.Symbols())
	require.True(t, pool.Balanced())
}

func TestShareOfEmptyFund(t *testing.T) {
	assets := domain.Snapshot{
		"sBTC": domain.NewAsset(0, 100),
		"sUSD": domain.NewAsset(0, 1),
	}
	pool, err := NewPool(equalShares("sBTC", "sUSD"), assets, 1)
	require.NoError(t, err)

	require.Zero(t, pool.Share("sBTC"))
	require.True(t, pool.Balanced())
}

func TestStatusRows(t *testing.T) {
	pool := fivePool(t)
	rows := pool.Status()
	require.Len(t, rows, 5)
	require.Equal(t, "sBNB", rows[0].Symbol)

	var shareSum float64
	for _, row := range rows {
		shareSum += row.Share
		require.InDelta(t, row.ExpectedValueChange, row.ExpectedBalanceChange*row.Rate, 1e-9)
	}
	require.InDelta(t, 1.0, shareSum, 1e-12)
}
