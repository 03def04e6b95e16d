// Package rebalance plans the swaps that move a fund toward its target weights.
package rebalance

import (
	"cmp"
	"slices"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

const stage = "plan"

// Pool is a fund snapshot restricted to the symbols that carry a target weight.
type Pool struct {
	expectedShares domain.ExpectedShares
	assets         domain.Snapshot
	minTradeValue  float64
	symbols        []domain.Symbol
}

// AssetStatus derived quantities of one asset, used for reporting.
type AssetStatus struct {
	Symbol                domain.Symbol
	Balance               float64
	Rate                  float64
	Value                 float64
	Share                 float64
	ExpectedShare         float64
	ExpectedValue         float64
	ExpectedBalanceChange float64
	ExpectedValueChange   float64
}

// NewPool returns a pool for the given target weights and snapshot.
// Every weighted symbol must be present in the snapshot.
func NewPool(expectedShares domain.ExpectedShares, snapshot domain.Snapshot, minTradeValue float64) (*Pool, error) {
	if len(snapshot) == 0 {
		return nil, domain.PreconditionError(stage, "fund snapshot is empty")
	}
	if len(expectedShares) == 0 {
		return nil, domain.PreconditionError(stage, "no target weights configured")
	}

	assets := make(domain.Snapshot, len(expectedShares))
	for _, symbol := range expectedShares.Symbols() {
		asset, ok := snapshot[symbol]
		if !ok {
			return nil, domain.PreconditionError(stage, "asset %s has a target weight but is not held by the fund", symbol)
		}
		assets[symbol] = asset
	}

	return &Pool{
		expectedShares: expectedShares,
		assets:         assets,
		minTradeValue:  minTradeValue,
		symbols:        expectedShares.Symbols(),
	}, nil
}

// Symbols returns weighted symbols in lexical order.
func (p *Pool) Symbols() []domain.Symbol {
	return slices.Clone(p.symbols)
}

func (p *Pool) Balance(symbol domain.Symbol) float64 {
	return p.assets[symbol].Balance
}

func (p *Pool) Rate(symbol domain.Symbol) float64 {
	return p.assets[symbol].Rate
}

func (p *Pool) Value(symbol domain.Symbol) float64 {
	return p.assets[symbol].Value()
}

// TotalValue sums the value of every weighted asset.
func (p *Pool) TotalValue() float64 {
	var total float64
	for _, symbol := range p.symbols {
		total += p.Value(symbol)
	}
	return total
}

// Share returns the current fraction of total value held in symbol.
func (p *Pool) Share(symbol domain.Symbol) float64 {
	total := p.TotalValue()
	if total == 0 {
		return 0
	}
	return p.Value(symbol) / total
}

func (p *Pool) ExpectedShare(symbol domain.Symbol) float64 {
	return p.expectedShares[symbol]
}

func (p *Pool) ExpectedValue(symbol domain.Symbol) float64 {
	return p.TotalValue() * p.ExpectedShare(symbol)
}

// ExpectedValueChange is positive when symbol is underweight.
func (p *Pool) ExpectedValueChange(symbol domain.Symbol) float64 {
	return p.ExpectedValue(symbol) - p.Value(symbol)
}

func (p *Pool) ExpectedBalanceChange(symbol domain.Symbol) float64 {
	return p.ExpectedValueChange(symbol) / p.Rate(symbol)
}

// Status returns derived quantities for every weighted asset in lexical order.
func (p *Pool) Status() []AssetStatus {
	rows := make([]AssetStatus, 0, len(p.symbols))
	for _, symbol := range p.symbols {
		rows = append(rows, AssetStatus{
			Symbol:                symbol,
			Balance:               p.Balance(symbol),
			Rate:                  p.Rate(symbol),
			Value:                 p.Value(symbol),
			Share:                 p.Share(symbol),
			ExpectedShare:         p.ExpectedShare(symbol),
			ExpectedValue:         p.ExpectedValue(symbol),
			ExpectedBalanceChange: p.ExpectedBalanceChange(symbol),
			ExpectedValueChange:   p.ExpectedValueChange(symbol),
		})
	}
	return rows
}

// Plan matches the most overweight asset with the most underweight one until
// no pair is left whose trade value reaches the minimum. Both ends of a pair
// are dropped after each swap, a partially offset side is not revisited.
func (p *Pool) Plan() []domain.Swap {
	changes := make(map[domain.Symbol]float64, len(p.symbols))
	for _, symbol := range p.symbols {
		changes[symbol] = p.ExpectedValueChange(symbol)
	}

	symbols := p.Symbols()
	slices.SortFunc(symbols, func(a, b domain.Symbol) int {
		if c := cmp.Compare(changes[a], changes[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	var swaps []domain.Swap
	for len(symbols) > 1 {
		seller := symbols[0]
		buyer := symbols[len(symbols)-1]
		sellerChange := changes[seller]
		buyerChange := changes[buyer]

		if buyerChange <= 0 || sellerChange >= 0 {
			break
		}

		// the larger side sets the trade size, this may overshoot the smaller one
		tradeValue := max(-sellerChange, buyerChange)
		if tradeValue < p.minTradeValue {
			break
		}

		swaps = append(swaps, domain.Swap{
			From:       seller,
			To:         buyer,
			FromAmount: tradeValue / p.Rate(seller),
		})

		symbols = symbols[1 : len(symbols)-1]
	}

	return swaps
}

// Balanced reports whether the plan is empty.
func (p *Pool) Balanced() bool {
	return len(p.Plan()) == 0
}

// Apply simulates the swaps at current rates and returns the resulting snapshot.
func (p *Pool) Apply(swaps []domain.Swap) (domain.Snapshot, error) {
	next := p.assets.Clone()
	for _, swap := range swaps {
		from, ok := next[swap.From]
		if !ok {
			return nil, domain.PreconditionError(stage, "swap source %s is not part of the pool", swap.From)
		}
		to, ok := next[swap.To]
		if !ok {
			return nil, domain.PreconditionError(stage, "swap target %s is not part of the pool", swap.To)
		}
		if to.Rate == 0 {
			return nil, domain.PreconditionError(stage, "swap target %s has zero rate", swap.To)
		}

		toAmount := swap.FromAmount * from.Rate / to.Rate
		from.Balance -= swap.FromAmount
		to.Balance += toAmount
		next[swap.From] = from
		next[swap.To] = to
	}
	return next, nil
}

// Rebalanced returns a pool over the snapshot produced by applying swaps.
func (p *Pool) Rebalanced(swaps []domain.Swap) (*Pool, error) {
	next, err := p.Apply(swaps)
	if err != nil {
		return nil, err
	}
	return NewPool(p.expectedShares, next, p.minTradeValue)
}
