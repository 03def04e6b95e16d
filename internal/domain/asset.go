// Package domain defines core data structures used throughout the rebalancer.
package domain

import "sort"

// Symbol short identifier of a fund asset, e.g. sBTC.
type Symbol = string

// Asset holding of a single fund asset.
type Asset struct {
	// Balance amount of the asset held by the fund.
	Balance float64 `json:"balance"`
	// Rate price of one unit in the fund's common unit.
	Rate float64 `json:"rate"`
}

// NewAsset creates a new Asset.
func NewAsset(balance, rate float64) Asset {
	return Asset{Balance: balance, Rate: rate}
}

// Value returns balance multiplied by rate.
func (a Asset) Value() float64 {
	return a.Balance * a.Rate
}

// Snapshot fund composition read at one point in time.
type Snapshot map[Symbol]Asset

// Symbols returns snapshot symbols in lexical order.
func (s Snapshot) Symbols() []Symbol {
	symbols := make([]Symbol, 0, len(s))
	for symbol := range s {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Clone returns a copy that can be modified without touching s.
func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for symbol, asset := range s {
		c[symbol] = asset
	}
	return c
}

// ExpectedShares target weight per symbol.
type ExpectedShares map[Symbol]float64

// Symbols returns weighted symbols in lexical order.
func (e ExpectedShares) Symbols() []Symbol {
	symbols := make([]Symbol, 0, len(e))
	for symbol := range e {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Sum returns the sum of all weights.
func (e ExpectedShares) Sum() float64 {
	var sum float64
	for _, share := range e {
		sum += share
	}
	return sum
}

// Swap exchange of FromAmount units of From for an equal value of To.
type Swap struct {
	From       Symbol  `json:"from"`
	To         Symbol  `json:"to"`
	FromAmount float64 `json:"from_amount"`
}
