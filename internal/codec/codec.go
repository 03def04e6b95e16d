// Package codec converts between on-chain representations used by the fund
// contract and domain values: bytes32 asset symbols and uint256 numbers with
// 18 implied decimals.
package codec

import (
	"bytes"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

const (
	// Decimals number of implied decimal digits of on-chain fixed point values.
	Decimals = 18
	// SymbolSize length of an on-chain symbol buffer.
	SymbolSize = 32

	stage = "codec"
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// DecodeSymbol strips trailing zero bytes and returns the remaining text.
func DecodeSymbol(raw [SymbolSize]byte) (domain.Symbol, error) {
	trimmed := bytes.TrimRight(raw[:], "\x00")
	if !utf8.Valid(trimmed) {
		return "", domain.DecodeError(stage, "symbol %x is not valid utf-8", raw)
	}
	return domain.Symbol(trimmed), nil
}

// EncodeSymbol copies the symbol into a zero padded 32 byte buffer.
func EncodeSymbol(symbol domain.Symbol) ([SymbolSize]byte, error) {
	var raw [SymbolSize]byte
	if len(symbol) > SymbolSize {
		return raw, domain.EncodeError(stage, "symbol %q is %d bytes, max %d", symbol, len(symbol), SymbolSize)
	}
	copy(raw[:], symbol)
	return raw, nil
}

// DecodeFixed converts an 18-decimal fixed point integer to float64.
func DecodeFixed(value *big.Int) (float64, error) {
	if value == nil {
		return 0, domain.DecodeError(stage, "fixed point value is nil")
	}
	if value.Sign() < 0 {
		return 0, domain.DecodeError(stage, "fixed point value %s is negative", value)
	}

	intPart, fracPart := new(big.Int).QuoRem(value, unit, new(big.Int))
	frac := fracPart.String()
	// the fractional part must keep its leading zeros, 10^16 is 0.01 and not 0.1
	frac = strings.Repeat("0", Decimals-len(frac)) + frac

	f, err := strconv.ParseFloat(intPart.String()+"."+frac, 64)
	if err != nil {
		return 0, domain.DecodeError(stage, "parse fixed point value %s: %v", value, err)
	}
	return f, nil
}

// EncodeFixed converts a float64 to an 18-decimal fixed point integer. The
// shortest decimal representation of the float is truncated to whole units
// of 10^-18, so an amount is never rounded up.
func EncodeFixed(value float64) (*big.Int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, domain.EncodeError(stage, "cannot encode %v", value)
	}
	if value < 0 {
		return nil, domain.EncodeError(stage, "cannot encode negative amount %v", value)
	}

	units := decimal.NewFromFloat(value).Shift(Decimals).BigInt()
	if value > 0 && units.Sign() == 0 {
		return nil, domain.EncodeError(stage, "%v is below the smallest unit 1e-%d", value, Decimals)
	}
	return units, nil
}
