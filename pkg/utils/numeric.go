package utils

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var maxU64Decimal = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// U64ToDecimal widens a u64 into the arbitrary precision type stored in NUMERIC columns.
func U64ToDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// DecimalToU64 narrows d back to a u64. It panics when d is fractional or outside [0, 2^64).
func DecimalToU64(d decimal.Decimal) uint64 {
	if !d.IsInteger() || d.Sign() < 0 || d.GreaterThan(maxU64Decimal) {
		panic(fmt.Sprintf("unable to convert decimal %s to u64", d.String()))
	}
	return d.BigInt().Uint64()
}
