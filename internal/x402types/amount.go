package x402types

import (
	"errors"
	"math"
	"math/big"
)

// ErrInvalidAmount is returned when a money amount cannot be converted to a
// valid token amount: negative, non-finite, or overflowing uint64 base units.
var ErrInvalidAmount = errors.New("invalid amount")

// MoneyAmount is a human-denominated decimal quantity, e.g. 0.1 USDC.
// It is stored as a float64; callers that need exact decimal arithmetic at
// larger scales should round-trip through TokenAmount, which is the
// authoritative integer representation used on the wire.
type MoneyAmount float64

// TokenAmount is an amount expressed in a token's base (atomic) units.
type TokenAmount uint64

// ToTokenAmount converts a human-denominated amount to base units given the
// token's decimal precision, rounding to the nearest base unit.
func (m MoneyAmount) ToTokenAmount(decimals uint32) (TokenAmount, error) {
	f := float64(m)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, ErrInvalidAmount
	}
	scaled := new(big.Float).Mul(big.NewFloat(f), new(big.Float).SetFloat64(math.Pow10(int(decimals))))
	rounded, _ := scaled.Float64()
	rounded = math.Round(rounded)
	if rounded < 0 || rounded > float64(math.MaxUint64) {
		return 0, ErrInvalidAmount
	}
	return TokenAmount(uint64(rounded)), nil
}

// ToMoneyAmount converts base units back to a human-denominated amount given
// the token's decimal precision.
func (t TokenAmount) ToMoneyAmount(decimals uint32) MoneyAmount {
	return MoneyAmount(float64(t) / math.Pow10(int(decimals)))
}
