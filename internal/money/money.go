// Package money owns all monetary arithmetic. Amounts are arbitrary-precision
// non-negative integers in the smallest point unit, persisted as base-10
// integer strings so no runtime boundary ever sees a float.
package money

import (
	"math/big"

	"github.com/pointmart/backend/internal/apperr"
)

// FeePercent is the fixed supplier fee skimmed from escrow at issuance and at
// each trade.
const FeePercent = 3

var (
	zero    = big.NewInt(0)
	hundred = big.NewInt(100)
	feeRate = big.NewInt(FeePercent)
)

// Parse converts a persisted base-10 integer string into an amount. Rejects
// anything that is not a plain non-negative integer.
func Parse(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, apperr.Validation("BAD_AMOUNT", "amount is not a base-10 integer: "+s)
	}
	if n.Sign() < 0 {
		return nil, apperr.Validation("NEGATIVE_AMOUNT", "amount must be non-negative: "+s)
	}
	return n, nil
}

// MustParse is Parse for trusted literals in tests and seeds.
func MustParse(s string) *big.Int {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Format renders an amount for persistence.
func Format(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// CheckPositive rejects nil, zero and negative amounts.
func CheckPositive(n *big.Int) error {
	if n == nil || n.Sign() <= 0 {
		return apperr.Validation("NON_POSITIVE_AMOUNT", "amount must be positive")
	}
	return nil
}

// Fee returns amount * FeePercent / 100, floored.
func Fee(amount *big.Int) *big.Int {
	f := new(big.Int).Mul(amount, feeRate)
	return f.Div(f, hundred)
}

// MulCount returns faceValue * count.
func MulCount(faceValue *big.Int, count int64) *big.Int {
	return new(big.Int).Mul(faceValue, big.NewInt(count))
}

// Add returns a + b without mutating either operand.
func Add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }

// Sub returns a - b without mutating either operand.
func Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

// IsNegative reports n < 0.
func IsNegative(n *big.Int) bool { return n != nil && n.Sign() < 0 }

// Cmp is a nil-safe big.Int compare; nil counts as zero.
func Cmp(a, b *big.Int) int {
	if a == nil {
		a = zero
	}
	if b == nil {
		b = zero
	}
	return a.Cmp(b)
}

// Zero returns a fresh zero amount.
func Zero() *big.Int { return new(big.Int) }

// Copy returns a defensive copy; nil becomes zero.
func Copy(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
