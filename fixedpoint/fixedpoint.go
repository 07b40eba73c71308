// Package fixedpoint holds the 18-decimal integer arithmetic helpers shared by the
// pool ledger, the calculator and the binaries. Amounts are plain *big.Int values
// scaled by 10^18; no floating point is involved anywhere on the accounting path.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every pooled amount.
const Decimals = 18

var (
	ten = big.NewInt(10)

	// precomputed 10^dec for typical ERC20 decimals (0..18)
	precomputedScales [19]*big.Int

	// ErrOverflow is returned when a value leaves the unsigned 256-bit range.
	ErrOverflow = errors.New("value out of uint256 range")
	// ErrInvalidNumber is returned when a decimal token string cannot be parsed.
	ErrInvalidNumber = errors.New("invalid token amount")
)

func init() {
	precomputedScales[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(big.Int).Mul(precomputedScales[i-1], ten)
	}
}

// GetScaledDecimal returns 10^dec. It returns a *big.Int that MUST NOT be modified.
// If dec <= 18 we return the precomputed immutable value.
func GetScaledDecimal(dec uint8) *big.Int {
	if int(dec) < len(precomputedScales) {
		return precomputedScales[dec]
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(dec)), nil)
}

// Scale returns 10^18 (read-only).
func Scale() *big.Int {
	return precomputedScales[Decimals]
}

// Tokens converts a whole number of tokens into scaled units, i.e. n * 10^18.
func Tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale())
}

// ParseTokens parses a human decimal string such as "100000" or "0.25" into
// scaled units. More than 18 fractional digits and negative values are rejected.
func ParseTokens(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, s, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidNumber, s)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidNumber, s, Decimals)
	}
	v := scaled.BigInt()
	if err := CheckUint256(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Format renders a scaled amount as a trimmed decimal string ("99.5", "0").
func Format(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -Decimals).String()
}

// FormatFixed renders a scaled amount with exactly places fractional digits.
func FormatFixed(x *big.Int, places int32) string {
	if x == nil {
		x = new(big.Int)
	}
	return decimal.NewFromBigInt(x, -Decimals).StringFixed(places)
}

// Ratio returns num/den as a decimal with the given precision, for display only.
func Ratio(num, den *big.Int, places int32) (decimal.Decimal, error) {
	if den == nil || den.Sign() == 0 {
		return decimal.Zero, errors.New("ratio denominator is zero")
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), places), nil
}

// CheckUint256 reports ErrOverflow when x is negative or does not fit in 256 bits,
// the range every on-chain balance lives in.
func CheckUint256(x *big.Int) error {
	if x == nil {
		return nil
	}
	if x.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrOverflow, x.String())
	}
	if _, overflow := uint256.FromBig(x); overflow {
		return fmt.Errorf("%w: %s", ErrOverflow, x.String())
	}
	return nil
}

// MulDiv computes floor(a * b / c) in a fresh big.Int, checking that the intermediate
// product stays inside uint256 the way a Solidity implementation would require.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, errors.New("division by zero")
	}
	product := new(big.Int).Mul(a, b)
	if err := CheckUint256(product); err != nil {
		return nil, err
	}
	return product.Quo(product, c), nil
}
