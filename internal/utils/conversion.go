/*
This file contains common utility functions for converting between different types,
particularly for SDK math operations and precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrInvalidBasisPts  = errors.New("basis points out of range")
)

// BasisPointsDenominator is the scale of every fee expressed in basis points.
const BasisPointsDenominator = 10_000

// ExpandDecimals returns amount * 10^decimals, e.g. ExpandDecimals(10, 18) for 10 whole tokens.
func ExpandDecimals(amount int64, decimals int) (sdkmath.Int, error) {
	if decimals < 0 || decimals > 36 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, decimals)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return sdkmath.NewInt(amount).Mul(pow10(decimals)), nil
}

// MustExpandDecimals is ExpandDecimals for constants and tests.
func MustExpandDecimals(amount int64, decimals int) sdkmath.Int {
	v, err := ExpandDecimals(amount, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// MulDiv computes a * b / c, truncating toward zero.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || c.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	return a.Mul(b).Quo(c), nil
}

// SplitBasisPoints splits amount into (portion, remainder) where portion = amount * bps / 10000,
// rounded down so the remainder never shrinks because of rounding.
func SplitBasisPoints(amount sdkmath.Int, bps uint64) (sdkmath.Int, sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrAmountNegative
	}
	if bps > BasisPointsDenominator {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrInvalidBasisPts, bps)
	}
	if bps == 0 || amount.IsZero() {
		return sdkmath.ZeroInt(), amount, nil
	}
	portion := amount.Mul(sdkmath.NewIntFromUint64(bps)).QuoRaw(BasisPointsDenominator)
	return portion, amount.Sub(portion), nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	result := decAmount.Quo(sdkmath.LegacyNewDecFromInt(pow10(precision)))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// ParseAmount parses a non-negative base-10 integer amount, e.g. from a query string.
func ParseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q is not an integer", ErrConversionFailed, s)
	}
	if v.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return v, nil
}

func pow10(n int) sdkmath.Int {
	factor := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := 0; i < n; i++ {
		factor = factor.Mul(ten)
	}
	return factor
}
