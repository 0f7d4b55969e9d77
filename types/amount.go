package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the precision of USDC on every supported chain.
const USDCDecimals = 6

// ParseUSDC converts a human amount ("2.5") to the smallest unit (2500000).
func ParseUSDC(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidRequest, s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	units := d.Shift(USDCDecimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidRequest, s, USDCDecimals)
	}
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: amount %q overflows", ErrInvalidRequest, s)
	}
	return units.BigInt().Uint64(), nil
}

// FormatUSDC renders smallest units as a decimal string.
func FormatUSDC(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -USDCDecimals).StringFixed(USDCDecimals)
}
