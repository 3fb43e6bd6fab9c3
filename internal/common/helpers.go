package common

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

const (
	ICPDecimals   = 8  // e8s
	CKUSDDecimals = 6  // ckUSDC and ckUSDT
	CKETHDecimals = 18 // wei
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ToBaseUnits converts a display amount to base units without float precision loss.
// Example: ToBaseUnits("1.5", 8) = 150000000
func ToBaseUnits(amount string, decimals uint8) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("empty amount")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("amount %q is negative", amount)
	}

	// Shift the point right; anything left after the point is finer than one base unit
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}

	n := shifted.BigInt()
	if n.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("amount %q overflows base units", amount)
	}
	return n.Uint64(), nil
}

// FormatBaseUnits converts base units to a display amount with exactly decimals places.
// Example: FormatBaseUnits(24981836, 9) = "0.024981836"
func FormatBaseUnits(value uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(value), -int32(decimals)).StringFixed(int32(decimals))
}

// FormatUint128 is FormatBaseUnits for 128-bit balances
func FormatUint128(value uint128.Uint128, decimals uint8) string {
	return decimal.NewFromBigInt(value.Big(), -int32(decimals)).StringFixed(int32(decimals))
}

// CompareAmounts compares two display amounts of the same asset.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, and error if parsing fails
func CompareAmounts(a, b string, decimals uint8) (int, error) {
	aVal, err := ToBaseUnits(a, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", a, err)
	}

	bVal, err := ToBaseUnits(b, decimals)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount '%s': %w", b, err)
	}

	if aVal < bVal {
		return -1, nil
	}
	if aVal > bVal {
		return 1, nil
	}
	return 0, nil
}
