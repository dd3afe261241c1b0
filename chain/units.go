package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToTokenUnits converts a decimal price into the payment token's smallest
// unit. Fractions below one unit are truncated.
func ToTokenUnits(price decimal.Decimal, decimals int32) (*big.Int, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("price must be non-negative, got %s", price)
	}
	return price.Shift(decimals).Truncate(0).BigInt(), nil
}

// FromTokenUnits is the inverse of ToTokenUnits.
func FromTokenUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -decimals)
}

// ParseID parses an on-chain uint256 id stored as a decimal string.
func ParseID(id string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid on-chain id %q", id)
	}
	return n, nil
}
