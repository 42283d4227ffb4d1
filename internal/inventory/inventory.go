package inventory

import (
	"errors"
	"fmt"
	"math"
)

// DefaultLowStockThreshold is the quantity below which a low-stock alert is sent.
const DefaultLowStockThreshold = 5

// ErrInvalidRestock is returned when a restock does not add at least one unit.
var ErrInvalidRestock = errors.New("restock amount must be positive")

// DecrementOne consumes one unit. Quantity never drops below zero; at zero the
// quantity is returned unchanged with decremented = false.
func DecrementOne(quantity int) (newQuantity int, decremented bool) {
	if quantity <= 0 {
		return 0, false
	}
	return quantity - 1, true
}

// Restock returns the quantity after adding units.
func Restock(quantity, add int) (int, error) {
	if add <= 0 {
		return quantity, fmt.Errorf("add %d: %w", add, ErrInvalidRestock)
	}
	if quantity < 0 {
		quantity = 0
	}
	if add > math.MaxInt-quantity {
		return quantity, fmt.Errorf("add %d to %d overflows: %w", add, quantity, ErrInvalidRestock)
	}
	return quantity + add, nil
}

// AlertPolicy decides when remaining stock warrants a low-stock alert.
type AlertPolicy struct {
	Threshold int
}

// NewAlertPolicy returns a policy with the given threshold, falling back to
// DefaultLowStockThreshold when threshold is not positive.
func NewAlertPolicy(threshold int) AlertPolicy {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return AlertPolicy{Threshold: threshold}
}

// IsLowStock reports whether quantity is strictly below the threshold.
func (p AlertPolicy) IsLowStock(quantity int) bool {
	return quantity < p.Threshold
}
