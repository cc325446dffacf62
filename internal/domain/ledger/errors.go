package ledger

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrInsufficientStock is returned when an operation would drive a
	// product's stock below zero. Match it with errors.Is; the concrete
	// error is *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReferencedByOrders is returned when deleting a product that is
	// still referenced by at least one order.
	ErrReferencedByOrders = errors.New("product is referenced by orders")
	// ErrConflict is returned when the transaction could not be serialized
	// against concurrent operations. The caller may retry.
	ErrConflict = errors.New("conflicting concurrent update, retry")
	// ErrStoreUnavailable is returned when the underlying store cannot be
	// reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// InsufficientStockError reports the product that could not cover a
// reservation.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) succeed.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
