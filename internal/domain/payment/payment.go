package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrAlreadyPaid is returned when an order already has a recorded payment.
var ErrAlreadyPaid = errors.New("order already paid")

// DefaultMethod is used when a payment is recorded without a method.
const DefaultMethod = "COD"

// Status is the state of a payment. Only the ledger writes it.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
)

// Payment settles a single order.
type Payment struct {
	ID        int64
	OrderID   int64
	Discount  decimal.Decimal
	Method    string
	Status    Status
	Total     decimal.Decimal
	CreatedAt time.Time
}

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// ValidDiscount reports whether d is a percentage in [0, 100] with at most
// two decimal places, the precision the discount is stored with.
func ValidDiscount(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(hundred) && d.Equal(d.Round(2))
}

// Total returns quantity * price * (1 - discount/100) rounded to cents.
func Total(quantity int, price, discount decimal.Decimal) decimal.Decimal {
	gross := price.Mul(decimal.NewFromInt(int64(quantity)))
	factor := hundred.Sub(discount).Div(hundred)
	total := gross.Mul(factor)
	if total.IsNegative() {
		return zero
	}
	return total.Round(2)
}

// Repository defines read operations for payments.
type Repository interface {
	List(ctx context.Context) ([]Payment, error)
}
