package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

// ParseStatus maps a wire value to a Status. An empty value means Pending.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case "":
		return StatusPending, true
	case StatusPending, StatusCompleted, StatusCanceled:
		return Status(s), true
	default:
		return "", false
	}
}

// Order is a customer order for a quantity of a single product.
type Order struct {
	ID           int64
	CustomerName string
	ProductID    int64
	Quantity     int
	Status       Status
	CreatedAt    time.Time
}

// Repository defines read operations for orders.
type Repository interface {
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
}
