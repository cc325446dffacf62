package product

import (
	"context"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateName is returned when another product already uses the name.
	ErrDuplicateName = errors.New("product name already exists")
)

// MaxStock is the largest stock level or order quantity a product row can
// hold.
const MaxStock = math.MaxInt32

// Product is a catalog item. Stock is owned by the ledger: callers read it
// from here but never write it directly.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
}

// Fields are the catalog attributes supplied on create and update.
type Fields struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Image       string
}

// Validate checks the catalog invariants and returns the first violation as
// a field name and reason.
func (f *Fields) Validate() (field, reason string, ok bool) {
	f.Name = strings.TrimSpace(f.Name)
	switch {
	case f.Name == "":
		return "name", "must not be empty", false
	case f.Price.IsNegative():
		return "price", "must not be negative", false
	case f.Stock < 0:
		return "stock", "must not be negative", false
	case f.Stock > MaxStock:
		return "stock", "must not exceed 2147483647", false
	}
	return "", "", true
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}
