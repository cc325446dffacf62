package ledger

import (
	"context"

	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
)

// Store runs ledger work inside atomic transactions.
//
// InTx must commit only when fn returns nil and roll back otherwise, so a
// failed operation leaves no partial state behind. Implementations map
// their own serialization failures to ErrConflict and connectivity
// failures to ErrStoreUnavailable.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of row operations available inside a transaction.
//
// Lock* methods hold their row locks until the transaction ends. Callers
// lock the order row before any product row, and LockProducts locks
// products in ascending id order, so two transactions never wait on each
// other in a cycle.
type Tx interface {
	// LockProducts locks the given products. Missing ids are absent from
	// the returned map.
	LockProducts(ctx context.Context, ids ...int64) (map[int64]*product.Product, error)
	// LockOrder locks a single order or returns order.ErrNotFound.
	LockOrder(ctx context.Context, id int64) (*order.Order, error)

	// AddStock adds delta (possibly negative) to a product's stock.
	AddStock(ctx context.Context, productID int64, delta int) error
	InsertProduct(ctx context.Context, f product.Fields) (int64, error)
	UpdateProduct(ctx context.Context, id int64, f product.Fields) error
	DeleteProduct(ctx context.Context, id int64) error
	CountOrdersForProduct(ctx context.Context, productID int64) (int, error)

	// InsertOrder stores o and fills in its ID and CreatedAt.
	InsertOrder(ctx context.Context, o *order.Order) error
	UpdateOrder(ctx context.Context, o *order.Order) error
	DeleteOrder(ctx context.Context, id int64) error

	HasPayment(ctx context.Context, orderID int64) (bool, error)
	// InsertPayment stores p and fills in its ID and CreatedAt.
	InsertPayment(ctx context.Context, p *payment.Payment) error
}
