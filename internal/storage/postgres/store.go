package postgres

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
)

const (
	setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

	lockProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	addStockSQL      = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`
	insertProductSQL = `INSERT INTO products (name, description, price, stock, image)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, stock = $5, image = $6, updated_at = now()
		WHERE id = $1`
	deleteProductSQL         = `DELETE FROM products WHERE id = $1`
	countOrdersForProductSQL = `SELECT count(*) FROM orders WHERE product_id = $1`

	insertOrderSQL = `INSERT INTO orders (customer_name, product_id, quantity, status)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	updateOrderSQL = `UPDATE orders
		SET customer_name = $2, product_id = $3, quantity = $4, status = $5
		WHERE id = $1`
	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	hasPaymentSQL    = `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1)`
	insertPaymentSQL = `INSERT INTO payments (order_id, discount, payment_method, status, total)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
)

var _ ledger.Store = (*LedgerStore)(nil)

// LedgerStore implements ledger.Store with READ COMMITTED transactions and
// row locks taken through SELECT ... FOR UPDATE.
type LedgerStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewLedgerStore returns a LedgerStore. A positive lockTimeout bounds how
// long a transaction waits for a row lock before failing with
// ledger.ErrConflict.
func NewLedgerStore(pool *pgxpool.Pool, lockTimeout time.Duration) *LedgerStore {
	return &LedgerStore{pool: pool, lockTimeout: lockTimeout}
}

// InTx runs fn in a transaction that commits when fn returns nil.
func (s *LedgerStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if s.lockTimeout > 0 {
			timeout := strconv.FormatInt(s.lockTimeout.Milliseconds(), 10) + "ms"
			if _, err := tx.Exec(ctx, setLockTimeoutSQL, timeout); err != nil {
				return fmt.Errorf("setting lock timeout: %w", err)
			}
		}
		return fn(ctx, &ledgerTx{tx: tx})
	})
	return classifyError(err)
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) LockProducts(ctx context.Context, ids ...int64) (map[int64]*product.Product, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}

	out := make(map[int64]*product.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (t *ledgerTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, lockOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}
	return &o, nil
}

func (t *ledgerTx) AddStock(ctx context.Context, productID int64, delta int) error {
	tag, err := t.tx.Exec(ctx, addStockSQL, productID, delta)
	if err != nil {
		return fmt.Errorf("adding stock to product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) InsertProduct(ctx context.Context, f product.Fields) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, insertProductSQL, f.Name, f.Description, f.Price, f.Stock, f.Image).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting product: %w", err)
	}
	return id, nil
}

func (t *ledgerTx) UpdateProduct(ctx context.Context, id int64, f product.Fields) error {
	tag, err := t.tx.Exec(ctx, updateProductSQL, id, f.Name, f.Description, f.Price, f.Stock, f.Image)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) CountOrdersForProduct(ctx context.Context, productID int64) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, countOrdersForProductSQL, productID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders for product %d: %w", productID, err)
	}
	return n, nil
}

func (t *ledgerTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.CustomerName, o.ProductID, o.Quantity, string(o.Status),
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	tag, err := t.tx.Exec(ctx, updateOrderSQL,
		o.ID, o.CustomerName, o.ProductID, o.Quantity, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) HasPayment(ctx context.Context, orderID int64) (bool, error) {
	var ok bool
	if err := t.tx.QueryRow(ctx, hasPaymentSQL, orderID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking payment for order %d: %w", orderID, err)
	}
	return ok, nil
}

func (t *ledgerTx) InsertPayment(ctx context.Context, p *payment.Payment) error {
	err := t.tx.QueryRow(ctx, insertPaymentSQL,
		p.OrderID, p.Discount, p.Method, string(p.Status), p.Total,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting payment for order %d: %w", p.OrderID, err)
	}
	return nil
}
