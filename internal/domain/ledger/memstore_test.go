package ledger

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
)

// memStore is a Store that serializes transactions with a mutex and rolls
// back by restoring a snapshot taken when the transaction began.
type memStore struct {
	mu       sync.Mutex
	products map[int64]product.Product
	orders   map[int64]order.Order
	payments map[int64]payment.Payment
	nextID   int64

	// failOn names a Tx method that fails, to simulate a store error in
	// the middle of a transaction.
	failOn string
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]product.Product),
		orders:   make(map[int64]order.Order),
		payments: make(map[int64]payment.Payment),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := maps.Clone(m.products)
	orders := maps.Clone(m.orders)
	payments := maps.Clone(m.payments)
	nextID := m.nextID

	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.products, m.orders, m.payments, m.nextID = products, orders, payments, nextID
		return err
	}
	return nil
}

func (m *memStore) seedProduct(price string, stock int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.products[m.nextID] = product.Product{
		ID:    m.nextID,
		Name:  "product",
		Price: mustDecimal(price),
		Stock: stock,
	}
	return m.nextID
}

func (m *memStore) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) order(id int64) (order.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) paymentList() []payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(maps.Values(m.payments))
}

type memTx struct {
	m *memStore
}

func (t *memTx) fail(op string) error {
	if t.m.failOn == op {
		return errStoreBoom
	}
	return nil
}

func (t *memTx) LockProducts(_ context.Context, ids ...int64) (map[int64]*product.Product, error) {
	out := make(map[int64]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.m.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (t *memTx) AddStock(_ context.Context, productID int64, delta int) error {
	if err := t.fail("AddStock"); err != nil {
		return err
	}
	p := t.m.products[productID]
	p.Stock += delta
	t.m.products[productID] = p
	return nil
}

func (t *memTx) InsertProduct(_ context.Context, f product.Fields) (int64, error) {
	t.m.nextID++
	t.m.products[t.m.nextID] = product.Product{
		ID:          t.m.nextID,
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		Stock:       f.Stock,
		Image:       f.Image,
	}
	return t.m.nextID, nil
}

func (t *memTx) UpdateProduct(_ context.Context, id int64, f product.Fields) error {
	t.m.products[id] = product.Product{
		ID:          id,
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		Stock:       f.Stock,
		Image:       f.Image,
	}
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id int64) error {
	delete(t.m.products, id)
	return nil
}

func (t *memTx) CountOrdersForProduct(_ context.Context, productID int64) (int, error) {
	n := 0
	for _, o := range t.m.orders {
		if o.ProductID == productID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *order.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	t.m.nextID++
	o.ID = t.m.nextID
	o.CreatedAt = time.Now()
	t.m.orders[o.ID] = *o
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *order.Order) error {
	if err := t.fail("UpdateOrder"); err != nil {
		return err
	}
	t.m.orders[o.ID] = *o
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id int64) error {
	delete(t.m.orders, id)
	for pid, p := range t.m.payments {
		if p.OrderID == id {
			delete(t.m.payments, pid)
		}
	}
	return nil
}

func (t *memTx) HasPayment(_ context.Context, orderID int64) (bool, error) {
	for _, p := range t.m.payments {
		if p.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertPayment(_ context.Context, p *payment.Payment) error {
	if err := t.fail("InsertPayment"); err != nil {
		return err
	}
	t.m.nextID++
	p.ID = t.m.nextID
	p.CreatedAt = time.Now()
	t.m.payments[p.ID] = *p
	return nil
}
