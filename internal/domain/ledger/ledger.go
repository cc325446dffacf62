// Package ledger owns product stock and the order reservations held
// against it.
//
// Every operation that reads stock and writes a value derived from it runs
// in a single Store transaction with the affected product and order rows
// locked, so concurrent requests for the same product can never oversell
// it. An order holds a reservation of Quantity units of its product while
// it exists; with ReleaseOnCancel (the default) a Canceled order holds
// nothing.
package ledger

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
)

// ChangeKind names a committed ledger mutation.
type ChangeKind string

const (
	ChangeOrderCreated    ChangeKind = "order_created"
	ChangeOrderUpdated    ChangeKind = "order_updated"
	ChangeOrderDeleted    ChangeKind = "order_deleted"
	ChangePaymentRecorded ChangeKind = "payment_recorded"
	ChangeProductCreated  ChangeKind = "product_created"
	ChangeProductUpdated  ChangeKind = "product_updated"
	ChangeProductDeleted  ChangeKind = "product_deleted"
	ChangeRestocked       ChangeKind = "restocked"
)

// Change describes a committed mutation. OrderID is zero for product-only
// changes.
type Change struct {
	Kind       ChangeKind
	OrderID    int64
	ProductIDs []int64
}

// Hook observes committed changes. Hooks run synchronously after commit and
// cannot fail the operation.
type Hook func(ctx context.Context, c Change)

// OrderRequest carries the caller-supplied fields of an order.
type OrderRequest struct {
	CustomerName string
	ProductID    int64
	Quantity     int
	Status       string
}

// PaymentRequest carries the caller-supplied fields of a payment.
type PaymentRequest struct {
	OrderID  int64
	Discount decimal.Decimal
	Method   string
}

// Option configures a Service.
type Option func(*Service)

// WithReleaseOnCancel controls whether a Canceled order gives its reserved
// stock back. When disabled, an order keeps its reservation until deleted.
func WithReleaseOnCancel(release bool) Option {
	return func(s *Service) { s.releaseOnCancel = release }
}

// WithHook registers a hook called after every committed change.
func WithHook(h Hook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

// WithTracerProvider sets the provider used for operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("sales-ledger/ledger") }
}

// WithMeterProvider sets the provider used for operation counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("sales-ledger/ledger") }
}

// Service implements the order-stock ledger on top of a Store.
type Service struct {
	store           Store
	releaseOnCancel bool
	hooks           []Hook

	tracer trace.Tracer
	meter  metric.Meter

	operations metric.Int64Counter
	rejections metric.Int64Counter
	conflicts  metric.Int64Counter
}

// New creates a ledger Service.
func New(store Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:           store,
		releaseOnCancel: true,
		tracer:          tracenoop.NewTracerProvider().Tracer("sales-ledger/ledger"),
		meter:           metricnoop.NewMeterProvider().Meter("sales-ledger/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.operations, err = s.meter.Int64Counter("ledger.operations",
		metric.WithDescription("Committed ledger operations by kind"),
	); err != nil {
		return nil, errors.Wrap(err, "create operations counter")
	}
	if s.rejections, err = s.meter.Int64Counter("ledger.stock.rejections",
		metric.WithDescription("Operations rejected for insufficient stock"),
	); err != nil {
		return nil, errors.Wrap(err, "create rejections counter")
	}
	if s.conflicts, err = s.meter.Int64Counter("ledger.conflicts",
		metric.WithDescription("Transactions aborted by concurrent updates"),
	); err != nil {
		return nil, errors.Wrap(err, "create conflicts counter")
	}
	return s, nil
}

// CreateOrder places an order and reserves its quantity from the product's
// stock in the same transaction.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.CreateOrder",
		trace.WithAttributes(attribute.Int64("product.id", req.ProductID)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	o, err := newOrder(req)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, o.ProductID)
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		if products[o.ProductID] == nil {
			return product.ErrNotFound
		}
		if err := s.rebalance(ctx, tx, products, nil, o); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, Change{Kind: ChangeOrderCreated, OrderID: o.ID, ProductIDs: []int64{o.ProductID}})
	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("product_id", o.ProductID),
		zap.Int("quantity", o.Quantity),
		zap.String("status", string(o.Status)),
	)
	return o, nil
}

// UpdateOrder replaces an order's fields and moves its reservation to
// match: a quantity change on the same product adjusts stock by the
// difference, a product change returns the old reservation and claims the
// new one, and status changes follow the cancel policy. The whole update
// commits or nothing does.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req OrderRequest) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.UpdateOrder",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	next, err := newOrder(req)
	if err != nil {
		return nil, err
	}

	var prev *order.Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if prev, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt

		products, err := tx.LockProducts(ctx, prev.ProductID, next.ProductID)
		if err != nil {
			return errors.Wrap(err, "lock products")
		}
		if products[next.ProductID] == nil {
			return product.ErrNotFound
		}
		if err := s.rebalance(ctx, tx, products, prev, next); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, next); err != nil {
			return errors.Wrap(err, "update order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, Change{
		Kind:       ChangeOrderUpdated,
		OrderID:    next.ID,
		ProductIDs: uniqueIDs(prev.ProductID, next.ProductID),
	})
	zctx.From(ctx).Info("Order updated",
		zap.Int64("order_id", next.ID),
		zap.Int64("old_product_id", prev.ProductID),
		zap.Int64("product_id", next.ProductID),
		zap.Int("old_quantity", prev.Quantity),
		zap.Int("quantity", next.Quantity),
		zap.String("status", string(next.Status)),
	)
	return next, nil
}

// DeleteOrder removes an order and returns its reservation to stock.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.DeleteOrder",
		trace.WithAttributes(attribute.Int64("order.id", id)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	var prev *order.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if prev, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		products, err := tx.LockProducts(ctx, prev.ProductID)
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return errors.Wrap(err, "delete order")
		}
		return s.rebalance(ctx, tx, products, prev, nil)
	})
	if err != nil {
		return err
	}

	s.committed(ctx, Change{Kind: ChangeOrderDeleted, OrderID: id, ProductIDs: []int64{prev.ProductID}})
	zctx.From(ctx).Info("Order deleted",
		zap.Int64("order_id", id),
		zap.Int64("product_id", prev.ProductID),
		zap.Int("quantity", prev.Quantity),
	)
	return nil
}

// RecordPayment settles an order: it prices the order at the product's
// current price, stores the payment and marks the order Completed. It is
// the only writer of payment status.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (_ *payment.Payment, rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.RecordPayment",
		trace.WithAttributes(attribute.Int64("order.id", req.OrderID)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	if !payment.ValidDiscount(req.Discount) {
		return nil, invalid("discount", "must be between 0 and 100 with at most 2 decimal places")
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = payment.DefaultMethod
	}

	p := &payment.Payment{
		OrderID:  req.OrderID,
		Discount: req.Discount,
		Method:   method,
		Status:   payment.StatusCompleted,
	}
	var prev *order.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if prev, err = tx.LockOrder(ctx, req.OrderID); err != nil {
			return err
		}
		paid, err := tx.HasPayment(ctx, prev.ID)
		if err != nil {
			return errors.Wrap(err, "check payment")
		}
		if paid {
			return payment.ErrAlreadyPaid
		}

		products, err := tx.LockProducts(ctx, prev.ProductID)
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		prod := products[prev.ProductID]
		if prod == nil {
			return product.ErrNotFound
		}

		next := *prev
		next.Status = order.StatusCompleted
		if err := s.rebalance(ctx, tx, products, prev, &next); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, &next); err != nil {
			return errors.Wrap(err, "complete order")
		}

		p.Total = payment.Total(prev.Quantity, prod.Price, p.Discount)
		if err := tx.InsertPayment(ctx, p); err != nil {
			return errors.Wrap(err, "insert payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, Change{Kind: ChangePaymentRecorded, OrderID: p.OrderID, ProductIDs: []int64{prev.ProductID}})
	zctx.From(ctx).Info("Payment recorded",
		zap.Int64("payment_id", p.ID),
		zap.Int64("order_id", p.OrderID),
		zap.Stringer("total", p.Total),
		zap.String("method", p.Method),
	)
	return p, nil
}

// CreateProduct adds a product with its initial stock.
func (s *Service) CreateProduct(ctx context.Context, f product.Fields) (_ int64, rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.CreateProduct")
	defer func() { s.finish(ctx, span, rerr) }()

	if field, reason, ok := f.Validate(); !ok {
		return 0, invalid(field, reason)
	}

	var id int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.InsertProduct(ctx, f)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.committed(ctx, Change{Kind: ChangeProductCreated, ProductIDs: []int64{id}})
	zctx.From(ctx).Info("Product created", zap.Int64("product_id", id), zap.Int("stock", f.Stock))
	return id, nil
}

// UpdateProduct replaces a product's catalog fields. The new stock level is
// written under the product lock so it cannot interleave with a
// reservation.
func (s *Service) UpdateProduct(ctx context.Context, id int64, f product.Fields) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.UpdateProduct",
		trace.WithAttributes(attribute.Int64("product.id", id)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	if field, reason, ok := f.Validate(); !ok {
		return invalid(field, reason)
	}

	var prevStock int
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		p := products[id]
		if p == nil {
			return product.ErrNotFound
		}
		prevStock = p.Stock
		return tx.UpdateProduct(ctx, id, f)
	})
	if err != nil {
		return err
	}

	s.committed(ctx, Change{Kind: ChangeProductUpdated, ProductIDs: []int64{id}})
	zctx.From(ctx).Info("Product updated",
		zap.Int64("product_id", id),
		zap.Int("old_stock", prevStock),
		zap.Int("stock", f.Stock),
	)
	return nil
}

// Restock adds quantity units to a product and returns the new stock level.
func (s *Service) Restock(ctx context.Context, id int64, quantity int) (_ int, rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Restock",
		trace.WithAttributes(attribute.Int64("product.id", id)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	if quantity <= 0 {
		return 0, invalid("quantity", "must be greater than 0")
	}

	var stock int
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		p := products[id]
		if p == nil {
			return product.ErrNotFound
		}
		if quantity > product.MaxStock-p.Stock {
			return invalid("quantity", "stock would exceed 2147483647")
		}
		if err := tx.AddStock(ctx, id, quantity); err != nil {
			return errors.Wrap(err, "add stock")
		}
		stock = p.Stock + quantity
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.committed(ctx, Change{Kind: ChangeRestocked, ProductIDs: []int64{id}})
	zctx.From(ctx).Info("Product restocked",
		zap.Int64("product_id", id),
		zap.Int("quantity", quantity),
		zap.Int("stock", stock),
	)
	return stock, nil
}

// DeleteProduct removes a product that no order references.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "ledger.DeleteProduct",
		trace.WithAttributes(attribute.Int64("product.id", id)),
	)
	defer func() { s.finish(ctx, span, rerr) }()

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock product")
		}
		if products[id] == nil {
			return product.ErrNotFound
		}
		n, err := tx.CountOrdersForProduct(ctx, id)
		if err != nil {
			return errors.Wrap(err, "count orders")
		}
		if n > 0 {
			return ErrReferencedByOrders
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}

	s.committed(ctx, Change{Kind: ChangeProductDeleted, ProductIDs: []int64{id}})
	zctx.From(ctx).Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

// holds reports whether o currently keeps a reservation against its product.
func (s *Service) holds(o *order.Order) bool {
	if o == nil {
		return false
	}
	return !(s.releaseOnCancel && o.Status == order.StatusCanceled)
}

// rebalance moves stock from the reservation held by prev to the one held
// by next. Either may be nil. All sufficiency checks run before any write,
// against the locked product rows.
func (s *Service) rebalance(ctx context.Context, tx Tx, products map[int64]*product.Product, prev, next *order.Order) error {
	delta := make(map[int64]int, 2)
	if s.holds(prev) {
		delta[prev.ProductID] += prev.Quantity
	}
	if s.holds(next) {
		delta[next.ProductID] -= next.Quantity
	}

	ids := make([]int64, 0, len(delta))
	for id, d := range delta {
		if d != 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		p := products[id]
		if p == nil {
			return product.ErrNotFound
		}
		if p.Stock+delta[id] < 0 {
			s.rejections.Add(ctx, 1, metric.WithAttributes(attribute.Int64("product.id", id)))
			return &InsufficientStockError{
				ProductID: id,
				Requested: -delta[id],
				Available: p.Stock,
			}
		}
		if p.Stock+delta[id] > product.MaxStock {
			return invalid("quantity", "stock would exceed 2147483647")
		}
	}
	for _, id := range ids {
		if err := tx.AddStock(ctx, id, delta[id]); err != nil {
			return errors.Wrapf(err, "adjust stock of product %d", id)
		}
		products[id].Stock += delta[id]
	}
	return nil
}

func (s *Service) committed(ctx context.Context, c Change) {
	s.operations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(c.Kind))))
	for _, h := range s.hooks {
		h(ctx, c)
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	if errors.Is(err, ErrConflict) {
		s.conflicts.Add(ctx, 1)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func newOrder(req OrderRequest) (*order.Order, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, invalid("customer_name", "must not be empty")
	}
	if req.ProductID <= 0 {
		return nil, invalid("product_id", "must be a positive identifier")
	}
	if req.Quantity <= 0 {
		return nil, invalid("quantity", "must be greater than 0")
	}
	if req.Quantity > product.MaxStock {
		return nil, invalid("quantity", "must not exceed 2147483647")
	}
	status, ok := order.ParseStatus(req.Status)
	if !ok {
		return nil, invalid("status", "must be one of Pending, Completed, Canceled")
	}
	return &order.Order{
		CustomerName: name,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		Status:       status,
	}, nil
}

func uniqueIDs(ids ...int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
