// Package api serves the sales ledger JSON API.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
	"github.com/xenking/sales-ledger/internal/domain/report"
)

// Ledger performs every mutation that touches stock.
type Ledger interface {
	CreateProduct(ctx context.Context, f product.Fields) (int64, error)
	UpdateProduct(ctx context.Context, id int64, f product.Fields) error
	Restock(ctx context.Context, id int64, quantity int) (int, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, req ledger.OrderRequest) (*order.Order, error)
	UpdateOrder(ctx context.Context, id int64, req ledger.OrderRequest) (*order.Order, error)
	DeleteOrder(ctx context.Context, id int64) error

	RecordPayment(ctx context.Context, req ledger.PaymentRequest) (*payment.Payment, error)
}

// Reports provides the dashboard summary.
type Reports interface {
	Summary(ctx context.Context) (*report.Summary, error)
}

var (
	_ Ledger  = (*ledger.Service)(nil)
	_ Reports = (*report.Service)(nil)
)

// Handler serves the API routes. Reads go to the repositories, writes go
// through the ledger.
type Handler struct {
	products product.Repository
	orders   order.Repository
	payments payment.Repository
	ledger   Ledger
	reports  Reports
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	orders order.Repository,
	payments payment.Repository,
	l Ledger,
	reports Reports,
) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
		payments: payments,
		ledger:   l,
		reports:  reports,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getProduct)
			r.Put("/", h.updateProduct)
			r.Delete("/", h.deleteProduct)
			r.Post("/restock", h.restockProduct)
		})
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Put("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)
		})
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.createPayment)
	})
	r.Get("/reports/summary", h.reportSummary)
}
