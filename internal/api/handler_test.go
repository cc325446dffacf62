package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
	"github.com/xenking/sales-ledger/internal/domain/report"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	listErr  error
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

type mockOrderRepo struct {
	orders []order.Order
}

func (m *mockOrderRepo) List(context.Context) ([]order.Order, error) {
	return m.orders, nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	for i := range m.orders {
		if m.orders[i].ID == id {
			return &m.orders[i], nil
		}
	}
	return nil, order.ErrNotFound
}

type mockPaymentRepo struct {
	payments []payment.Payment
}

func (m *mockPaymentRepo) List(context.Context) ([]payment.Payment, error) {
	return m.payments, nil
}

// mockLedger records the last request and returns err from every call.
type mockLedger struct {
	err error

	fields    product.Fields
	orderReq  ledger.OrderRequest
	payReq    ledger.PaymentRequest
	updatedID int64
	deletedID int64
	restocked int
}

func (m *mockLedger) CreateProduct(_ context.Context, f product.Fields) (int64, error) {
	m.fields = f
	return 7, m.err
}

func (m *mockLedger) UpdateProduct(_ context.Context, id int64, f product.Fields) error {
	m.updatedID, m.fields = id, f
	return m.err
}

func (m *mockLedger) Restock(_ context.Context, id int64, quantity int) (int, error) {
	m.updatedID, m.restocked = id, quantity
	return 10 + quantity, m.err
}

func (m *mockLedger) DeleteProduct(_ context.Context, id int64) error {
	m.deletedID = id
	return m.err
}

func (m *mockLedger) CreateOrder(_ context.Context, req ledger.OrderRequest) (*order.Order, error) {
	m.orderReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &order.Order{ID: 11, ProductID: req.ProductID, Quantity: req.Quantity}, nil
}

func (m *mockLedger) UpdateOrder(_ context.Context, id int64, req ledger.OrderRequest) (*order.Order, error) {
	m.updatedID, m.orderReq = id, req
	if m.err != nil {
		return nil, m.err
	}
	return &order.Order{ID: id}, nil
}

func (m *mockLedger) DeleteOrder(_ context.Context, id int64) error {
	m.deletedID = id
	return m.err
}

func (m *mockLedger) RecordPayment(_ context.Context, req ledger.PaymentRequest) (*payment.Payment, error) {
	m.payReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &payment.Payment{ID: 21, OrderID: req.OrderID, Total: decimal.RequireFromString("270")}, nil
}

type mockReports struct {
	summary *report.Summary
	err     error
}

func (m *mockReports) Summary(context.Context) (*report.Summary, error) {
	return m.summary, m.err
}

// --- Helpers ---

type fixture struct {
	router   chi.Router
	products *mockProductRepo
	orders   *mockOrderRepo
	payments *mockPaymentRepo
	ledger   *mockLedger
	reports  *mockReports
}

func newFixture() *fixture {
	f := &fixture{
		products: &mockProductRepo{products: []product.Product{
			{ID: 1, Name: "Pen", Price: decimal.RequireFromString("1.5"), Stock: 40},
			{ID: 2, Name: "Notebook", Price: decimal.RequireFromString("4.25"), Stock: 3, Image: "nb.png"},
		}},
		orders: &mockOrderRepo{orders: []order.Order{{
			ID:           5,
			CustomerName: "Ada",
			ProductID:    2,
			Quantity:     1,
			Status:       order.StatusPending,
			CreatedAt:    time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
		}}},
		payments: &mockPaymentRepo{},
		ledger:   &mockLedger{},
		reports:  &mockReports{},
	}
	h := NewHandler(f.products, f.orders, f.payments, f.ledger, f.reports)
	r := chi.NewRouter()
	r.Route("/api", h.Mount)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "Pen", out[0]["name"])
	assert.InDelta(t, 1.5, out[0]["price"], 0.0001)
	assert.Equal(t, float64(3), out[1]["stock"])
	assert.Equal(t, "nb.png", out[1]["image"])
}

func TestListProducts_Error(t *testing.T) {
	f := newFixture()
	f.products.listErr = errors.New("db down")

	rec := f.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decodeMap(t, rec)
	assert.Equal(t, float64(500), out["code"])
	assert.NotContains(t, out["message"], "db down")
}

func TestGetProduct(t *testing.T) {
	f := newFixture()

	t.Run("Found", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/products/2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Notebook", decodeMap(t, rec)["name"])
	})
	t.Run("NotFound", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/products/99", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "product not found", decodeMap(t, rec)["message"])
	})
	t.Run("BadID", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/products/abc", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateProduct(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/products",
		`{"name":"Stapler","description":"Red","price":"12.30","stock":"15","image":"s.png","extra":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(7), decodeMap(t, rec)["id"])

	got := f.ledger.fields
	assert.Equal(t, "Stapler", got.Name)
	assert.Equal(t, "Red", got.Description)
	assert.True(t, decimal.RequireFromString("12.3").Equal(got.Price))
	assert.Equal(t, 15, got.Stock)
	assert.Equal(t, "s.png", got.Image)
}

func TestCreateProduct_BadBody(t *testing.T) {
	for _, tt := range []struct {
		name string
		body string
	}{
		{name: "Empty", body: ""},
		{name: "Malformed", body: `{"name":`},
		{name: "Array", body: `[]`},
		{name: "PriceNotNumber", body: `{"name":"x","price":"abc"}`},
		{name: "StockWrongType", body: `{"name":"x","stock":true}`},
		{name: "StockOutOfRange", body: `{"name":"x","price":1,"stock":3000000000}`},
		{name: "StockStringOutOfRange", body: `{"name":"x","price":1,"stock":"-3000000000"}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, "/api/products", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, float64(400), decodeMap(t, rec)["code"])
		})
	}
}

func TestCreateProduct_Duplicate(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.Wrap(product.ErrDuplicateName, "insert")
	rec := f.do(t, http.MethodPost, "/api/products", `{"name":"Pen","price":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPut, "/api/products/2", `{"name":"Notebook A5","price":5,"stock":9}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int64(2), f.ledger.updatedID)
	assert.Equal(t, 9, f.ledger.fields.Stock)
}

func TestDeleteProduct(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodDelete, "/api/products/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(1), f.ledger.deletedID)
	})
	t.Run("ReferencedByOrders", func(t *testing.T) {
		f := newFixture()
		f.ledger.err = ledger.ErrReferencedByOrders
		rec := f.do(t, http.MethodDelete, "/api/products/2", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "cannot delete product referenced in orders", decodeMap(t, rec)["message"])
	})
}

func TestRestockProduct(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/products/1/restock", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeMap(t, rec)
	assert.Equal(t, float64(1), out["id"])
	assert.Equal(t, float64(15), out["stock"])
	assert.Equal(t, 5, f.ledger.restocked)
}

func TestRestockProduct_OutOfRange(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/products/1/restock", `{"quantity":4294967296}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid quantity: is out of range", decodeMap(t, rec)["message"])
	assert.Zero(t, f.ledger.restocked)
}

func TestListOrders(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Ada", out[0]["customer_name"])
	assert.Equal(t, "Pending", out[0]["status"])
	assert.Equal(t, "2026-10-01T09:30:00Z", out[0]["created_at"])
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/orders/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order not found", decodeMap(t, rec)["message"])
}

func TestCreateOrder(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/orders",
		`{"customer_name":"Grace","product_id":"2","quantity":2,"status":"Pending"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(11), decodeMap(t, rec)["id"])
	assert.Equal(t, ledger.OrderRequest{
		CustomerName: "Grace",
		ProductID:    2,
		Quantity:     2,
		Status:       "Pending",
	}, f.ledger.orderReq)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.Wrap(&ledger.InsufficientStockError{ProductID: 2, Requested: 50, Available: 3}, "reserve")

	rec := f.do(t, http.MethodPost, "/api/orders", `{"customer_name":"Grace","product_id":2,"quantity":50}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMap(t, rec)["message"], "requested 50, available 3")
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPut, "/api/orders/5", `{"customer_name":"Ada","product_id":1,"quantity":3,"status":"Canceled"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(5), f.ledger.updatedID)
	assert.Equal(t, "Canceled", f.ledger.orderReq.Status)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture()
	f.ledger.err = order.ErrNotFound
	rec := f.do(t, http.MethodDelete, "/api/orders/77", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int64(77), f.ledger.deletedID)
}

func TestCreatePayment(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/payments", `{"order_id":5,"discount":10,"payment_method":"Card"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeMap(t, rec)
	assert.Equal(t, float64(21), out["id"])
	assert.InDelta(t, 270.0, out["total"], 0.0001)
	assert.Equal(t, int64(5), f.ledger.payReq.OrderID)
	assert.True(t, decimal.NewFromInt(10).Equal(f.ledger.payReq.Discount))
	assert.Equal(t, "Card", f.ledger.payReq.Method)
}

func TestCreatePayment_Errors(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		want int
	}{
		{name: "AlreadyPaid", err: payment.ErrAlreadyPaid, want: http.StatusConflict},
		{name: "Conflict", err: ledger.ErrConflict, want: http.StatusConflict},
		{name: "Unavailable", err: ledger.ErrStoreUnavailable, want: http.StatusServiceUnavailable},
		{name: "Validation", err: &ledger.ValidationError{Field: "discount", Reason: "out of range"}, want: http.StatusBadRequest},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.ledger.err = errors.Wrap(tt.err, "record")
			rec := f.do(t, http.MethodPost, "/api/payments", `{"order_id":5}`)
			require.Equal(t, tt.want, rec.Code)
			assert.Equal(t, float64(tt.want), decodeMap(t, rec)["code"])
		})
	}
}

func TestListPayments(t *testing.T) {
	f := newFixture()
	f.payments.payments = []payment.Payment{{
		ID:       1,
		OrderID:  5,
		Discount: decimal.Zero,
		Method:   payment.DefaultMethod,
		Status:   payment.StatusCompleted,
		Total:    decimal.RequireFromString("4.25"),
	}}
	rec := f.do(t, http.MethodGet, "/api/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "COD", out[0]["payment_method"])
	assert.Equal(t, "Completed", out[0]["status"])
	assert.Contains(t, rec.Body.String(), `"total":4.25`)
}

func TestReportSummary(t *testing.T) {
	f := newFixture()
	f.reports.summary = &report.Summary{
		Orders:      report.OrderCounts{Pending: 1, Completed: 2},
		Stock:       report.StockBands{Low: 1, High: 1},
		Inventory:   43,
		Invoices:    2,
		TopProducts: []report.ProductQuantity{{ProductID: 2, Name: "Notebook", Quantity: 4}},
		DailySales:  []report.PeriodTotal{{Period: "2026-10-01", Total: decimal.RequireFromString("8.5")}},
		GeneratedAt: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
	}

	rec := f.do(t, http.MethodGet, "/api/reports/summary", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeMap(t, rec)
	assert.Equal(t, float64(43), out["inventory"])
	assert.Equal(t, map[string]any{"pending": float64(1), "completed": float64(2), "canceled": float64(0)}, out["orders"])
	assert.Len(t, out["top_products"], 1)
	assert.Equal(t, []any{}, out["monthly_sales"])
	assert.Contains(t, rec.Body.String(), `"total":8.50`)
}

func TestReportSummary_Error(t *testing.T) {
	f := newFixture()
	f.reports.err = errors.Wrap(ledger.ErrStoreUnavailable, "summary")
	rec := f.do(t, http.MethodGet, "/api/reports/summary", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
