package api

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
	"github.com/xenking/sales-ledger/internal/domain/report"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeID(w http.ResponseWriter, id int64) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(id)
		e.ObjEnd()
	})
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ledger.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

// decodeBody reads a JSON object from the request body and calls fn for
// every field. Malformed input becomes a *ledger.ValidationError.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return &ledger.ValidationError{Field: "body", Reason: "unreadable or too large"}
	}
	if len(body) == 0 {
		return &ledger.ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		var vErr *ledger.ValidationError
		if errors.As(err, &vErr) {
			return vErr
		}
		return &ledger.ValidationError{Field: "body", Reason: "malformed JSON object"}
	}
	return nil
}

func badField(field string) error {
	return &ledger.ValidationError{Field: field, Reason: "has the wrong type"}
}

// decodeInt accepts a JSON number or a numeric string, as HTML forms send.
func decodeInt(d *jx.Decoder, field string) (int64, error) {
	switch d.Next() {
	case jx.Number:
		v, err := d.Int64()
		if err != nil {
			return 0, badField(field)
		}
		return v, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, badField(field)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, badField(field)
		}
		return v, nil
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, badField(field)
	}
}

// decodeCount decodes a stock level or quantity, which the store keeps as a
// 32-bit integer.
func decodeCount(d *jx.Decoder, field string) (int, error) {
	v, err := decodeInt(d, field)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, &ledger.ValidationError{Field: field, Reason: "is out of range"}
	}
	return int(v), nil
}

// decodeDecimal accepts a JSON number or a decimal string.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		num, err := d.Num()
		if err != nil {
			return decimal.Zero, badField(field)
		}
		raw = num.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, badField(field)
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			return decimal.Zero, nil
		}
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, badField(field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badField(field)
	}
	return v, nil
}

func decodeString(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return "", badField(field)
		}
		return s, nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", badField(field)
	}
}

func decodeProductFields(r *http.Request) (product.Fields, error) {
	var f product.Fields
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			f.Name, err = decodeString(d, key)
		case "description":
			f.Description, err = decodeString(d, key)
		case "price":
			f.Price, err = decodeDecimal(d, key)
		case "stock":
			f.Stock, err = decodeCount(d, key)
		case "image":
			f.Image, err = decodeString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	return f, err
}

func decodeOrderRequest(r *http.Request) (ledger.OrderRequest, error) {
	var req ledger.OrderRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_name":
			req.CustomerName, err = decodeString(d, key)
		case "product_id":
			req.ProductID, err = decodeInt(d, key)
		case "quantity":
			req.Quantity, err = decodeCount(d, key)
		case "status":
			req.Status, err = decodeString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodePaymentRequest(r *http.Request) (ledger.PaymentRequest, error) {
	var req ledger.PaymentRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			req.OrderID, err = decodeInt(d, key)
		case "discount":
			req.Discount, err = decodeDecimal(d, key)
		case "payment_method":
			req.Method, err = decodeString(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeRestock(r *http.Request) (int, error) {
	var qty int
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = decodeCount(d, key)
		return err
	})
	return qty, err
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("image")
	e.Str(p.Image)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("customer_name")
	e.Str(o.CustomerName)
	e.FieldStart("product_id")
	e.Int64(o.ProductID)
	e.FieldStart("quantity")
	e.Int(o.Quantity)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p payment.Payment) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("order_id")
	e.Int64(p.OrderID)
	e.FieldStart("discount")
	encodeDecimal(e, p.Discount)
	e.FieldStart("payment_method")
	e.Str(p.Method)
	e.FieldStart("status")
	e.Str(string(p.Status))
	e.FieldStart("total")
	encodeDecimal(e, p.Total)
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s *report.Summary) {
	e.ObjStart()

	e.FieldStart("orders")
	e.ObjStart()
	e.FieldStart("pending")
	e.Int(s.Orders.Pending)
	e.FieldStart("completed")
	e.Int(s.Orders.Completed)
	e.FieldStart("canceled")
	e.Int(s.Orders.Canceled)
	e.ObjEnd()

	e.FieldStart("stock")
	e.ObjStart()
	e.FieldStart("low")
	e.Int(s.Stock.Low)
	e.FieldStart("normal")
	e.Int(s.Stock.Normal)
	e.FieldStart("high")
	e.Int(s.Stock.High)
	e.ObjEnd()

	e.FieldStart("inventory")
	e.Int(s.Inventory)
	e.FieldStart("invoices")
	e.Int(s.Invoices)

	e.FieldStart("top_products")
	e.ArrStart()
	for _, p := range s.TopProducts {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(p.ProductID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("quantity")
		e.Int(p.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()

	encodeTotals(e, "daily_sales", s.DailySales)
	encodeTotals(e, "monthly_sales", s.MonthlySales)

	e.FieldStart("daily_invoices")
	e.ArrStart()
	for _, c := range s.DailyInvoices {
		e.ObjStart()
		e.FieldStart("period")
		e.Str(c.Period)
		e.FieldStart("count")
		e.Int(c.Count)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("generated_at")
	encodeTime(e, s.GeneratedAt)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, field string, totals []report.PeriodTotal) {
	e.FieldStart(field)
	e.ArrStart()
	for _, t := range totals {
		e.ObjStart()
		e.FieldStart("period")
		e.Str(t.Period)
		e.FieldStart("total")
		encodeDecimal(e, t.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
}
