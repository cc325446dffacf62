package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
)

// mapError converts domain errors to an HTTP status and client message.
func mapError(err error) (int, string) {
	var (
		vErr *ledger.ValidationError
		sErr *ledger.InsufficientStockError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.As(err, &sErr):
		return http.StatusBadRequest, sErr.Error()
	case errors.Is(err, ledger.ErrReferencedByOrders):
		return http.StatusBadRequest, "cannot delete product referenced in orders"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, payment.ErrAlreadyPaid):
		return http.StatusConflict, "order already paid"
	case errors.Is(err, product.ErrDuplicateName):
		return http.StatusConflict, "product name already exists"
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, "conflicting concurrent update, retry"
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// fail writes the error response for err. Server-side failures are logged
// with the cause; client errors are not.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}
