package postgres

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/payment"
	"github.com/xenking/sales-ledger/internal/domain/product"
)

// PostgreSQL error codes the store reacts to.
const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeNumericOutOfRange    = "22003"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

const (
	productsNameKey     = "products_name_key"
	paymentsOrderIDKey  = "payments_order_id_key"
	ordersProductIDFKey = "orders_product_id_fkey"
)

// classifyError maps driver errors onto ledger error kinds. The original
// error stays in the chain. Errors that are not driver errors pass through
// unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeNumericOutOfRange:
			return fmt.Errorf("%w: %w", &ledger.ValidationError{Field: "value", Reason: "out of range"}, err)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %w", ledger.ErrConflict, err)
		case codeForeignKeyViolation:
			if pgErr.ConstraintName == ordersProductIDFKey {
				return fmt.Errorf("%w: %w", ledger.ErrReferencedByOrders, err)
			}
		case codeUniqueViolation:
			switch pgErr.ConstraintName {
			case productsNameKey:
				return fmt.Errorf("%w: %w", product.ErrDuplicateName, err)
			case paymentsOrderIDKey:
				return fmt.Errorf("%w: %w", payment.ErrAlreadyPaid, err)
			}
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
	}
	return err
}
