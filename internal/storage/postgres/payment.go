package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, discount, payment_method, status, total, created_at`

	listPaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments ORDER BY id`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// List returns all payments ordered by ID.
func (r *PaymentRepository) List(ctx context.Context) ([]payment.Payment, error) {
	rows, err := r.pool.Query(ctx, listPaymentsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", classifyError(err))
	}
	payments, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", classifyError(err))
	}
	return payments, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.Discount, &p.Method, &status, &p.Total, &p.CreatedAt)
	p.Status = payment.Status(status)
	return p, err
}
