package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/report"
)

const (
	orderCountsSQL = `SELECT status, count(*) FROM orders GROUP BY status`

	stockBandsSQL = `SELECT
		count(*) FILTER (WHERE stock <= $1),
		count(*) FILTER (WHERE stock > $1 AND stock <= $2),
		count(*) FILTER (WHERE stock > $2)
		FROM products`

	topProductsSQL = `SELECT o.product_id, p.name, sum(o.quantity) AS quantity
		FROM orders o JOIN products p ON p.id = o.product_id
		GROUP BY o.product_id, p.name
		ORDER BY quantity DESC, o.product_id
		LIMIT $1`

	salesSQL = `SELECT to_char(created_at AT TIME ZONE 'UTC', $1) AS period, sum(total)
		FROM payments GROUP BY period ORDER BY period`

	dailyInvoicesSQL = `SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS period, count(*)
		FROM payments GROUP BY period ORDER BY period`
)

var periodFormats = map[report.Period]string{
	report.Day:   "YYYY-MM-DD",
	report.Month: "YYYY-MM",
}

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository implements report.Repository with SQL aggregates.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

func (r *ReportRepository) OrderCounts(ctx context.Context) (report.OrderCounts, error) {
	var counts report.OrderCounts

	rows, err := r.pool.Query(ctx, orderCountsSQL)
	if err != nil {
		return counts, fmt.Errorf("counting orders: %w", classifyError(err))
	}
	var (
		status string
		n      int
	)
	_, err = pgx.ForEachRow(rows, []any{&status, &n}, func() error {
		switch order.Status(status) {
		case order.StatusPending:
			counts.Pending = n
		case order.StatusCompleted:
			counts.Completed = n
		case order.StatusCanceled:
			counts.Canceled = n
		}
		return nil
	})
	if err != nil {
		return counts, fmt.Errorf("counting orders: %w", classifyError(err))
	}
	return counts, nil
}

func (r *ReportRepository) StockBands(ctx context.Context, lowMax, normalMax int) (report.StockBands, error) {
	var b report.StockBands
	if err := r.pool.QueryRow(ctx, stockBandsSQL, lowMax, normalMax).Scan(&b.Low, &b.Normal, &b.High); err != nil {
		return b, fmt.Errorf("counting stock bands: %w", classifyError(err))
	}
	return b, nil
}

func (r *ReportRepository) TopProducts(ctx context.Context, limit int) ([]report.ProductQuantity, error) {
	rows, err := r.pool.Query(ctx, topProductsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking products: %w", classifyError(err))
	}
	top, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.ProductQuantity, error) {
		var pq report.ProductQuantity
		err := row.Scan(&pq.ProductID, &pq.Name, &pq.Quantity)
		return pq, err
	})
	if err != nil {
		return nil, fmt.Errorf("ranking products: %w", classifyError(err))
	}
	return top, nil
}

func (r *ReportRepository) Sales(ctx context.Context, period report.Period) ([]report.PeriodTotal, error) {
	format, ok := periodFormats[period]
	if !ok {
		return nil, fmt.Errorf("unknown sales period %q", period)
	}

	rows, err := r.pool.Query(ctx, salesSQL, format)
	if err != nil {
		return nil, fmt.Errorf("summing %s sales: %w", period, classifyError(err))
	}
	totals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.PeriodTotal, error) {
		var pt report.PeriodTotal
		err := row.Scan(&pt.Period, &pt.Total)
		return pt, err
	})
	if err != nil {
		return nil, fmt.Errorf("summing %s sales: %w", period, classifyError(err))
	}
	return totals, nil
}

func (r *ReportRepository) DailyInvoices(ctx context.Context) ([]report.PeriodCount, error) {
	rows, err := r.pool.Query(ctx, dailyInvoicesSQL)
	if err != nil {
		return nil, fmt.Errorf("counting invoices: %w", classifyError(err))
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.PeriodCount, error) {
		var pc report.PeriodCount
		err := row.Scan(&pc.Period, &pc.Count)
		return pc, err
	})
	if err != nil {
		return nil, fmt.Errorf("counting invoices: %w", classifyError(err))
	}
	return counts, nil
}
