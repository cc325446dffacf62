// Package report computes the dashboard summary over products, orders and
// payments.
package report

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stock band upper bounds, inclusive.
const (
	LowStockMax    = 5
	NormalStockMax = 20
)

// DefaultTopProducts is the number of products listed by ordered quantity.
const DefaultTopProducts = 5

// Period is the bucket width of a sales series.
type Period string

const (
	Day   Period = "day"
	Month Period = "month"
)

// OrderCounts counts orders by status.
type OrderCounts struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Canceled  int `json:"canceled"`
}

// StockBands counts products by stock level: Low up to LowStockMax, Normal
// up to NormalStockMax, High above.
type StockBands struct {
	Low    int `json:"low"`
	Normal int `json:"normal"`
	High   int `json:"high"`
}

// ProductQuantity is the total quantity ordered for a product.
type ProductQuantity struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// PeriodTotal is the sum of payment totals within a period. Period is
// formatted as YYYY-MM-DD for days and YYYY-MM for months, in UTC.
type PeriodTotal struct {
	Period string          `json:"period"`
	Total  decimal.Decimal `json:"total"`
}

// PeriodCount is the number of payments within a day.
type PeriodCount struct {
	Period string `json:"period"`
	Count  int    `json:"count"`
}

// Summary is the dashboard aggregate.
type Summary struct {
	Orders        OrderCounts       `json:"orders"`
	Stock         StockBands        `json:"stock"`
	Inventory     int               `json:"inventory"`
	Invoices      int               `json:"invoices"`
	TopProducts   []ProductQuantity `json:"top_products"`
	DailySales    []PeriodTotal     `json:"daily_sales"`
	MonthlySales  []PeriodTotal     `json:"monthly_sales"`
	DailyInvoices []PeriodCount     `json:"daily_invoices"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// Repository runs the aggregate queries.
type Repository interface {
	OrderCounts(ctx context.Context) (OrderCounts, error)
	StockBands(ctx context.Context, lowMax, normalMax int) (StockBands, error)
	TopProducts(ctx context.Context, limit int) ([]ProductQuantity, error)
	Sales(ctx context.Context, period Period) ([]PeriodTotal, error)
	DailyInvoices(ctx context.Context) ([]PeriodCount, error)
}

// Cache stores the last computed summary. A miss is reported as
// (nil, nil).
type Cache interface {
	Get(ctx context.Context) (*Summary, error)
	Set(ctx context.Context, s *Summary) error
	Invalidate(ctx context.Context) error
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables summary caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTopProducts sets how many products the summary ranks.
func WithTopProducts(n int) Option {
	return func(s *Service) { s.topN = n }
}

// Service builds summaries.
type Service struct {
	repo  Repository
	cache Cache
	topN  int
	now   func() time.Time

	// gen is bumped by every Invalidate. A summary computed across a bump
	// is not cached.
	gen atomic.Uint64
}

// NewService creates a report Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		topN: DefaultTopProducts,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary returns the cached summary when present, computing and caching it
// otherwise. Cache failures are logged and never fail the request.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	lg := zctx.From(ctx)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			lg.Warn("Report cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	gen := s.gen.Load()
	sum, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.gen.Load() == gen {
		if err := s.cache.Set(ctx, sum); err != nil {
			lg.Warn("Report cache write failed", zap.Error(err))
		}
		if s.gen.Load() != gen {
			// Invalidated while writing.
			s.dropCache(ctx)
		}
	}
	return sum, nil
}

// Invalidate drops the cached summary. Summaries still being computed when
// it is called are returned to their callers but not cached.
func (s *Service) Invalidate(ctx context.Context) {
	s.gen.Add(1)
	if s.cache == nil {
		return
	}
	s.dropCache(ctx)
}

func (s *Service) dropCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		zctx.From(ctx).Warn("Report cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) compute(ctx context.Context) (*Summary, error) {
	sum := &Summary{GeneratedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if sum.Orders, err = s.repo.OrderCounts(gctx); err != nil {
			return errors.Wrap(err, "order counts")
		}
		return nil
	})
	g.Go(func() (err error) {
		if sum.Stock, err = s.repo.StockBands(gctx, LowStockMax, NormalStockMax); err != nil {
			return errors.Wrap(err, "stock bands")
		}
		return nil
	})
	g.Go(func() (err error) {
		if sum.TopProducts, err = s.repo.TopProducts(gctx, s.topN); err != nil {
			return errors.Wrap(err, "top products")
		}
		return nil
	})
	g.Go(func() (err error) {
		if sum.DailySales, err = s.repo.Sales(gctx, Day); err != nil {
			return errors.Wrap(err, "daily sales")
		}
		return nil
	})
	g.Go(func() (err error) {
		if sum.MonthlySales, err = s.repo.Sales(gctx, Month); err != nil {
			return errors.Wrap(err, "monthly sales")
		}
		return nil
	})
	g.Go(func() (err error) {
		if sum.DailyInvoices, err = s.repo.DailyInvoices(gctx); err != nil {
			return errors.Wrap(err, "daily invoices")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum.Inventory = sum.Stock.Low + sum.Stock.Normal + sum.Stock.High
	for _, c := range sum.DailyInvoices {
		sum.Invoices += c.Count
	}
	return sum, nil
}
