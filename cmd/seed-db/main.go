package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-ledger/internal/domain/ledger"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/domain/product"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
}

var customers = []string{"Ada Lovelace", "Grace Hopper", "Alan Turing", "Barbara Liskov", "Ken Thompson"}

func main() {
	var (
		databaseURL  string
		productsFile string
		demoOrders   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.IntVar(&demoOrders, "demo-orders", 0, "number of demo orders to place through the ledger")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, demoOrders); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, demoOrders int) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	ids, err := seedProducts(ctx, pool, productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}

	if demoOrders > 0 {
		if err := seedOrders(ctx, pool, ids, demoOrders); err != nil {
			return errors.Wrap(err, "seed orders")
		}
	}

	return nil
}

// seedProducts upserts the catalog by name. Stock of existing products is
// left alone: it belongs to the ledger once orders exist.
func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) ([]int64, error) {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const query = `INSERT INTO products (name, description, price, stock, image)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE
SET description = EXCLUDED.description,
    price       = EXCLUDED.price,
    image       = EXCLUDED.image,
    updated_at  = now()
RETURNING id`

	batch := &pgx.Batch{}
	for _, p := range products {
		f := product.Fields{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			Image:       p.Image,
		}
		if field, reason, ok := f.Validate(); !ok {
			return nil, errors.Errorf("product %q: invalid %s: %s", p.Name, field, reason)
		}
		batch.Queue(query, f.Name, f.Description, f.Price, f.Stock, f.Image)
	}

	results := pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			return nil, errors.Wrapf(err, "upsert product %q", p.Name)
		}
		ids = append(ids, id)
		slog.Info("upserted product", slog.Int64("id", id), slog.String("name", p.Name))
	}

	return ids, nil
}

// seedOrders places n random orders through the ledger so stock stays
// consistent, and pays roughly half of them.
func seedOrders(ctx context.Context, pool *pgxpool.Pool, productIDs []int64, n int) error {
	if len(productIDs) == 0 {
		return errors.New("no products to order")
	}

	svc, err := ledger.New(postgres.NewLedgerStore(pool, 5*time.Second))
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}

	slog.Info("placing demo orders", slog.Int("count", n))

	var placed, paid, rejected int
	for i := range n {
		o, err := svc.CreateOrder(ctx, ledger.OrderRequest{
			CustomerName: customers[i%len(customers)],
			ProductID:    productIDs[rand.IntN(len(productIDs))],
			Quantity:     1 + rand.IntN(3),
			Status:       string(order.StatusPending),
		})
		if errors.Is(err, ledger.ErrInsufficientStock) {
			rejected++
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "place order %d", i+1)
		}
		placed++

		if rand.IntN(2) == 0 {
			continue
		}
		if _, err := svc.RecordPayment(ctx, ledger.PaymentRequest{
			OrderID:  o.ID,
			Discount: decimal.NewFromInt(int64(5 * rand.IntN(3))),
			Method:   []string{"COD", "Card", "Transfer"}[rand.IntN(3)],
		}); err != nil {
			return errors.Wrapf(err, "pay order %d", o.ID)
		}
		paid++
	}

	slog.Info("demo orders placed",
		slog.Int("placed", placed),
		slog.Int("paid", paid),
		slog.Int("rejected", rejected),
	)
	return nil
}
