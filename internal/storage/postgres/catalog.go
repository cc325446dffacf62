package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/product"
)

const (
	createImportTableSQL = `CREATE TEMP TABLE catalog_import (
		name        TEXT           NOT NULL,
		description TEXT           NOT NULL,
		price       NUMERIC(12, 2) NOT NULL,
		stock       INTEGER        NOT NULL,
		image       TEXT           NOT NULL
	) ON COMMIT DROP`

	mergeImportSQL = `INSERT INTO products (name, description, price, stock, image)
		SELECT name, description, price, stock, image FROM catalog_import
		ON CONFLICT (name) DO NOTHING`

	nameExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE name = $1)`
)

var importColumns = []string{"name", "description", "price", "stock", "image"}

// CatalogWriter bulk loads products with COPY. Names that already exist are
// left untouched.
type CatalogWriter struct {
	pool *pgxpool.Pool
}

// NewCatalogWriter returns a CatalogWriter.
func NewCatalogWriter(pool *pgxpool.Pool) *CatalogWriter {
	return &CatalogWriter{pool: pool}
}

// WriteBatch copies batch into a staging table and merges it into products
// in one transaction. It returns the number of products inserted.
func (w *CatalogWriter) WriteBatch(ctx context.Context, batch []product.Fields) (int64, error) {
	var inserted int64
	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createImportTableSQL); err != nil {
			return fmt.Errorf("creating staging table: %w", err)
		}

		rows := pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			f := batch[i]
			return []any{f.Name, f.Description, f.Price, f.Stock, f.Image}, nil
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"catalog_import"}, importColumns, rows); err != nil {
			return fmt.Errorf("copying %d rows: %w", len(batch), err)
		}

		tag, err := tx.Exec(ctx, mergeImportSQL)
		if err != nil {
			return fmt.Errorf("merging staged rows: %w", err)
		}
		inserted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, classifyError(err)
	}
	return inserted, nil
}

// NameExists reports whether a product named name is stored.
func (w *CatalogWriter) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := w.pool.QueryRow(ctx, nameExistsSQL, name).Scan(&exists); err != nil {
		return false, classifyError(fmt.Errorf("checking name: %w", err))
	}
	return exists, nil
}
