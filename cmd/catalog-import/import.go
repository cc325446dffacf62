package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sales-ledger/internal/domain/product"
)

const (
	defaultBatchSize = 5_000
	defaultExpected  = 1_000_000
	bloomFPR         = 0.001
	progressEvery    = 100_000
	maxLineBytes     = 1 << 20
)

// catalogStore stores batches of products and answers whether a name is
// already stored.
type catalogStore interface {
	WriteBatch(ctx context.Context, batch []product.Fields) (int64, error)
	nameLookup
}

type nameLookup interface {
	NameExists(ctx context.Context, name string) (bool, error)
}

type importStats struct {
	Read       int
	Invalid    int
	Duplicates int
	Inserted   int64
}

type importer struct {
	writer    catalogStore
	batchSize int
	dedup     *nameSet
}

// Run decodes every file concurrently and writes the distinct valid
// products in batches. Within a file the first occurrence of a name wins;
// across files the kept occurrence depends on read order.
func (imp *importer) Run(ctx context.Context, files []string) (importStats, error) {
	var stats importStats
	if imp.batchSize < 1 {
		imp.batchSize = defaultBatchSize
	}

	records := make(chan record, imp.batchSize)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for _, path := range files {
		readers.Go(func() error {
			return readFile(rctx, path, records)
		})
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})
	g.Go(func() error {
		batch := make([]product.Fields, 0, imp.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := imp.writer.WriteBatch(gctx, batch)
			if err != nil {
				return errors.Wrap(err, "write batch")
			}
			stats.Inserted += n
			batch = batch[:0]
			imp.dedup.Flushed()
			return nil
		}

		for rec := range records {
			stats.Read++
			if stats.Read%progressEvery == 0 {
				slog.Info("import progress", slog.Int("read", stats.Read), slog.Int64("inserted", stats.Inserted))
			}
			if rec.err != nil {
				stats.Invalid++
				slog.Warn("skipping invalid record",
					slog.String("file", rec.file),
					slog.Int("line", rec.line),
					slog.String("error", rec.err.Error()),
				)
				continue
			}
			added, err := imp.dedup.Add(gctx, rec.fields.Name)
			if err != nil {
				return err
			}
			if !added {
				stats.Duplicates++
				continue
			}
			batch = append(batch, rec.fields)
			if len(batch) == imp.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// record is one decoded line. err is set when the line is not a valid
// product.
type record struct {
	file   string
	line   int
	fields product.Fields
	err    error
}

// readFile streams a gzip-compressed JSON-lines file into out.
func readFile(ctx context.Context, path string, out chan<- record) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		rec := record{file: path, line: line}
		rec.fields, rec.err = decodeProduct(raw)

		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	slog.Info("file complete", slog.String("file", path), slog.Int("lines", line))
	return nil
}

// decodeProduct parses and validates one catalog line. Price may be a JSON
// number or string.
func decodeProduct(raw []byte) (product.Fields, error) {
	var f product.Fields
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			f.Name, err = d.Str()
		case "description":
			f.Description, err = d.Str()
		case "image":
			f.Image, err = d.Str()
		case "stock":
			f.Stock, err = d.Int()
		case "price":
			f.Price, err = decodePrice(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return product.Fields{}, errors.Wrap(err, "decode")
	}
	if field, reason, ok := f.Validate(); !ok {
		return product.Fields{}, errors.Errorf("invalid %s: %s", field, reason)
	}
	return f, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	num, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(num.String())
}

// nameSet tracks product names already seen in the feed. Only the bloom
// filter covers the whole feed. A negative means the name is new; a positive
// is confirmed against the names of the unflushed batch and then the store,
// which holds every flushed batch.
type nameSet struct {
	filter  *bloom.BloomFilter
	pending map[string]struct{}
	store   nameLookup
}

func newNameSet(expected uint, store nameLookup) *nameSet {
	if expected == 0 {
		expected = defaultExpected
	}
	return &nameSet{
		filter:  bloom.NewWithEstimates(expected, bloomFPR),
		pending: make(map[string]struct{}),
		store:   store,
	}
}

// Add records name and reports whether it was new.
func (s *nameSet) Add(ctx context.Context, name string) (bool, error) {
	if !s.filter.TestString(name) {
		s.filter.AddString(name)
		s.pending[name] = struct{}{}
		return true, nil
	}
	if _, ok := s.pending[name]; ok {
		return false, nil
	}
	found, err := s.store.NameExists(ctx, name)
	if err != nil {
		return false, errors.Wrapf(err, "confirm duplicate %q", name)
	}
	if found {
		return false, nil
	}
	s.pending[name] = struct{}{}
	return true, nil
}

// Flushed forgets the pending names once their batch is stored.
func (s *nameSet) Flushed() {
	clear(s.pending)
}
