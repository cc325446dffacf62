package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sales-ledger/internal/domain/product"
)

type memWriter struct {
	mu      sync.Mutex
	batches [][]product.Fields
	err     error
	lookups []string
}

func (w *memWriter) NameExists(_ context.Context, name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lookups = append(w.lookups, name)
	for _, b := range w.batches {
		for _, f := range b {
			if f.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

func (w *memWriter) WriteBatch(_ context.Context, batch []product.Fields) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.batches = append(w.batches, append([]product.Fields(nil), batch...))
	return int64(len(batch)), nil
}

func (w *memWriter) names() []string {
	var out []string
	for _, b := range w.batches {
		for _, f := range b {
			out = append(out, f.Name)
		}
	}
	return out
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestDecodeProduct(t *testing.T) {
	for _, tt := range []struct {
		name    string
		line    string
		want    product.Fields
		wantErr bool
	}{
		{
			name: "NumberPrice",
			line: `{"name":"Pen","price":1.5,"stock":10,"extra":{"a":1}}`,
			want: product.Fields{Name: "Pen", Price: decimal.RequireFromString("1.5"), Stock: 10},
		},
		{
			name: "StringPrice",
			line: `{"name":" Ruler ","description":"30cm","price":"2.10","stock":0,"image":"r.png"}`,
			want: product.Fields{Name: "Ruler", Description: "30cm", Price: decimal.RequireFromString("2.10"), Image: "r.png"},
		},
		{name: "Malformed", line: `{"name":`, wantErr: true},
		{name: "MissingName", line: `{"price":1,"stock":1}`, wantErr: true},
		{name: "NegativeStock", line: `{"name":"x","price":1,"stock":-2}`, wantErr: true},
		{name: "StockOutOfRange", line: `{"name":"x","price":1,"stock":3000000000}`, wantErr: true},
		{name: "BadPrice", line: `{"name":"x","price":"one"}`, wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeProduct([]byte(tt.line))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Description, got.Description)
			assert.Equal(t, tt.want.Stock, got.Stock)
			assert.Equal(t, tt.want.Image, got.Image)
			assert.True(t, tt.want.Price.Equal(got.Price), "price %s", got.Price)
		})
	}
}

func addName(t *testing.T, s *nameSet, name string) bool {
	t.Helper()
	added, err := s.Add(context.Background(), name)
	require.NoError(t, err)
	return added
}

func TestNameSet(t *testing.T) {
	w := &memWriter{}
	s := newNameSet(100, w)
	assert.True(t, addName(t, s, "Pen"))
	assert.True(t, addName(t, s, "Ruler"))
	assert.False(t, addName(t, s, "Pen"))
	assert.True(t, addName(t, s, "pen"))
	assert.False(t, addName(t, s, "Ruler"))

	// Pending names answer repeats without asking the store.
	assert.Empty(t, w.lookups)
}

func TestNameSet_ConfirmsFilterPositives(t *testing.T) {
	w := &memWriter{}
	s := newNameSet(100, w)
	// A one-bit filter reports every name as possibly present once any name
	// has been added.
	s.filter = bloom.New(1, 1)

	assert.True(t, addName(t, s, "Pen"))
	assert.True(t, addName(t, s, "Ruler"), "positive must be confirmed, not assumed")
	assert.Equal(t, []string{"Ruler"}, w.lookups)
	assert.False(t, addName(t, s, "Ruler"))

	_, err := w.WriteBatch(context.Background(), []product.Fields{{Name: "Pen"}, {Name: "Ruler"}})
	require.NoError(t, err)
	s.Flushed()
	assert.Empty(t, s.pending)

	assert.False(t, addName(t, s, "Pen"))
	assert.True(t, addName(t, s, "Eraser"))
	assert.Equal(t, []string{"Ruler", "Pen", "Eraser"}, w.lookups)
}

type failingLookup struct{ err error }

func (f failingLookup) NameExists(context.Context, string) (bool, error) { return false, f.err }

func TestNameSet_LookupError(t *testing.T) {
	boom := errors.New("db down")
	s := newNameSet(100, failingLookup{err: boom})
	s.filter = bloom.New(1, 1)

	assert.True(t, addName(t, s, "Pen"))
	_, err := s.Add(context.Background(), "Ruler")
	require.ErrorIs(t, err, boom)
}

func TestImporter_Run(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.jsonl.gz",
			`{"name":"Pen","price":"1.50","stock":10}`,
			`{"name":"Ruler","price":2,"stock":5}`,
			``,
			`not json`,
		),
		writeGz(t, dir, "b.jsonl.gz",
			`{"name":"Eraser","price":0.8,"stock":30}`,
			`{"name":"Pen","price":"1.75","stock":1}`,
			`{"name":"Stapler","price":"12.30","stock":-1}`,
		),
	}

	w := &memWriter{}
	imp := &importer{writer: w, batchSize: 2, dedup: newNameSet(100, w)}
	stats, err := imp.Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Read)
	assert.Equal(t, 2, stats.Invalid)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, int64(3), stats.Inserted)
	assert.ElementsMatch(t, []string{"Pen", "Ruler", "Eraser"}, w.names())
	for _, b := range w.batches {
		assert.LessOrEqual(t, len(b), 2)
	}
}

func TestImporter_WriteError(t *testing.T) {
	dir := t.TempDir()
	path := writeGz(t, dir, "a.jsonl.gz", `{"name":"Pen","price":1,"stock":1}`)

	boom := errors.New("copy failed")
	w := &memWriter{err: boom}
	imp := &importer{writer: w, batchSize: 10, dedup: newNameSet(10, w)}
	_, err := imp.Run(context.Background(), []string{path})
	require.ErrorIs(t, err, boom)
}

func TestImporter_MissingFile(t *testing.T) {
	w := &memWriter{}
	imp := &importer{writer: w, dedup: newNameSet(10, w)}
	_, err := imp.Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.jsonl.gz")})
	require.Error(t, err)
}
