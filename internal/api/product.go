package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// listProducts returns every product in the catalog.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, errors.Wrap(err, "get product"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	f, err := decodeProductFields(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	id, err := h.ledger.CreateProduct(r.Context(), f)
	if err != nil {
		fail(w, r, errors.Wrap(err, "create product"))
		return
	}
	writeID(w, id)
}

// updateProduct replaces the catalog fields of a product, stock included.
func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f, err := decodeProductFields(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.ledger.UpdateProduct(r.Context(), id, f); err != nil {
		fail(w, r, errors.Wrap(err, "update product"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.ledger.DeleteProduct(r.Context(), id); err != nil {
		fail(w, r, errors.Wrap(err, "delete product"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// restockProduct adds the posted quantity to a product's stock and returns
// the new level.
func (h *Handler) restockProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	qty, err := decodeRestock(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	stock, err := h.ledger.Restock(r.Context(), id, qty)
	if err != nil {
		fail(w, r, errors.Wrap(err, "restock product"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(id)
		e.FieldStart("stock")
		e.Int(stock)
		e.ObjEnd()
	})
}
