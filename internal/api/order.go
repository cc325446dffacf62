package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, o := range orders {
			encodeOrder(e, o)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, errors.Wrap(err, "get order"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, *o) })
}

// createOrder reserves stock for a new order and returns its id.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrderRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.ledger.CreateOrder(r.Context(), req)
	if err != nil {
		fail(w, r, errors.Wrap(err, "create order"))
		return
	}
	writeID(w, o.ID)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeOrderRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.ledger.UpdateOrder(r.Context(), id, req); err != nil {
		fail(w, r, errors.Wrap(err, "update order"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.ledger.DeleteOrder(r.Context(), id); err != nil {
		fail(w, r, errors.Wrap(err, "delete order"))
		return
	}
	w.WriteHeader(http.StatusOK)
}
