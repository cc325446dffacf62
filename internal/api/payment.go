package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.List(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list payments"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range payments {
			encodePayment(e, p)
		}
		e.ArrEnd()
	})
}

// createPayment settles an order and returns the payment id with the
// computed total.
func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	req, err := decodePaymentRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.ledger.RecordPayment(r.Context(), req)
	if err != nil {
		fail(w, r, errors.Wrap(err, "record payment"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(p.ID)
		e.FieldStart("total")
		encodeDecimal(e, p.Total)
		e.ObjEnd()
	})
}
