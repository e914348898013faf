package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/contracts"
)

func (h *Handler) openOrder(w http.ResponseWriter, r *http.Request) {
	var req contracts.OpenOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "open_order", err)
		return
	}
	handle, err := h.service.OpenOrder(r.Context(), actorFromRequest(r), req.DeliveryID, req.Amount)
	if err != nil {
		writeMappedError(r.Context(), w, "open_order", err)
		return
	}
	writeSuccess(w, http.StatusCreated, handle)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req contracts.ConfirmPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "confirm_payment", err)
		return
	}
	res, err := h.service.ConfirmPayment(r.Context(), application.ConfirmInput{
		ExternalOrderID:   req.ExternalOrderID,
		ExternalPaymentID: req.ExternalPaymentID,
		Signature:         req.Signature,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "confirm_payment", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListPayments(r.Context(), actorFromRequest(r), chi.URLParam(r, "delivery_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "list_payments", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}
