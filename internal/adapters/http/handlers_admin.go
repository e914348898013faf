package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

func (h *Handler) adminListDeliveries(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListAllDeliveries(r.Context(), actorFromRequest(r), r.URL.Query().Get("status"))
	if err != nil {
		writeMappedError(r.Context(), w, "admin_list_deliveries", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}

type principalAction func(ctx context.Context, actor application.Actor, principalID string) (domain.Principal, error)

func (h *Handler) principalUpdate(operation string, action principalAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := action(r.Context(), actorFromRequest(r), chi.URLParam(r, "principal_id"))
		if err != nil {
			writeMappedError(r.Context(), w, operation, err)
			return
		}
		writeSuccess(w, http.StatusOK, p)
	}
}

func (h *Handler) blockPrincipal(w http.ResponseWriter, r *http.Request) {
	h.principalUpdate("block_principal", h.service.BlockPrincipal)(w, r)
}

func (h *Handler) unblockPrincipal(w http.ResponseWriter, r *http.Request) {
	h.principalUpdate("unblock_principal", h.service.UnblockPrincipal)(w, r)
}

func (h *Handler) approvePorter(w http.ResponseWriter, r *http.Request) {
	h.principalUpdate("approve_porter", h.service.ApprovePorter)(w, r)
}
