package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/contracts"
	"github.com/viralforge/porter-dispatch/internal/domain"
)

func toLocation(dto contracts.LocationDTO) domain.Location {
	return domain.Location{Address: dto.Address, Lat: dto.Lat, Lon: dto.Lon}
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateDeliveryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_delivery", err)
		return
	}
	d, err := h.service.CreateDelivery(r.Context(), actorFromRequest(r), application.CreateDeliveryInput{
		Pickup:        toLocation(req.Pickup),
		Dropoff:       toLocation(req.Dropoff),
		PackageType:   req.PackageType,
		WeightKg:      req.WeightKg,
		Amount:        req.Amount,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "create_delivery", err)
		return
	}
	writeSuccess(w, http.StatusCreated, d)
}

func (h *Handler) listMyDeliveries(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListCustomerDeliveries(r.Context(), actorFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_customer_deliveries", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDelivery(r.Context(), actorFromRequest(r), chi.URLParam(r, "delivery_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_delivery", err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

func (h *Handler) trackingLog(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.TrackingLog(r.Context(), actorFromRequest(r), chi.URLParam(r, "delivery_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "tracking_log", err)
		return
	}
	writeSuccess(w, http.StatusOK, points)
}

func (h *Handler) cancelDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.CancelDelivery(r.Context(), actorFromRequest(r), chi.URLParam(r, "delivery_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "cancel_delivery", err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

func (h *Handler) deleteDelivery(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDelivery(r.Context(), actorFromRequest(r), chi.URLParam(r, "delivery_id")); err != nil {
		writeMappedError(r.Context(), w, "delete_delivery", err)
		return
	}
	writeMessage(w, http.StatusOK, "Delivery deleted")
}

func (h *Handler) claimDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.ClaimDelivery(r.Context(), actorFromRequest(r), chi.URLParam(r, "delivery_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "claim_delivery", err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

func (h *Handler) advanceDelivery(w http.ResponseWriter, r *http.Request) {
	var req contracts.AdvanceDeliveryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "advance_delivery", err)
		return
	}
	d, err := h.service.AdvanceDelivery(r.Context(), actorFromRequest(r), application.AdvanceInput{
		DeliveryID:   chi.URLParam(r, "delivery_id"),
		TargetStatus: req.Status,
		Lat:          req.Lat,
		Lon:          req.Lon,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "advance_delivery", err)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListAvailableDeliveries(r.Context(), actorFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_available_deliveries", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListActiveDeliveries(r.Context(), actorFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_active_deliveries", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListDeliveryHistory(r.Context(), actorFromRequest(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_delivery_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}
