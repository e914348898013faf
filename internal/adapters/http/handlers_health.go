package http

import (
	"context"
	"net/http"
	"time"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

// readyz runs every registered dependency check with a shared deadline.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		logRequestFailure(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependency check failed", nil)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"code":   "NOT_READY",
			"checks": failing,
		})
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) jwksDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.jwks())
}
