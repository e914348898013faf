package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viralforge/porter-dispatch/internal/application"
)

// ReadinessCheck reports whether a backing dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	service *application.Service
	checks  map[string]ReadinessCheck
	jwks    func() map[string]any
}

type HandlerOption func(*Handler)

func WithReadinessCheck(name string, check ReadinessCheck) HandlerOption {
	return func(h *Handler) { h.checks[name] = check }
}

// WithJWKS publishes the session verification key at /.well-known/jwks.json.
func WithJWKS(fn func() map[string]any) HandlerOption {
	return func(h *Handler) { h.jwks = fn }
}

func NewHandler(service *application.Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, checks: map[string]ReadinessCheck{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func NewRouter(handler *Handler, exposeMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if exposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if handler.jwks != nil {
		r.Get("/.well-known/jwks.json", handler.jwksDocument)
	}

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/verify-otp", handler.verifyOTP)
		r.Post("/password/forgot", handler.forgotPassword)
		r.Post("/password/reset", handler.resetPassword)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", handler.createDelivery)
			r.Get("/", handler.listMyDeliveries)
			r.Route("/{delivery_id}", func(r chi.Router) {
				r.Get("/", handler.getDelivery)
				r.Delete("/", handler.deleteDelivery)
				r.Get("/tracking", handler.trackingLog)
				r.Get("/payments", handler.listPayments)
				r.Post("/cancel", handler.cancelDelivery)
				r.Post("/claim", handler.claimDelivery)
				r.Post("/status", handler.advanceDelivery)
			})
		})

		r.Route("/porter/deliveries", func(r chi.Router) {
			r.Get("/available", handler.listAvailable)
			r.Get("/active", handler.listActive)
			r.Get("/history", handler.listHistory)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/orders", handler.openOrder)
			r.Post("/confirm", handler.confirmPayment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/deliveries", handler.adminListDeliveries)
			r.Post("/principals/{principal_id}/block", handler.blockPrincipal)
			r.Post("/principals/{principal_id}/unblock", handler.unblockPrincipal)
			r.Post("/principals/{principal_id}/approve", handler.approvePorter)
		})
	})

	return r
}
