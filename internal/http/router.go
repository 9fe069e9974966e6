package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	CookieSecure       bool
}

// NewRouter mounts the checkout API and the health check.
func NewRouter(h *CheckoutHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.CookieSecure))
		r.Use(MaxBodyMiddleware(cfg.MaxRequestBodySize))

		r.Post("/mount", h.Mount)
		r.Delete("/mount", h.Unmount)
		r.Get("/state", h.State)
		r.Post("/refresh", h.Refresh)

		r.Route("/fields/{kind}/{field}", func(r chi.Router) {
			r.Put("/", h.EditField)
			r.Post("/blur", h.BlurField)
			r.Post("/invalid", h.ReportInvalid)
		})

		r.Put("/payment-method", h.SelectMethod)
		r.Post("/submit", h.Submit)

		r.Route("/express", func(r chi.Router) {
			r.Get("/", h.ExpressConfig)
			r.Post("/click", h.ExpressClick)
			r.Post("/confirm", h.CompleteExpress)
			r.Post("/error", h.ExpressFailed)
		})
	})

	return otelhttp.NewHandler(r, "checkout")
}
