package dashboardhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/salesdash/salesdash/internal/platform/httpx"
)

// MountRoutes registers the dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.opts.ExportsPerMinute, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Route("/api", func(api chi.Router) {
		api.Get("/sales", h.handleSales)
		api.Get("/pending", h.handlePending)
		api.Get("/filters", h.handleFilters)
		api.Get("/dashboard/international", h.handleInternational)
		api.Get("/dashboard/line", h.handleLine)
		api.Get("/dashboard/drilldown", h.handleDrilldown)
		api.Get("/dashboard/stacked", h.handleStacked)
		api.Get("/goals/lines", h.handleLineGoals)
		api.Post("/goals/lines", h.handleSaveLineGoals)
		api.Get("/goals/sellers", h.handleSellerGoals)
		api.Post("/goals/sellers", h.handleSaveSellerGoals)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/export/sales.xlsx", h.handleSalesXLSX)
		gr.Get("/export/sales.csv", h.handleSalesCSV)
		gr.Get("/export/pending.xlsx", h.handlePendingXLSX)
		gr.Get("/export/dashboard/details.xlsx", h.handleDetailsXLSX)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
