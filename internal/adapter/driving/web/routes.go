package web

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all web GUI routes on r.
// Pages live under /app/*; every state-changing form there is CSRF-checked.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(r chi.Router, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/app/marketplace", http.StatusFound)
	})

	r.Route("/app", func(r chi.Router) {
		r.Use(requireCSRF)

		r.Get("/marketplace", h.Marketplace)
		r.Get("/portfolio", h.Portfolio)
		r.Get("/producer", h.Producer)
		r.Get("/audit", h.Audit)
		r.Get("/analysis", h.AnalysisPage)

		r.Post("/viewer", h.ConnectViewer)
		r.Post("/viewer/disconnect", h.DisconnectViewer)
		r.Post("/refresh", h.Refresh)

		r.Post("/credits/{id}/buy", h.Buy)
		r.Post("/credits/{id}/retire", h.Retire)
		r.Post("/credits/{id}/ack", h.Acknowledge)
		r.Post("/credits/{id}/price", h.SetPrice)
		r.Post("/credits/{id}/unlist", h.Unlist)

		r.Post("/issue", h.Issue)
		r.Post("/analysis", h.Analyze)
	})
}
