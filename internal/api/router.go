package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kdimtricp/mediaverify/internal/logging"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(app.logger()))
	if app.Metrics != nil {
		r.Use(app.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/healthz", app.HealthHandler)
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}

	if app.LocalFiles != nil {
		r.Get("/media/*", app.MediaHandler)
	}

	r.Post("/upload", app.UploadHandler)
	r.Post("/detect", app.DetectHandler)

	r.Get("/reports", app.ListReportsHandler)
	r.Get("/reports/{id}", app.GetReportHandler)
	r.Get("/dashboard/reports", app.DashboardReportsHandler)

	return r
}
