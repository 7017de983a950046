package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	uploads         *prometheus.CounterVec
	analyses        *prometheus.CounterVec
	analysisSeconds *prometheus.HistogramVec
	modelCalls      *prometheus.CounterVec
	dedupHits       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaverify_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaverify_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaverify_uploads_total",
			Help: "Files handed to the media store, by outcome.",
		}, []string{"outcome"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaverify_analyses_total",
			Help: "Per-file analyses by media type and outcome.",
		}, []string{"media_type", "outcome"}),
		analysisSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaverify_analysis_duration_seconds",
			Help:    "Wall time of one file's detection pipeline.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"media_type"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaverify_model_calls_total",
			Help: "Aspect analyses sent to the AI provider, by aspect and outcome.",
		}, []string{"aspect", "outcome"}),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaverify_dedup_hits_total",
			Help: "Detection requests answered from the content-hash cache.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.uploads,
		m.analyses,
		m.analysisSeconds,
		m.modelCalls,
		m.dedupHits,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latency keyed by the chi route
// pattern, not the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) UploadStored()  { m.uploads.WithLabelValues("stored").Inc() }
func (m *Metrics) UploadSkipped() { m.uploads.WithLabelValues("skipped").Inc() }

func (m *Metrics) AnalysisFinished(mediaType string, ok bool, elapsed time.Duration) {
	outcome := "completed"
	if !ok {
		outcome = "failed"
	}
	m.analyses.WithLabelValues(mediaType, outcome).Inc()
	m.analysisSeconds.WithLabelValues(mediaType).Observe(elapsed.Seconds())
}

func (m *Metrics) ModelCall(aspect string, outcome string) {
	m.modelCalls.WithLabelValues(aspect, outcome).Inc()
}

func (m *Metrics) DedupHit() { m.dedupHits.Inc() }
