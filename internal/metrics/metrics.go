// Package metrics exports ranking and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/ruiji/internal/similarity"
)

const namespace = "ruiji"

// Recorder owns a private registry so tests and multiple servers do not collide on the
// global one.
type Recorder struct {
	registry *prometheus.Registry

	rankings       *prometheus.CounterVec
	candidates     prometheus.Histogram
	skipped        *prometheus.CounterVec
	truncated      prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	embeddings     *prometheus.CounterVec
	imagesIngested *prometheus.CounterVec
}

// NewRecorder registers all collectors on a new registry. Process and Go runtime collectors
// are included.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.rankings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "similarity",
		Name:      "rankings_total",
		Help:      "Similarity rankings by outcome code.",
	}, []string{"outcome"})

	r.candidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "similarity",
		Name:      "candidates",
		Help:      "Candidates fetched per ranking after the batch cap.",
		Buckets:   []float64{1, 5, 10, 25, 50, 75, 100},
	})

	r.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "similarity",
		Name:      "skipped_candidates_total",
		Help:      "Candidates dropped from rankings, by reason.",
	}, []string{"reason"})

	r.truncated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "similarity",
		Name:      "truncated_pools_total",
		Help:      "Rankings whose candidate pool exceeded the batch cap.",
	})

	r.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	r.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route"})

	r.embeddings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "lookups_total",
		Help:      "Embedding lookups by source (cache or generated).",
	}, []string{"source"})

	r.imagesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "images",
		Name:      "created_total",
		Help:      "Images created, by origin.",
	}, []string{"origin"})

	r.registry.MustRegister(
		r.rankings, r.candidates, r.skipped, r.truncated,
		r.httpRequests, r.httpDuration,
		r.embeddings, r.imagesIngested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRanking implements similarity.Observer.
func (r *Recorder) ObserveRanking(s similarity.Stats) {
	r.rankings.WithLabelValues("ok").Inc()
	r.candidates.Observe(float64(s.Capped))
	if s.Missing > 0 {
		r.skipped.WithLabelValues("missing").Add(float64(s.Missing))
	}
	if s.Degenerate > 0 {
		r.skipped.WithLabelValues("degenerate").Add(float64(s.Degenerate))
	}
	if s.Candidates > s.Capped {
		r.truncated.Inc()
	}
}

// ObserveRankingError counts a failed ranking under its error code.
func (r *Recorder) ObserveRankingError(err error) {
	r.rankings.WithLabelValues(similarity.ErrorCode(err)).Inc()
}

// ObserveEmbedding counts an embedding lookup by source.
func (r *Recorder) ObserveEmbedding(source string) {
	r.embeddings.WithLabelValues(source).Inc()
}

// ObserveImage counts a created image by origin ("generated", "uploaded", "inbox").
func (r *Recorder) ObserveImage(origin string) {
	r.imagesIngested.WithLabelValues(origin).Inc()
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
