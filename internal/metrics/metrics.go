package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the Prometheus collectors for the service. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	gatewayCalls    *prometheus.CounterVec
	checkins        *prometheus.CounterVec
	enrollments     *prometheus.CounterVec
	tasksCreated    prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_gateway_invocations_total",
			Help: "Recognition gateway invocations by backend, operation and outcome",
		}, []string{"backend", "op", "outcome"}),
		checkins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_checkins_total",
			Help: "Check-in attempts by outcome",
		}, []string{"outcome"}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_enrollments_total",
			Help: "Face enrollments by mode and outcome",
		}, []string{"mode", "outcome"}),
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceattend_tasks_created_total",
			Help: "Attendance tasks created",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceattend_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	registry.MustRegister(
		r.gatewayCalls, r.checkins, r.enrollments, r.tasksCreated, r.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler exposes the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) GatewayInvocation(backend, op, outcome string) {
	if r == nil {
		return
	}
	r.gatewayCalls.WithLabelValues(backend, op, outcome).Inc()
}

func (r *Recorder) CheckIn(outcome string) {
	if r == nil {
		return
	}
	r.checkins.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Enrollment(mode, outcome string) {
	if r == nil {
		return
	}
	r.enrollments.WithLabelValues(mode, outcome).Inc()
}

func (r *Recorder) TaskCreated() {
	if r == nil {
		return
	}
	r.tasksCreated.Inc()
}

// GinMiddleware observes request latency labelled by route template.
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if r == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.requestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
