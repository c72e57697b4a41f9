package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

// Metrics holds the notifier collectors on a private registry
type Metrics struct {
	images        *prometheus.CounterVec
	detections    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	errors        *prometheus.CounterVec
	duration      prometheus.Histogram

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifier_images_processed_total",
			Help: "Processed snapshots by camera and validity",
		}, []string{"camera", "result"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifier_detections_total",
			Help: "Valid detections by camera and class",
		}, []string{"camera", "class"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifier_notifications_total",
			Help: "Published notifications by camera and scope (camera or zone)",
		}, []string{"camera", "scope"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifier_processing_errors_total",
			Help: "Processing failures by pipeline stage",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notifier_processing_seconds",
			Help:    "Time spent on one snapshot",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(m.images, m.detections, m.notifications, m.errors, m.duration)
	return m
}

// ObserveImage records the outcome of one snapshot
func (m *Metrics) ObserveImage(camera string, c models.Counters, took time.Duration) {
	m.images.WithLabelValues(camera, strconv.FormatBool(c.IsValid())).Inc()
	for class, n := range c.ByClass() {
		m.detections.WithLabelValues(camera, class).Add(float64(n))
	}
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) ObserveNotification(n models.Notification) {
	scope := "camera"
	if n.Zone != "" {
		scope = "zone"
	}
	m.notifications.WithLabelValues(n.Camera, scope).Inc()
}

func (m *Metrics) ObserveError(stage string) {
	m.errors.WithLabelValues(stage).Inc()
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
