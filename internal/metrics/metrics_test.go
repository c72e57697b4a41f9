package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveImage("front", models.NewCounters(3, 0, map[string]int{"person": 2, "car": 1}, nil), 120*time.Millisecond)
	m.ObserveImage("front", models.NewCounters(1, 1, nil, nil), 80*time.Millisecond)
	m.ObserveNotification(models.Notification{Camera: "front", Zone: "drive"})
	m.ObserveNotification(models.Notification{Camera: "garden"})
	m.ObserveError("inference")

	require.Equal(t, 1.0, testutil.ToFloat64(m.images.WithLabelValues("front", "true")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.images.WithLabelValues("front", "false")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.detections.WithLabelValues("front", "person")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("front", "zone")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("garden", "camera")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("inference")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveError("annotate")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `notifier_processing_errors_total{stage="annotate"} 1`)
}
