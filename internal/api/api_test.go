package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/metrics"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

type fakeEvents struct {
	events []models.Event
	err    error
	limit  int
}

func (f *fakeEvents) RecentEvents(_ context.Context, camera string, limit int) ([]models.Event, error) {
	f.limit = limit
	return f.events, f.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cameras = []config.Camera{
		{Name: "front", Detect: []string{"person"}, Zones: []config.Zone{{Name: "drive"}, {Name: "yard"}}},
		{Name: "generique", Detect: []string{"person", "car"}},
	}
	return cfg
}

func serve(h *Handlers, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(NewHandlers(testConfig(), nil, nil, nil), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCameras(t *testing.T) {
	rec := serve(NewHandlers(testConfig(), nil, nil, nil), http.MethodGet, "/cameras")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[
		{"name":"front","detect":["person"],"zones":["drive","yard"],"default":false},
		{"name":"generique","detect":["person","car"],"zones":[],"default":true}
	]`, rec.Body.String())
}

func TestEvents(t *testing.T) {
	events := &fakeEvents{events: []models.Event{{
		ID:          "e1",
		Camera:      "front",
		Filename:    "front_1.jpg",
		ProcessedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Counters:    models.NewCounters(1, 0, map[string]int{"person": 1}, nil),
	}}}
	h := NewHandlers(testConfig(), events, nil, nil)

	rec := serve(h, http.MethodGet, "/events/front")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, recentEventsLimit, events.limit)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "front_1.jpg", got[0]["filename"])

	require.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/events/unknown").Code)
	require.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPost, "/events/front").Code)

	events.err = errors.New("db down")
	require.Equal(t, http.StatusInternalServerError, serve(h, http.MethodGet, "/events/front").Code)

	require.Equal(t, http.StatusServiceUnavailable, serve(NewHandlers(testConfig(), nil, nil, nil), http.MethodGet, "/events/front").Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.ObserveError("decode")
	rec := serve(NewHandlers(testConfig(), nil, m.Handler(), nil), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "notifier_processing_errors_total")

	require.Equal(t, http.StatusNotFound, serve(NewHandlers(testConfig(), nil, nil, nil), http.MethodGet, "/metrics").Code)
}
