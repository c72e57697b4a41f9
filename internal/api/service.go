package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

const recentEventsLimit = 50

// EventLister reads the event history
type EventLister interface {
	RecentEvents(ctx context.Context, camera string, limit int) ([]models.Event, error)
}

type Handlers struct {
	cfg     *config.Config
	events  EventLister
	metrics http.Handler
	log     *zap.Logger
}

// NewHandlers wires the status API. events may be nil when no database is configured.
func NewHandlers(cfg *config.Config, events EventLister, metrics http.Handler, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{cfg: cfg, events: events, metrics: metrics, log: log.Named("api")}
}

// Router регистрирует обработчики
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/cameras", h.CamerasHandler).Methods(http.MethodGet)
	r.HandleFunc("/events/{camera}", h.EventsHandler).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}
	return r
}
