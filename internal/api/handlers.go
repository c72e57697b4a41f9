package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
)

type cameraInfo struct {
	Name    string   `json:"name"`
	Detect  []string `json:"detect"`
	Zones   []string `json:"zones"`
	Default bool     `json:"default"`
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CamerasHandler lists the configured cameras and their zones
func (h *Handlers) CamerasHandler(w http.ResponseWriter, r *http.Request) {
	cameras := lo.Map(h.cfg.Cameras, func(c config.Camera, _ int) cameraInfo {
		return cameraInfo{
			Name:   c.Name,
			Detect: c.Detect,
			Zones: lo.Map(c.Zones, func(z config.Zone, _ int) string {
				return z.Name
			}),
			Default: c.Name == h.cfg.DefaultCamera,
		}
	})
	writeJSON(w, http.StatusOK, cameras)
}

// EventsHandler обработчик для получения последних событий камеры
func (h *Handlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, "Event history disabled", http.StatusServiceUnavailable)
		return
	}

	camera := mux.Vars(r)["camera"]
	if _, ok := h.cfg.Camera(camera); !ok {
		http.Error(w, "Camera not found", http.StatusNotFound)
		return
	}

	events, err := h.events.RecentEvents(r.Context(), camera, recentEventsLimit)
	if err != nil {
		h.log.Error("events_query_failed", zap.String("camera", camera), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
