package notify

import (
	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

const (
	MetricDetections      = "detections"
	MetricFalseDetections = "false_detections"
	MetricZoneTotal       = "total"
	MetricZoneByClass     = "by_class"
)

// Sensors returns the state values of one image. Nothing is reported for
// cameras with entity_ha disabled. Zones with entity_ha report zeros when
// they hold no detection so the hub state is reset.
func Sensors(cam *config.Camera, c models.Counters) []models.Sensor {
	if !cam.EntityHA {
		return nil
	}

	detections := c.Detected()
	if len(cam.Zones) > 0 {
		detections = c.ZoneTotalSum()
	}

	out := []models.Sensor{
		{Metric: MetricDetections, Value: detections},
		{Metric: MetricFalseDetections, Value: c.False()},
	}
	for _, z := range cam.Zones {
		if !z.EntityHA {
			continue
		}
		zc, _ := c.Zone(z.Name)
		out = append(out,
			models.Sensor{Zone: z.Name, Metric: MetricZoneTotal, Value: zc.Total},
			models.Sensor{Zone: z.Name, Metric: MetricZoneByClass, Value: zc.ByClass},
		)
	}
	return out
}
