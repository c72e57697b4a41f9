package notify

import (
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/message"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

// Policy decides who gets a message for one image
type Policy struct {
	formatter *message.Formatter
	log       *zap.Logger
}

func NewPolicy(f *message.Formatter, log *zap.Logger) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{formatter: f, log: log.Named("policy")}
}

// Decide builds the notification decision for one image.
//
// Every zone holding a valid detection and having text_msg or audio_msg set
// gets its own message, built from that zone's valid detections only. The
// camera-wide message is sent only by cameras without zones; once zones are
// configured the camera channel stays silent even when no zone notified.
func (p *Policy) Decide(cam *config.Camera, c models.Counters, dets []models.ClassifiedDetection) models.Decision {
	var d models.Decision

	for i := range cam.Zones {
		z := &cam.Zones[i]
		byClass := zoneBreakdown(dets, z.Name)
		if len(byClass) == 0 || !z.Notifies() {
			continue
		}
		d.Zones = append(d.Zones, models.Notification{
			Camera:  cam.Name,
			Zone:    z.Name,
			Text:    p.formatter.ZoneMessage(cam.Name, z.Name, byClass, z.MsgTemplate),
			Audio:   z.AudioMsg,
			ByClass: byClass,
		})
	}

	if len(cam.Zones) == 0 && cam.TextMsg && c.Detected() > 0 {
		byClass := c.ByClass()
		d.Camera = &models.Notification{
			Camera:  cam.Name,
			Text:    p.formatter.CameraMessage(cam.Name, byClass, cam.MsgTemplate),
			Audio:   cam.AudioMsg,
			ByClass: byClass,
		}
	}

	p.log.Debug("notification_decision",
		zap.String("camera", cam.Name),
		zap.Int("zone_messages", len(d.Zones)),
		zap.Bool("camera_message", d.Camera != nil),
	)
	return d
}

// zoneBreakdown counts the valid detections of one zone by class
func zoneBreakdown(dets []models.ClassifiedDetection, zone string) map[string]int {
	out := map[string]int{}
	for _, det := range dets {
		if det.IsFalse || !det.InZone(zone) {
			continue
		}
		out[det.Class]++
	}
	return out
}

// ZonesWithDetections lists, in configuration order, the zones holding at
// least one valid detection
func ZonesWithDetections(cam *config.Camera, c models.Counters) []string {
	var out []string
	for _, z := range cam.Zones {
		if zc, ok := c.Zone(z.Name); ok && zc.Total > 0 {
			out = append(out, z.Name)
		}
	}
	return out
}
