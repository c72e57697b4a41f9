package detection

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
	"github.com/Capitan-Parrot/zone-notifier/internal/zones"
)

// Classifier turns raw inference output into classified detections for one camera
type Classifier struct {
	threshold float64
	log       *zap.Logger
}

func NewClassifier(threshold float64, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{threshold: threshold, log: log.Named("classifier")}
}

func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify drops detections whose class is not in the camera's allow-list,
// flags the ones below the confidence threshold, and resolves the zones that
// contain each box center. Output order follows input order. ix may be nil
// for cameras without zones.
func (c *Classifier) Classify(raw []models.RawDetection, cam *config.Camera, ix *zones.Index) []models.ClassifiedDetection {
	out := make([]models.ClassifiedDetection, 0, len(raw))
	for _, r := range raw {
		if !lo.Contains(cam.Detect, r.Class) {
			continue
		}

		d := models.ClassifiedDetection{
			Class:      r.Class,
			Confidence: r.Confidence,
			Box:        r.Box,
			IsFalse:    r.Confidence < c.threshold,
			Zones:      []string{},
		}
		if ix != nil && len(cam.Zones) > 0 {
			x, y := r.Box.Center()
			d.Zones = append(d.Zones, ix.ZonesAt(x, y)...)
		}
		out = append(out, d)
	}

	c.log.Debug("detections_classified",
		zap.String("camera", cam.Name),
		zap.Int("raw", len(raw)),
		zap.Int("kept", len(out)),
	)
	return out
}
