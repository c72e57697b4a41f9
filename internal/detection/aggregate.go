package detection

import (
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

// Aggregate counts the classified detections of one image.
//
// Every detection counts toward the total, below-threshold ones also toward
// false. Only valid detections reach the per-class and per-zone counts. Then
// the image is collapsed to a single yes/no signal:
//   - at least one valid detection: false = 0
//   - only below-threshold detections: total = 1, false = 1
//   - nothing at all: total = 0, false = 0
func Aggregate(dets []models.ClassifiedDetection) models.Counters {
	total, falseCount := 0, 0
	byClass := map[string]int{}
	byZone := map[string]models.ZoneCounters{}

	for _, d := range dets {
		total++
		if d.IsFalse {
			falseCount++
			continue
		}
		byClass[d.Class]++
		for _, name := range d.Zones {
			zc, ok := byZone[name]
			if !ok {
				zc = models.ZoneCounters{ByClass: map[string]int{}}
			}
			zc.Total++
			zc.ByClass[d.Class]++
			byZone[name] = zc
		}
	}

	valid := total - falseCount
	switch {
	case valid > 0:
		falseCount = 0
	case total > 0:
		total, falseCount = 1, 1
	}

	return models.NewCounters(total, falseCount, byClass, byZone)
}
