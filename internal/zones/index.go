package zones

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/bmharper/flatbush-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

var (
	ErrZoneNotFound      = errors.New("zone not found")
	ErrInvalidDimensions = errors.New("invalid image dimensions")
)

// Index holds the pixel-space polygons of a camera's zones for one image size.
// It is built per image, because the pixel mapping depends on the resolution.
//
// Containment follows the strict-interior rule: a point lying exactly on an
// edge or a vertex is outside the zone.
type Index struct {
	log    *zap.Logger
	width  int
	height int
	zones  []config.Zone
	byName map[string]int
	rings  []orb.Ring
	fb     *flatbush.Flatbush[int32]
}

// NewIndex maps every zone polygon to pixels (x*width, y*height). The zones
// must already have passed config.ValidateZone.
func NewIndex(zones []config.Zone, width, height int, log *zap.Logger) (*Index, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if log == nil {
		log = zap.NewNop()
	}

	ix := &Index{
		log:    log.Named("zones"),
		width:  width,
		height: height,
		zones:  zones,
		byName: make(map[string]int, len(zones)),
		rings:  make([]orb.Ring, len(zones)),
	}

	for i, z := range zones {
		ix.byName[z.Name] = i
		ix.rings[i] = toPixels(z.Polygon, width, height)
		ix.log.Debug("zone_created",
			zap.String("zone_name", z.Name),
			zap.Int("points", len(ix.rings[i])-1),
			zap.Any("bounds", ix.rings[i].Bound()),
		)
	}

	if len(zones) > 0 {
		// Spatial index over the zone bounds, so a point is only tested against
		// the polygons that can contain it
		ix.fb = flatbush.NewFlatbush[int32]()
		ix.fb.Reserve(len(zones))
		for _, r := range ix.rings {
			b := r.Bound()
			ix.fb.Add(
				int32(math.Floor(b.Min[0])), int32(math.Floor(b.Min[1])),
				int32(math.Ceil(b.Max[0])), int32(math.Ceil(b.Max[1])),
			)
		}
		ix.fb.Finish()
	}

	return ix, nil
}

// toPixels converts x1,y1,x2,y2,... normalized coordinates into a closed ring
func toPixels(coords []float64, width, height int) orb.Ring {
	ring := make(orb.Ring, 0, len(coords)/2+1)
	for i := 0; i+1 < len(coords); i += 2 {
		ring = append(ring, orb.Point{coords[i] * float64(width), coords[i+1] * float64(height)})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

func (ix *Index) Width() int  { return ix.width }
func (ix *Index) Height() int { return ix.height }

// Names returns the zone names in configuration order
func (ix *Index) Names() []string {
	names := make([]string, len(ix.zones))
	for i, z := range ix.zones {
		names[i] = z.Name
	}
	return names
}

// Contains reports whether the pixel point (x, y) lies inside the named zone.
// An unknown zone is a configuration mismatch: it is logged and answers false.
func (ix *Index) Contains(x, y float64, zoneName string) bool {
	i, ok := ix.byName[zoneName]
	if !ok {
		ix.log.Warn("zone_not_found", zap.String("zone_name", zoneName))
		return false
	}
	return ix.contains(i, orb.Point{x, y})
}

// BBoxCenterContains applies Contains to the center of the box
func (ix *Index) BBoxCenterContains(b models.BBox, zoneName string) bool {
	x, y := b.Center()
	return ix.Contains(x, y, zoneName)
}

// ZonesAt returns, in configuration order, every zone containing the point
func (ix *Index) ZonesAt(x, y float64) []string {
	if ix.fb == nil {
		return nil
	}
	candidates := ix.fb.Search(
		int32(math.Floor(x)), int32(math.Floor(y)),
		int32(math.Ceil(x)), int32(math.Ceil(y)),
	)
	slices.Sort(candidates)

	var names []string
	p := orb.Point{x, y}
	for _, i := range candidates {
		if ix.contains(i, p) {
			names = append(names, ix.zones[i].Name)
		}
	}
	return names
}

func (ix *Index) contains(i int, p orb.Point) bool {
	ring := ix.rings[i]
	if !planar.RingContains(ring, p) {
		return false
	}
	// RingContains counts the boundary as inside
	for j := 0; j+1 < len(ring); j++ {
		if planar.DistanceFromSegmentSquared(ring[j], ring[j+1], p) == 0 {
			return false
		}
	}
	return true
}

// Filter keeps the detections whose box center lies in the named zone
func (ix *Index) Filter(dets []models.ClassifiedDetection, zoneName string) []models.ClassifiedDetection {
	if _, ok := ix.byName[zoneName]; !ok {
		ix.log.Warn("zone_not_found_for_filter", zap.String("zone_name", zoneName))
		return nil
	}
	var out []models.ClassifiedDetection
	for _, d := range dets {
		if ix.BBoxCenterContains(d.Box, zoneName) {
			out = append(out, d)
		}
	}
	ix.log.Debug("detections_filtered",
		zap.String("zone_name", zoneName),
		zap.Int("total", len(dets)),
		zap.Int("filtered", len(out)),
	)
	return out
}

// Zone returns the definition of the named zone. Unlike the containment
// queries, a miss here is an error: it means the caller asked for a zone the
// camera does not own.
func (ix *Index) Zone(zoneName string) (config.Zone, error) {
	i, ok := ix.byName[zoneName]
	if !ok {
		return config.Zone{}, fmt.Errorf("%w: %q", ErrZoneNotFound, zoneName)
	}
	return ix.zones[i], nil
}

// PixelPolygon returns the closed pixel ring of the zone, rounded down to
// whole pixels, for drawing. Unknown zones give nil.
func (ix *Index) PixelPolygon(zoneName string) []orb.Point {
	i, ok := ix.byName[zoneName]
	if !ok {
		return nil
	}
	out := make([]orb.Point, len(ix.rings[i]))
	for j, p := range ix.rings[i] {
		out[j] = orb.Point{math.Trunc(p[0]), math.Trunc(p[1])}
	}
	return out
}
