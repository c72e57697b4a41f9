package models

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/goccy/go-json"
)

// BBox is an axis-aligned bounding box in pixel space (x1 <= x2, y1 <= y2)
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Center returns the centroid of the box
func (b BBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// MarshalJSON encodes the box as [x1, y1, x2, y2], the inference wire format
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox must have 4 coordinates, got %d", len(v))
	}
	*b = BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	return nil
}

// RawDetection представляет структуру одного обнаруженного объекта
type RawDetection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"score"`
	Box        BBox    `json:"box"`
}

// ClassifiedDetection is a RawDetection that passed the class allow-list
type ClassifiedDetection struct {
	Class      string   `json:"class"`
	Confidence float64  `json:"confidence"`
	Box        BBox     `json:"bbox"`
	IsFalse    bool     `json:"is_false"`
	Zones      []string `json:"zones"`
}

// InZone reports whether the detection's box center lies in the named zone
func (d ClassifiedDetection) InZone(zone string) bool {
	return slices.Contains(d.Zones, zone)
}

// ZoneCounters aggregates the valid detections of one zone
type ZoneCounters struct {
	Total   int            `json:"total"`
	ByClass map[string]int `json:"by_class"`
}

// Counters is the aggregate over a single image. It is built once by the
// aggregator and never modified afterwards; accessors return copies.
type Counters struct {
	total      int
	falseCount int
	byClass    map[string]int
	byZone     map[string]ZoneCounters
}

// NewCounters takes a snapshot of the given values
func NewCounters(total, falseCount int, byClass map[string]int, byZone map[string]ZoneCounters) Counters {
	c := Counters{
		total:      total,
		falseCount: falseCount,
		byClass:    maps.Clone(byClass),
		byZone:     make(map[string]ZoneCounters, len(byZone)),
	}
	if c.byClass == nil {
		c.byClass = map[string]int{}
	}
	for name, zc := range byZone {
		c.byZone[name] = ZoneCounters{Total: zc.Total, ByClass: maps.Clone(zc.ByClass)}
	}
	return c
}

func (c Counters) Total() int { return c.total }
func (c Counters) False() int { return c.falseCount }

// Valid is total minus false after collapsing. It is positive exactly when
// the image holds a valid detection, but it also counts the below-threshold
// candidates seen next to one; use Detected for the number of valid objects.
func (c Counters) Valid() int { return c.total - c.falseCount }

// Detected is the number of valid detections
func (c Counters) Detected() int {
	n := 0
	for _, v := range c.byClass {
		n += v
	}
	return n
}

// IsValid reports whether the image holds at least one valid detection
func (c Counters) IsValid() bool { return c.Valid() > 0 }

func (c Counters) ByClass() map[string]int {
	out := maps.Clone(c.byClass)
	if out == nil {
		out = map[string]int{}
	}
	return out
}

// Zone returns the counters of one zone; zones without valid detections are absent
func (c Counters) Zone(name string) (ZoneCounters, bool) {
	zc, ok := c.byZone[name]
	if !ok {
		return ZoneCounters{ByClass: map[string]int{}}, false
	}
	return ZoneCounters{Total: zc.Total, ByClass: maps.Clone(zc.ByClass)}, true
}

// ZoneNames returns the zones holding valid detections, sorted
func (c Counters) ZoneNames() []string {
	return slices.Sorted(maps.Keys(c.byZone))
}

// ZoneTotalSum adds up the totals of every zone. Overlapping zones count a
// detection once per zone.
func (c Counters) ZoneTotalSum() int {
	sum := 0
	for _, zc := range c.byZone {
		sum += zc.Total
	}
	return sum
}

type countersJSON struct {
	Total   int                     `json:"total"`
	False   int                     `json:"false"`
	ByClass map[string]int          `json:"by_class"`
	ByZone  map[string]ZoneCounters `json:"by_zone"`
}

func (c Counters) MarshalJSON() ([]byte, error) {
	return json.Marshal(countersJSON{
		Total:   c.total,
		False:   c.falseCount,
		ByClass: c.ByClass(),
		ByZone:  c.byZone,
	})
}

func (c *Counters) UnmarshalJSON(data []byte) error {
	var v countersJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = NewCounters(v.Total, v.False, v.ByClass, v.ByZone)
	return nil
}

// Notification is one message for the home-automation bus. Zone is empty for
// camera-wide messages.
type Notification struct {
	Camera  string         `json:"camera"`
	Zone    string         `json:"zone,omitempty"`
	Text    string         `json:"message"`
	Audio   bool           `json:"audio"`
	ByClass map[string]int `json:"detections"`
}

// Decision is the notification outcome for one image
type Decision struct {
	Camera *Notification
	Zones  []Notification
}

// All returns every notification of the decision, zone messages first
func (d Decision) All() []Notification {
	out := make([]Notification, 0, len(d.Zones)+1)
	out = append(out, d.Zones...)
	if d.Camera != nil {
		out = append(out, *d.Camera)
	}
	return out
}

// Empty reports whether nothing should be sent
func (d Decision) Empty() bool {
	return d.Camera == nil && len(d.Zones) == 0
}

// Sensor is one state value published for a camera. Zone is set for
// per-zone sensors.
type Sensor struct {
	Zone   string `json:"zone,omitempty"`
	Metric string `json:"metric"`
	Value  any    `json:"value"`
}

// Event is the record of one processed image
type Event struct {
	ID            string         `json:"id"`
	Camera        string         `json:"camera"`
	Filename      string         `json:"filename"`
	ProcessedAt   time.Time      `json:"processed_at"`
	Counters      Counters       `json:"counters"`
	Notifications []Notification `json:"notifications"`
	Summary       string         `json:"summary"`
}

// SnapshotRef points at a snapshot stored in object storage
type SnapshotRef struct {
	Camera string `json:"camera"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// OutboxMessage is a stored notification waiting to be published
type OutboxMessage struct {
	ID           string
	EventID      string
	Notification Notification
	CreatedAt    time.Time
}
