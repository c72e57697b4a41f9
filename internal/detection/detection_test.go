package detection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
	"github.com/Capitan-Parrot/zone-notifier/internal/zones"
)

func frontCamera() *config.Camera {
	return &config.Camera{
		Name:   "front",
		Detect: []string{"person", "car"},
		Zones: []config.Zone{
			{Name: "drive", Polygon: []float64{0, 0, 0.5, 0, 0.5, 1, 0, 1}, TextMsg: true},
			{Name: "yard", Polygon: []float64{0.5, 0, 1, 0, 1, 1, 0.5, 1}, TextMsg: true},
		},
	}
}

func box(cx, cy float64) models.BBox {
	return models.BBox{X1: cx - 10, Y1: cy - 10, X2: cx + 10, Y2: cy + 10}
}

func classifyFront(t *testing.T, raw []models.RawDetection) []models.ClassifiedDetection {
	t.Helper()
	cam := frontCamera()
	ix, err := zones.NewIndex(cam.Zones, 1000, 1000, zaptest.NewLogger(t))
	require.NoError(t, err)
	return NewClassifier(0.5, zaptest.NewLogger(t)).Classify(raw, cam, ix)
}

func TestClassifyThreshold(t *testing.T) {
	c := NewClassifier(0.5, nil)
	cam := &config.Camera{Name: "c", Detect: []string{"person"}}
	for _, conf := range []float64{0, 0.1, 0.4999, 0.5, 0.5001, 0.9, 1} {
		t.Run(fmt.Sprint(conf), func(t *testing.T) {
			out := c.Classify([]models.RawDetection{{Class: "person", Confidence: conf}}, cam, nil)
			require.Len(t, out, 1)
			require.Equal(t, conf < 0.5, out[0].IsFalse)
		})
	}
}

func TestClassifyAllowList(t *testing.T) {
	out := classifyFront(t, []models.RawDetection{
		{Class: "dog", Confidence: 0.99, Box: box(100, 100)},
		{Class: "car", Confidence: 0.7, Box: box(700, 100)},
		{Class: "cat", Confidence: 0.2, Box: box(100, 100)},
		{Class: "person", Confidence: 0.6, Box: box(200, 100)},
	})
	require.Len(t, out, 2)
	require.Equal(t, "car", out[0].Class)
	require.Equal(t, "person", out[1].Class)
}

func TestClassifyZones(t *testing.T) {
	out := classifyFront(t, []models.RawDetection{
		{Class: "person", Confidence: 0.9, Box: box(250, 500)},
		{Class: "person", Confidence: 0.9, Box: box(750, 500)},
		{Class: "person", Confidence: 0.9, Box: box(500, 500)}, // on the shared edge
		{Class: "person", Confidence: 0.9, Box: box(1500, 500)},
	})
	require.Equal(t, []string{"drive"}, out[0].Zones)
	require.Equal(t, []string{"yard"}, out[1].Zones)
	require.Empty(t, out[2].Zones)
	require.Empty(t, out[3].Zones)
}

func TestClassifyOverlappingZones(t *testing.T) {
	cam := &config.Camera{
		Name:   "c",
		Detect: []string{"person"},
		Zones: []config.Zone{
			{Name: "a", Polygon: []float64{0, 0, 0.6, 0, 0.6, 1, 0, 1}},
			{Name: "b", Polygon: []float64{0.4, 0, 1, 0, 1, 1, 0.4, 1}},
		},
	}
	ix, err := zones.NewIndex(cam.Zones, 100, 100, nil)
	require.NoError(t, err)
	out := NewClassifier(0.5, nil).Classify([]models.RawDetection{{Class: "person", Confidence: 0.8, Box: box(50, 50)}}, cam, ix)
	require.Equal(t, []string{"a", "b"}, out[0].Zones)
}

func TestClassifyWithoutZones(t *testing.T) {
	cam := &config.Camera{Name: "c", Detect: []string{"person"}}
	out := NewClassifier(0.5, nil).Classify([]models.RawDetection{{Class: "person", Confidence: 0.8}}, cam, nil)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Zones)
	require.Empty(t, out[0].Zones)
}

func TestAggregateCollapsing(t *testing.T) {
	valid := models.ClassifiedDetection{Class: "person"}
	low := models.ClassifiedDetection{Class: "person", IsFalse: true}

	tests := []struct {
		name     string
		dets     []models.ClassifiedDetection
		total    int
		falses   int
		byClass  map[string]int
		detected int
	}{
		{"empty", nil, 0, 0, map[string]int{}, 0},
		{"one valid", []models.ClassifiedDetection{valid}, 1, 0, map[string]int{"person": 1}, 1},
		{"valid and low", []models.ClassifiedDetection{low, valid, low}, 3, 0, map[string]int{"person": 1}, 1},
		{"one low", []models.ClassifiedDetection{low}, 1, 1, map[string]int{}, 0},
		{"many low", []models.ClassifiedDetection{low, low, low, low}, 1, 1, map[string]int{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Aggregate(tt.dets)
			require.Equal(t, tt.total, c.Total())
			require.Equal(t, tt.falses, c.False())
			require.Equal(t, tt.byClass, c.ByClass())
			require.Equal(t, tt.detected, c.Detected())
		})
	}
}

func TestAggregateIgnoresFalseInBreakdowns(t *testing.T) {
	c := Aggregate([]models.ClassifiedDetection{
		{Class: "person", Zones: []string{"drive"}},
		{Class: "car", IsFalse: true, Zones: []string{"drive", "yard"}},
		{Class: "car", Zones: []string{"drive", "yard"}},
	})

	require.Equal(t, map[string]int{"person": 1, "car": 1}, c.ByClass())
	drive, ok := c.Zone("drive")
	require.True(t, ok)
	require.Equal(t, 2, drive.Total)
	require.Equal(t, map[string]int{"person": 1, "car": 1}, drive.ByClass)
	yard, ok := c.Zone("yard")
	require.True(t, ok)
	require.Equal(t, 1, yard.Total)
	require.Equal(t, map[string]int{"car": 1}, yard.ByClass)
}

func TestFrontScenario(t *testing.T) {
	out := classifyFront(t, []models.RawDetection{
		{Class: "person", Confidence: 0.9, Box: box(250, 500)},
		{Class: "car", Confidence: 0.3, Box: box(750, 500)},
		{Class: "dog", Confidence: 0.8, Box: box(250, 250)},
	})
	require.Len(t, out, 2)
	require.False(t, out[0].IsFalse)
	require.Equal(t, []string{"drive"}, out[0].Zones)
	require.True(t, out[1].IsFalse)
	require.Equal(t, []string{"yard"}, out[1].Zones)

	c := Aggregate(out)
	require.Equal(t, 2, c.Total())
	require.Equal(t, 0, c.False())
	require.Equal(t, map[string]int{"person": 1}, c.ByClass())
	require.Equal(t, []string{"drive"}, c.ZoneNames())
	drive, _ := c.Zone("drive")
	require.Equal(t, models.ZoneCounters{Total: 1, ByClass: map[string]int{"person": 1}}, drive)
}
