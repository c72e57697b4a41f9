package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestBBoxCenter(t *testing.T) {
	x, y := BBox{X1: 10, Y1: 20, X2: 30, Y2: 60}.Center()
	require.Equal(t, 20.0, x)
	require.Equal(t, 40.0, y)
}

func TestBBoxJSON(t *testing.T) {
	var d RawDetection
	require.NoError(t, json.Unmarshal([]byte(`{"class":"person","score":0.8,"box":[1,2,3,4]}`), &d))
	require.Equal(t, "person", d.Class)
	require.Equal(t, 0.8, d.Confidence)
	require.Equal(t, BBox{1, 2, 3, 4}, d.Box)

	require.Error(t, json.Unmarshal([]byte(`{"class":"person","score":0.8,"box":[1,2,3]}`), &d))
}

func TestCountersAreSnapshots(t *testing.T) {
	byClass := map[string]int{"person": 1}
	byZone := map[string]ZoneCounters{"drive": {Total: 1, ByClass: map[string]int{"person": 1}}}
	c := NewCounters(2, 0, byClass, byZone)

	byClass["person"] = 10
	byZone["drive"].ByClass["person"] = 10
	require.Equal(t, 1, c.ByClass()["person"])
	zc, ok := c.Zone("drive")
	require.True(t, ok)
	require.Equal(t, 1, zc.ByClass["person"])

	c.ByClass()["person"] = 99
	require.Equal(t, 1, c.ByClass()["person"])

	_, ok = c.Zone("yard")
	require.False(t, ok)
	require.Equal(t, []string{"drive"}, c.ZoneNames())
	require.Equal(t, 2, c.Valid())
	require.Equal(t, 1, c.Detected())
	require.True(t, c.IsValid())
}

func TestCountersJSON(t *testing.T) {
	c := NewCounters(1, 1, nil, nil)
	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"total":1,"false":1,"by_class":{},"by_zone":{}}`, string(b))

	var back Counters
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, 1, back.Total())
	require.Equal(t, 1, back.False())
	require.False(t, back.IsValid())
}

func TestDecisionAll(t *testing.T) {
	d := Decision{}
	require.True(t, d.Empty())
	d.Zones = []Notification{{Zone: "drive"}}
	d.Camera = &Notification{Camera: "front"}
	all := d.All()
	require.Len(t, all, 2)
	require.Equal(t, "drive", all[0].Zone)
	require.Equal(t, "", all[1].Zone)
}
