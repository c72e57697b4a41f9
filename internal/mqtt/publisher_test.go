package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type message struct {
	topic   string
	qos     byte
	retain  bool
	payload map[string]any
}

type fakeClient struct {
	mu   sync.Mutex
	sent []message
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var m map[string]any
	_ = json.Unmarshal(payload.([]byte), &m)
	c.sent = append(c.sent, message{topic: topic, qos: qos, retain: retained, payload: m})
	return fakeToken{err: c.err}
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeClient) {
	t.Helper()
	cfg := config.Default()
	cfg.MQTT.Retain = true
	fc := &fakeClient{}
	return newPublisher(fc, cfg, zaptest.NewLogger(t)), fc
}

func TestTopics(t *testing.T) {
	p, _ := newTestPublisher(t)
	require.Equal(t, "detect/front/detections", p.SensorTopic("front", "detections"))
	require.Equal(t, "detect/front/notify/drive", p.NotifyTopic("front", "drive"))
	require.Equal(t, "detect/front/notify", p.NotifyTopic("front", ""))
	require.Equal(t, "detect/front/image", p.ImageTopic("front"))

	p.topics.notify = "detect/{camera}/{zone}/notify"
	require.Equal(t, "detect/front/notify", p.NotifyTopic("front", ""))
}

func TestPublishSensors(t *testing.T) {
	p, fc := newTestPublisher(t)
	err := p.PublishSensors("front", []models.Sensor{
		{Metric: "detections", Value: 1},
		{Zone: "drive", Metric: "by_class", Value: map[string]int{"person": 1}},
	})
	require.NoError(t, err)
	require.Len(t, fc.sent, 2)

	require.Equal(t, "detect/front/detections", fc.sent[0].topic)
	require.True(t, fc.sent[0].retain)
	require.Equal(t, float64(1), fc.sent[0].payload["value"])
	require.Equal(t, "count", fc.sent[0].payload["unit"])

	require.Equal(t, "detect/front/zone_drive_by_class", fc.sent[1].topic)
	require.Equal(t, map[string]any{"person": float64(1)}, fc.sent[1].payload["value"])
}

func TestPublishNotification(t *testing.T) {
	p, fc := newTestPublisher(t)
	require.NoError(t, p.PublishNotification(models.Notification{
		Camera:  "front",
		Zone:    "drive",
		Text:    "une personne dans la drive",
		Audio:   true,
		ByClass: map[string]int{"person": 1},
	}))

	require.Len(t, fc.sent, 1)
	m := fc.sent[0]
	require.Equal(t, "detect/front/notify/drive", m.topic)
	require.False(t, m.retain)
	require.Equal(t, "text", m.payload["type"])
	require.Equal(t, true, m.payload["audio"])
	require.Equal(t, "une personne dans la drive", m.payload["message"])
	require.Equal(t, "drive", m.payload["zone"])
	require.NotEmpty(t, m.payload["timestamp"])
}

func TestPublishImage(t *testing.T) {
	p, fc := newTestPublisher(t)
	require.NoError(t, p.PublishImage(ImageMetadata{Camera: "front", Filename: "front_1.jpg", Path: "/out/true/front/front_1.jpg", TotalDetections: 2}))
	require.Equal(t, "detect/front/image", fc.sent[0].topic)
	require.Equal(t, []any{}, fc.sent[0].payload["zones"])
	require.Equal(t, float64(2), fc.sent[0].payload["total_detections"])
}

func TestSendDiscoveryOnce(t *testing.T) {
	p, fc := newTestPublisher(t)
	cam := &config.Camera{
		Name:     "front",
		EntityHA: true,
		Zones:    []config.Zone{{Name: "drive", EntityHA: true}, {Name: "yard"}},
	}

	require.NoError(t, p.SendDiscovery(cam))
	require.Len(t, fc.sent, 3)
	for _, m := range fc.sent {
		require.True(t, m.retain)
		require.Equal(t, byte(1), m.qos)
	}

	last := fc.sent[2]
	require.Equal(t, "homeassistant/sensor/zone_notifier/front_zone_drive_total/config", last.topic)
	require.Equal(t, "detect/front/zone_drive_total", last.payload["state_topic"])
	require.Equal(t, "zone_notifier_front_zone_drive_total", last.payload["unique_id"])
	require.Equal(t, "Front Détections zone drive", last.payload["name"])

	require.NoError(t, p.SendDiscovery(cam))
	require.Len(t, fc.sent, 3)
}

func TestSendDiscoveryDisabled(t *testing.T) {
	p, fc := newTestPublisher(t)
	require.NoError(t, p.SendDiscovery(&config.Camera{Name: "front"}))
	p.discovery = false
	require.NoError(t, p.SendDiscovery(&config.Camera{Name: "front", EntityHA: true}))
	require.Empty(t, fc.sent)
}

func TestPublishError(t *testing.T) {
	p, fc := newTestPublisher(t)
	fc.err = errors.New("broker down")
	require.Error(t, p.PublishNotification(models.Notification{Camera: "front", Text: "x"}))
	require.Error(t, p.SendDiscovery(&config.Camera{Name: "front", EntityHA: true}))
	require.False(t, p.discovered["front"])
}
