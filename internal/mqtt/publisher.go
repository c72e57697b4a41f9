package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

const (
	publishTimeout = 5 * time.Second
	zonePrefix     = "zone_"
)

// client is the part of the paho client used for publishing
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Publisher sends detection results to the home-automation broker
type Publisher struct {
	client client
	conn   pahomqtt.Client

	appName    string
	appVersion string
	topics     topics
	qos        byte
	retain     bool

	discovery       bool
	discoveryPrefix string
	discovered      map[string]bool
	mu              sync.Mutex

	log *zap.Logger
}

type topics struct {
	sensor string
	notify string
	image  string
}

type sensorPayload struct {
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
	Unit      string `json:"unit"`
}

type notificationPayload struct {
	Type       string         `json:"type"`
	Audio      bool           `json:"audio"`
	Message    string         `json:"message"`
	Camera     string         `json:"camera"`
	Zone       string         `json:"zone,omitempty"`
	Detections map[string]int `json:"detections,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// ImageMetadata describes one processed snapshot
type ImageMetadata struct {
	Camera          string   `json:"camera"`
	Filename        string   `json:"filename"`
	Path            string   `json:"path"`
	Zones           []string `json:"zones"`
	TotalDetections int      `json:"total_detections"`
	Summary         string   `json:"summary,omitempty"`
	Timestamp       string   `json:"timestamp"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

type discoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	Icon              string          `json:"icon"`
	Device            discoveryDevice `json:"device"`
}

// NewPublisher creates a paho client for the configured broker. Call Connect
// before publishing.
func NewPublisher(cfg *config.Config, log *zap.Logger) *Publisher {
	opts := pahomqtt.NewClientOptions().AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Broker, cfg.MQTT.Port))
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = cfg.App.Name
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	p := newPublisher(nil, cfg, log)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.log.Warn("mqtt_unexpected_disconnect", zap.Error(err))
	})
	conn := pahomqtt.NewClient(opts)
	p.client = conn
	p.conn = conn
	return p
}

func newPublisher(c client, cfg *config.Config, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		client:     c,
		appName:    cfg.App.Name,
		appVersion: cfg.App.Version,
		topics: topics{
			sensor: cfg.MQTT.Topics.Sensor,
			notify: cfg.MQTT.Topics.Notify,
			image:  cfg.MQTT.Topics.Image,
		},
		qos:             cfg.MQTT.QoS,
		retain:          cfg.MQTT.Retain,
		discovery:       cfg.HomeAssistant.Autodiscovery,
		discoveryPrefix: cfg.HomeAssistant.DiscoveryPrefix,
		discovered:      make(map[string]bool),
		log:             log.Named("mqtt"),
	}
}

// Connect waits for the broker connection
func (p *Publisher) Connect(ctx context.Context) error {
	if p.conn == nil {
		return nil
	}
	token := p.conn.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.log.Info("mqtt_connected")
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
		p.log.Info("mqtt_disconnected")
	}
}

// SensorName is the wire metric of a sensor; zone sensors get a "zone_<name>_" prefix
func SensorName(s models.Sensor) string {
	if s.Zone == "" {
		return s.Metric
	}
	return zonePrefix + s.Zone + "_" + s.Metric
}

func (p *Publisher) SensorTopic(camera, metric string) string {
	return strings.NewReplacer("{camera}", camera, "{metric}", metric).Replace(p.topics.sensor)
}

func (p *Publisher) NotifyTopic(camera, zone string) string {
	zonePart := ""
	if zone != "" {
		zonePart = "/" + zone
	}
	topic := strings.NewReplacer("{camera}", camera, "{zone}", zonePart).Replace(p.topics.notify)
	return strings.ReplaceAll(topic, "//", "/")
}

func (p *Publisher) ImageTopic(camera string) string {
	return strings.ReplaceAll(p.topics.image, "{camera}", camera)
}

// PublishSensors sends every sensor of one image. It stops at the first failure.
func (p *Publisher) PublishSensors(camera string, sensors []models.Sensor) error {
	now := timestamp()
	for _, s := range sensors {
		metric := SensorName(s)
		if err := p.publish(p.SensorTopic(camera, metric), p.qos, p.retain, sensorPayload{
			Value:     s.Value,
			Timestamp: now,
			Unit:      "count",
		}); err != nil {
			return fmt.Errorf("publish sensor %s: %w", metric, err)
		}
	}
	p.log.Debug("sensors_published", zap.String("camera", camera), zap.Int("count", len(sensors)))
	return nil
}

// PublishNotification sends one message. Notifications are never retained.
func (p *Publisher) PublishNotification(n models.Notification) error {
	if err := p.publish(p.NotifyTopic(n.Camera, n.Zone), p.qos, false, notificationPayload{
		Type:       "text",
		Audio:      n.Audio,
		Message:    n.Text,
		Camera:     n.Camera,
		Zone:       n.Zone,
		Detections: n.ByClass,
		Timestamp:  timestamp(),
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	p.log.Info("notification_published",
		zap.String("camera", n.Camera),
		zap.String("zone", n.Zone),
		zap.String("message", n.Text),
	)
	return nil
}

func (p *Publisher) PublishImage(meta ImageMetadata) error {
	if meta.Timestamp == "" {
		meta.Timestamp = timestamp()
	}
	if meta.Zones == nil {
		meta.Zones = []string{}
	}
	if err := p.publish(p.ImageTopic(meta.Camera), p.qos, p.retain, meta); err != nil {
		return fmt.Errorf("publish image metadata: %w", err)
	}
	return nil
}

// SendDiscovery registers the camera sensors with Home Assistant, once per
// camera for the lifetime of the publisher
func (p *Publisher) SendDiscovery(cam *config.Camera) error {
	if !p.discovery || !cam.EntityHA {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discovered[cam.Name] {
		return nil
	}

	type entity struct {
		metric, name, icon string
	}
	entities := []entity{
		{"detections", "Détections totales", "mdi:cctv"},
		{"false_detections", "Fausses alertes", "mdi:alert-circle"},
	}
	for _, z := range cam.Zones {
		if z.EntityHA {
			entities = append(entities, entity{
				SensorName(models.Sensor{Zone: z.Name, Metric: "total"}),
				"Détections zone " + z.Name,
				"mdi:map-marker",
			})
		}
	}

	for _, e := range entities {
		topic := fmt.Sprintf("%s/sensor/%s/%s_%s/config", p.discoveryPrefix, p.appName, cam.Name, e.metric)
		payload := discoveryPayload{
			Name:              capitalize(cam.Name) + " " + e.name,
			UniqueID:          fmt.Sprintf("%s_%s_%s", p.appName, cam.Name, e.metric),
			StateTopic:        p.SensorTopic(cam.Name, e.metric),
			ValueTemplate:     "{{ value_json.value }}",
			UnitOfMeasurement: "count",
			Icon:              e.icon,
			Device: discoveryDevice{
				Identifiers:  []string{p.appName + "_" + cam.Name},
				Name:         "Caméra " + capitalize(cam.Name),
				Manufacturer: p.appName,
				Model:        "YOLO Detection",
				SWVersion:    p.appVersion,
			},
		}
		// discovery is always retained
		if err := p.publish(topic, 1, true, payload); err != nil {
			return fmt.Errorf("discovery %s: %w", e.metric, err)
		}
	}

	p.discovered[cam.Name] = true
	p.log.Info("autodiscovery_sent", zap.String("camera", cam.Name), zap.Int("entities", len(entities)))
	return nil
}

func (p *Publisher) publish(topic string, qos byte, retain bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	token := p.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
