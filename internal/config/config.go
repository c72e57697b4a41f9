package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrNoDefaultCamera = errors.New("no default camera configured")
)

// Zone is a polygonal region of interest, in normalized [0,1] coordinates
// laid out as x1, y1, x2, y2, ...
type Zone struct {
	Name        string    `yaml:"name"`
	Polygon     []float64 `yaml:"polygon"`
	ShowZone    bool      `yaml:"show_zone"`
	ShowObject  bool      `yaml:"show_object"`
	EntityHA    bool      `yaml:"entity_ha"`
	TextMsg     bool      `yaml:"text_msg"`
	AudioMsg    bool      `yaml:"audio_msg"`
	MsgTemplate string    `yaml:"msg_template"`
}

// Notifies reports whether the zone sends messages of its own
func (z *Zone) Notifies() bool {
	return z.TextMsg || z.AudioMsg
}

// UnmarshalYAML applies the zone defaults before decoding
func (z *Zone) UnmarshalYAML(node *yaml.Node) error {
	type plain Zone
	v := plain{ShowZone: true, ShowObject: true, EntityHA: true}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*z = Zone(v)
	return nil
}

// Camera is the per-camera profile
type Camera struct {
	Name        string   `yaml:"name"`
	Detect      []string `yaml:"detect"`
	TextMsg     bool     `yaml:"text_msg"`
	AudioMsg    bool     `yaml:"audio_msg"`
	ShowObject  bool     `yaml:"show_object"`
	EntityHA    bool     `yaml:"entity_ha"`
	MsgTemplate string   `yaml:"msg_template"`
	Zones       []Zone   `yaml:"zones"`
}

func (c *Camera) UnmarshalYAML(node *yaml.Node) error {
	type plain Camera
	v := plain{ShowObject: true, EntityHA: true}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*c = Camera(v)
	return nil
}

// OutputStructure controls where annotated and original images land
type OutputStructure struct {
	OrganizeByResult bool `yaml:"organize_by_result" env:"OUTPUT_BY_RESULT"`
	OrganizeByCamera bool `yaml:"organize_by_camera" env:"OUTPUT_BY_CAMERA"`
	SaveOriginal     bool `yaml:"save_original" env:"OUTPUT_SAVE_ORIGINAL"`
	OriginalByCamera bool `yaml:"original_by_camera" env:"OUTPUT_ORIGINAL_BY_CAMERA"`
}

// Config структура конфига
type Config struct {
	App struct {
		Name    string `yaml:"name" env:"APP_NAME"`
		Version string `yaml:"version" env:"APP_VERSION"`
	} `yaml:"app"`

	Directories struct {
		Input  string `yaml:"input" env:"INPUT_DIR"`
		Output string `yaml:"output" env:"OUTPUT_DIR"`
	} `yaml:"directories"`

	Processing struct {
		InputAction     string          `yaml:"input_action" env:"INPUT_ACTION"`
		OutputStructure OutputStructure `yaml:"output_structure"`
		Workers         int             `yaml:"workers" env:"WORKERS"`
		Extensions      []string        `yaml:"extensions" env:"EXTENSIONS" envSeparator:","`
	} `yaml:"processing"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	MQTT struct {
		Broker   string `yaml:"broker" env:"MQTT_BROKER"`
		Port     int    `yaml:"port" env:"MQTT_PORT"`
		QoS      byte   `yaml:"qos" env:"MQTT_QOS"`
		Retain   bool   `yaml:"retain" env:"MQTT_RETAIN"`
		Username string `yaml:"username" env:"MQTT_USERNAME"`
		Password string `yaml:"password" env:"MQTT_PASSWORD"`
		ClientID string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
		Topics   struct {
			Sensor string `yaml:"sensor" env:"MQTT_TOPIC_SENSOR"`
			Notify string `yaml:"notify" env:"MQTT_TOPIC_NOTIFY"`
			Image  string `yaml:"image" env:"MQTT_TOPIC_IMAGE"`
		} `yaml:"topics"`
	} `yaml:"mqtt"`

	HomeAssistant struct {
		Autodiscovery   bool   `yaml:"autodiscovery" env:"HA_AUTODISCOVERY"`
		DiscoveryPrefix string `yaml:"discovery_prefix" env:"HA_DISCOVERY_PREFIX"`
	} `yaml:"homeassistant"`

	Detection struct {
		Endpoint            string        `yaml:"endpoint" env:"DETECTION_ENDPOINT"`
		ConfidenceThreshold float64       `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
		Timeout             time.Duration `yaml:"timeout" env:"DETECTION_TIMEOUT"`
	} `yaml:"detection"`

	Notifications struct {
		Language string `yaml:"language" env:"NOTIFY_LANGUAGE"`
	} `yaml:"notifications"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Kafka struct {
		Brokers       []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID       string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		SnapshotTopic string   `yaml:"snapshot_topic" env:"SNAPSHOT_TOPIC"`
		EventTopic    string   `yaml:"event_topic" env:"EVENT_TOPIC"`
	} `yaml:"kafka"`

	Minio struct {
		Endpoint      string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey     string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey     string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Secure        bool   `yaml:"secure" env:"MINIO_SECURE"`
		ArchiveBucket string `yaml:"archive_bucket" env:"MINIO_ARCHIVE_BUCKET"`
	} `yaml:"minio"`

	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`

	DefaultCamera string   `yaml:"default_camera" env:"DEFAULT_CAMERA"`
	Cameras       []Camera `yaml:"cameras"`
}

// Default returns the configuration used for any key the file leaves out
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "zone_notifier"
	cfg.App.Version = "2.0.0"
	cfg.Processing.InputAction = "move"
	cfg.Processing.OutputStructure = OutputStructure{
		OrganizeByResult: true,
		OrganizeByCamera: true,
		SaveOriginal:     true,
	}
	cfg.Processing.Workers = 2
	cfg.Processing.Extensions = []string{".jpg", ".jpeg"}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.MQTT.Port = 1883
	cfg.MQTT.QoS = 1
	cfg.MQTT.Topics.Sensor = "detect/{camera}/{metric}"
	cfg.MQTT.Topics.Notify = "detect/{camera}/notify{zone}"
	cfg.MQTT.Topics.Image = "detect/{camera}/image"
	cfg.HomeAssistant.Autodiscovery = true
	cfg.HomeAssistant.DiscoveryPrefix = "homeassistant"
	cfg.Detection.ConfidenceThreshold = 0.5
	cfg.Detection.Timeout = 30 * time.Second
	cfg.Notifications.Language = "fr"
	cfg.HTTP.Addr = ":8080"
	cfg.DefaultCamera = "generique"
	return cfg
}

// Load reads the YAML file, then lets environment variables override it
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// Читаем YAML
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Парсим переменные окружения с приоритетом
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default without validating
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// Camera returns the profile with the exact given name
func (c *Config) Camera(name string) (*Camera, bool) {
	for i := range c.Cameras {
		if c.Cameras[i].Name == name {
			return &c.Cameras[i], true
		}
	}
	return nil, false
}

// ResolveCamera returns the named camera, or the default camera when the
// name is unknown. fallback is true when the default was used.
func (c *Config) ResolveCamera(name string) (cam *Camera, fallback bool, err error) {
	if cam, ok := c.Camera(name); ok {
		return cam, false, nil
	}
	if cam, ok := c.Camera(c.DefaultCamera); ok {
		return cam, true, nil
	}
	return nil, false, fmt.Errorf("%w: %q", ErrNoDefaultCamera, c.DefaultCamera)
}
