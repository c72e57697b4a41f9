package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/annotate"
	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/detection"
	"github.com/Capitan-Parrot/zone-notifier/internal/disposition"
	"github.com/Capitan-Parrot/zone-notifier/internal/message"
	"github.com/Capitan-Parrot/zone-notifier/internal/metrics"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
	"github.com/Capitan-Parrot/zone-notifier/internal/mqtt"
	"github.com/Capitan-Parrot/zone-notifier/internal/notify"
	"github.com/Capitan-Parrot/zone-notifier/internal/s3"
	"github.com/Capitan-Parrot/zone-notifier/internal/zones"
)

var ErrUnreadableImage = errors.New("unreadable image")

type Inference interface {
	Detect(ctx context.Context, imageData []byte, filename string) ([]models.RawDetection, error)
}

type Transport interface {
	SendDiscovery(cam *config.Camera) error
	PublishSensors(camera string, sensors []models.Sensor) error
	PublishNotification(n models.Notification) error
	PublishImage(meta mqtt.ImageMetadata) error
}

type EventStore interface {
	SaveEvent(ctx context.Context, ev models.Event) error
}

type EventSink interface {
	SendEvent(ev models.Event) error
}

type Archive interface {
	UploadAnnotated(ctx context.Context, bucket, key string, data []byte) error
}

// Result is everything decided for one image
type Result struct {
	Camera     string
	Requested  string
	Fallback   bool
	Filename   string
	Detections []models.ClassifiedDetection
	Counters   models.Counters
	Decision   models.Decision
	Sensors    []models.Sensor
	Summary    string
	OutputPath string
}

// Processor runs the detection-to-notification pipeline for one image at a
// time. It is safe for concurrent use; configuration is read-only.
type Processor struct {
	cfg        *config.Config
	inference  Inference
	transport  Transport
	classifier *detection.Classifier
	policy     *notify.Policy
	formatter  *message.Formatter
	annotator  *annotate.Annotator
	layout     *disposition.Layout

	store         EventStore
	events        EventSink
	archive       Archive
	archiveBucket string
	metrics       *metrics.Metrics

	log *zap.Logger
}

type Option func(*Processor)

// WithStore routes notifications through the transactional outbox
func WithStore(s EventStore) Option {
	return func(p *Processor) { p.store = s }
}

func WithEventSink(s EventSink) Option {
	return func(p *Processor) { p.events = s }
}

func WithArchive(a Archive, bucket string) Option {
	return func(p *Processor) {
		p.archive = a
		p.archiveBucket = bucket
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(cfg *config.Config, inference Inference, transport Transport, log *zap.Logger, opts ...Option) (*Processor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	formatter, err := message.New(cfg.Notifications.Language)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		cfg:        cfg,
		inference:  inference,
		transport:  transport,
		classifier: detection.NewClassifier(cfg.Detection.ConfidenceThreshold, log),
		policy:     notify.NewPolicy(formatter, log),
		formatter:  formatter,
		annotator:  annotate.New(log),
		layout: disposition.New(
			cfg.Directories.Output,
			cfg.Processing.InputAction,
			cfg.Processing.OutputStructure,
			log,
		),
		log: log.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p, nil
}

// CameraFromFilename returns the file stem up to the first "_"
func CameraFromFilename(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name, _, _ := strings.Cut(stem, "_")
	return name
}

// Process handles one image file from the input directory and then applies
// the configured input action to it. Unreadable images are left in place.
func (p *Processor) Process(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		p.metrics.ObserveError("read")
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	res, err := p.handle(ctx, filepath.Base(path), "", data)
	if err != nil {
		return res, err
	}

	if _, err := p.layout.Dispose(path, res.Camera); err != nil {
		p.metrics.ObserveError("disposition")
		p.log.Error("disposition_failed", zap.String("path", path), zap.Error(err))
	}
	return res, nil
}

// ProcessSnapshot handles an image fetched from object storage
func (p *Processor) ProcessSnapshot(ctx context.Context, ref models.SnapshotRef, data []byte) (*Result, error) {
	return p.handle(ctx, filepath.Base(ref.Key), ref.Camera, data)
}

func (p *Processor) handle(ctx context.Context, filename, cameraName string, data []byte) (*Result, error) {
	started := time.Now()
	if cameraName == "" {
		cameraName = CameraFromFilename(filename)
	}

	cam, fallback, err := p.cfg.ResolveCamera(cameraName)
	if err != nil {
		p.metrics.ObserveError("config")
		return nil, err
	}
	if fallback {
		p.log.Warn("camera_not_configured", zap.String("camera", cameraName), zap.String("fallback", cam.Name))
	}

	res := &Result{
		Camera:    cam.Name,
		Requested: cameraName,
		Fallback:  fallback,
		Filename:  filename,
		Counters:  models.NewCounters(0, 0, nil, nil),
	}

	img, err := annotate.Decode(bytes.NewReader(data))
	if err != nil {
		p.metrics.ObserveError("decode")
		return res, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, filename, err)
	}
	b := img.Bounds()
	ix, err := zones.NewIndex(cam.Zones, b.Dx(), b.Dy(), p.log)
	if err != nil {
		p.metrics.ObserveError("decode")
		return res, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, filename, err)
	}

	raw, err := p.inference.Detect(ctx, data, filename)
	if err != nil {
		p.metrics.ObserveError("inference")
		return res, fmt.Errorf("inference %s: %w", filename, err)
	}

	// Everything is decided before anything leaves the process
	res.Detections = p.classifier.Classify(raw, cam, ix)
	res.Counters = detection.Aggregate(res.Detections)
	res.Decision = p.policy.Decide(cam, res.Counters, res.Detections)
	res.Sensors = notify.Sensors(cam, res.Counters)
	res.Summary = p.formatter.Summary(cam.Name, res.Counters, res.Decision.Zones)
	annotated := p.annotator.Draw(img, cam, ix, res.Detections)

	res.OutputPath = p.layout.OutputPath(cam.Name, outputName(filename), res.Counters.IsValid())
	if err := annotate.Save(annotated, res.OutputPath); err != nil {
		p.metrics.ObserveError("output")
		p.log.Error("output_failed", zap.String("path", res.OutputPath), zap.Error(err))
		res.OutputPath = ""
	}

	p.publish(ctx, cam, res)
	if p.archive != nil && p.archiveBucket != "" {
		p.upload(ctx, res, annotated)
	}

	p.metrics.ObserveImage(cam.Name, res.Counters, time.Since(started))
	p.log.Info("image_processed",
		zap.String("camera", cam.Name),
		zap.String("file", filename),
		zap.Int("total", res.Counters.Total()),
		zap.Int("false", res.Counters.False()),
		zap.Int("notifications", len(res.Decision.All())),
		zap.Duration("took", time.Since(started)),
	)
	return res, nil
}

// publish hands the decision to the transport. Failures are logged; the
// decision itself is already complete at this point.
func (p *Processor) publish(ctx context.Context, cam *config.Camera, res *Result) {
	if err := p.transport.SendDiscovery(cam); err != nil {
		p.failed("mqtt", err)
	}
	if len(res.Sensors) > 0 {
		if err := p.transport.PublishSensors(cam.Name, res.Sensors); err != nil {
			p.failed("mqtt", err)
		}
	}

	ev := models.Event{
		ID:            uuid.NewString(),
		Camera:        cam.Name,
		Filename:      res.Filename,
		ProcessedAt:   time.Now().UTC(),
		Counters:      res.Counters,
		Notifications: res.Decision.All(),
		Summary:       res.Summary,
	}

	direct := true
	if p.store != nil {
		if err := p.store.SaveEvent(ctx, ev); err != nil {
			p.failed("store", err)
		} else {
			direct = false
		}
	}
	if direct {
		for _, n := range ev.Notifications {
			if err := p.transport.PublishNotification(n); err != nil {
				p.failed("mqtt", err)
				continue
			}
			p.metrics.ObserveNotification(n)
		}
	}

	if err := p.transport.PublishImage(mqtt.ImageMetadata{
		Camera:          cam.Name,
		Filename:        res.Filename,
		Path:            res.OutputPath,
		Zones:           notify.ZonesWithDetections(cam, res.Counters),
		TotalDetections: res.Counters.Total(),
		Summary:         res.Summary,
	}); err != nil {
		p.failed("mqtt", err)
	}

	if p.events != nil {
		if err := p.events.SendEvent(ev); err != nil {
			p.failed("kafka", err)
		}
	}
}

func (p *Processor) upload(ctx context.Context, res *Result, img image.Image) {
	var buf bytes.Buffer
	if err := annotate.Encode(&buf, img); err != nil {
		p.failed("archive", err)
		return
	}
	key := s3.ArchiveKey(res.Camera, res.Counters.IsValid(), outputName(res.Filename))
	if err := p.archive.UploadAnnotated(ctx, p.archiveBucket, key, buf.Bytes()); err != nil {
		p.failed("archive", err)
	}
}

func (p *Processor) failed(stage string, err error) {
	p.metrics.ObserveError(stage)
	p.log.Error("publish_failed", zap.String("stage", stage), zap.Error(err))
}

// outputName keeps the file name when its format can be written, otherwise
// switches to .jpg
func outputName(filename string) string {
	if _, err := imaging.FormatFromFilename(filename); err == nil {
		return filename
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
}
