package annotate

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/image/font/basicfont"
	_ "golang.org/x/image/webp" // WebP snapshots

	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
	"github.com/Capitan-Parrot/zone-notifier/internal/zones"
)

var (
	validColor = color.RGBA{R: 0, G: 220, B: 0, A: 255}
	lowColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	labelText  = color.RGBA{R: 0, G: 0, B: 0, A: 255}

	zonePalette = []color.RGBA{
		{R: 255, G: 64, B: 64, A: 255},
		{R: 64, G: 128, B: 255, A: 255},
		{R: 255, G: 200, B: 0, A: 255},
		{R: 200, G: 0, B: 255, A: 255},
		{R: 0, G: 200, B: 200, A: 255},
	}
)

// Annotator draws zones and detections on snapshots
type Annotator struct {
	lineWidth float64
	log       *zap.Logger
}

func New(log *zap.Logger) *Annotator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Annotator{lineWidth: 3, log: log.Named("annotate")}
}

// Open decodes an image file honoring its EXIF orientation
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return img, nil
}

// Decode is Open for in-memory snapshots
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Draw returns a copy of img with the camera's zones and the classified
// detections on top. Zones are drawn when show_zone is set, boxes when the
// camera has show_object.
func (a *Annotator) Draw(img image.Image, cam *config.Camera, ix *zones.Index, dets []models.ClassifiedDetection) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(a.lineWidth)
	dc.SetFontFace(basicfont.Face7x13)

	if ix != nil {
		for i, z := range cam.Zones {
			if !z.ShowZone {
				continue
			}
			a.drawZone(dc, z.Name, ix.PixelPolygon(z.Name), zonePalette[i%len(zonePalette)])
		}
	}

	if cam.ShowObject {
		for _, d := range dets {
			a.drawDetection(dc, d)
		}
	}

	a.log.Debug("annotated", zap.String("camera", cam.Name), zap.Int("objects", len(dets)))
	return dc.Image()
}

func (a *Annotator) drawZone(dc *gg.Context, name string, pts []orb.Point, c color.RGBA) {
	if len(pts) < 3 {
		return
	}
	dc.NewSubPath()
	dc.MoveTo(pts[0][0], pts[0][1])
	for _, p := range pts[1:] {
		dc.LineTo(p[0], p[1])
	}
	dc.ClosePath()

	dc.SetRGBA255(int(c.R), int(c.G), int(c.B), 60)
	dc.FillPreserve()
	dc.SetColor(c)
	dc.Stroke()

	dc.SetColor(c)
	dc.DrawString(name, pts[0][0]+4, pts[0][1]+14)
}

func (a *Annotator) drawDetection(dc *gg.Context, d models.ClassifiedDetection) {
	c := validColor
	label := fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
	if d.IsFalse {
		c = lowColor
		label += " (LOW)"
	}

	b := d.Box
	dc.SetColor(c)
	dc.DrawRectangle(b.X1, b.Y1, b.X2-b.X1, b.Y2-b.Y1)
	dc.Stroke()

	w, h := dc.MeasureString(label)
	top := b.Y1 - h - 6
	if top < 0 {
		top = b.Y1
	}
	dc.DrawRectangle(b.X1, top, w+6, h+6)
	dc.Fill()
	dc.SetColor(labelText)
	dc.DrawString(label, b.X1+3, top+h+2)
}

// Save writes img to path, creating parent directories. The format follows
// the file extension.
func Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("save image %s: %w", path, err)
	}
	return nil
}

// Encode writes img as JPEG
func Encode(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(90))
}
