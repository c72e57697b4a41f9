package message

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Formatter builds notification sentences. It has no side effects.
type Formatter struct {
	locale *Locale
}

// New returns a formatter for the language code ("fr" or "en")
func New(lang string) (*Formatter, error) {
	l, ok := locales[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported notification language %q", lang)
	}
	return &Formatter{locale: l}, nil
}

func (f *Formatter) Locale() *Locale {
	return f.locale
}

// Sentence turns a class->count mapping into "une personne, un chien et 2 voitures".
// Classes are listed in name order.
func (f *Formatter) Sentence(byClass map[string]int) string {
	if len(byClass) == 0 {
		return f.locale.empty
	}
	classes := slices.Sorted(maps.Keys(byClass))
	parts := lo.Map(classes, func(class string, _ int) string {
		return f.countPhrase(class, byClass[class])
	})
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + f.locale.and + parts[len(parts)-1]
}

func (f *Formatter) countPhrase(class string, n int) string {
	count := strconv.Itoa(n)
	if n == 1 {
		count = f.locale.article(f.locale.lookup(class))
	}
	return count + " " + f.locale.Label(class, n)
}

// CameraMessage is the camera-wide sentence, e.g. "2 personnes détectées".
// A non-empty template replaces the generated sentence.
func (f *Formatter) CameraMessage(camera string, byClass map[string]int, template string) string {
	if template != "" {
		return f.Render(template, camera, "", byClass)
	}
	total := lo.Sum(lo.Values(byClass))
	// Feminine agreement only when every detected class is feminine
	feminine := len(byClass) > 0 && lo.EveryBy(lo.Keys(byClass), func(class string) bool {
		return f.locale.lookup(class).feminine
	})
	return f.Sentence(byClass) + " " + f.locale.detected(total, feminine)
}

// ZoneMessage is the sentence for one zone, e.g. "une personne dans la allée"
func (f *Formatter) ZoneMessage(camera, zone string, byClass map[string]int, template string) string {
	if template != "" {
		return f.Render(template, camera, zone, byClass)
	}
	return f.locale.inZone(f.Sentence(byClass), zone)
}

// Render fills a message template. Supported placeholders: {count_<class>},
// {camera}, {zone}, {total} and {objects}. Unknown placeholders are kept.
func (f *Formatter) Render(template, camera, zone string, byClass map[string]int) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		switch {
		case strings.HasPrefix(key, "count_"):
			return strconv.Itoa(byClass[strings.TrimPrefix(key, "count_")])
		case key == "camera":
			return camera
		case key == "zone":
			return zone
		case key == "total":
			return strconv.Itoa(lo.Sum(lo.Values(byClass)))
		case key == "objects":
			return f.Sentence(byClass)
		}
		return m
	})
}

// Summary is a multi-line digest of one processed image
func (f *Formatter) Summary(camera string, c models.Counters, zoneMessages []models.Notification) string {
	l := f.locale
	lines := []string{
		camera,
		fmt.Sprintf("%s: %d", l.summaryValid, c.Valid()),
		fmt.Sprintf("%s: %d", l.summaryFalse, c.False()),
	}

	byClass := c.ByClass()
	if len(byClass) > 0 {
		lines = append(lines, l.summaryByClass+":")
		for _, class := range slices.Sorted(maps.Keys(byClass)) {
			lines = append(lines, fmt.Sprintf("  - %s: %d", l.Label(class, byClass[class]), byClass[class]))
		}
	}

	if len(zoneMessages) > 0 {
		lines = append(lines, l.summaryByZone+":")
		for _, zm := range zoneMessages {
			lines = append(lines, fmt.Sprintf("  - %s: %s", zm.Zone, zm.Text))
		}
	}

	return strings.Join(lines, "\n")
}
