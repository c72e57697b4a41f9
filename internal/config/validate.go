package config

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	inputActions = []string{"move", "erase", "none"}
	logLevels    = []string{"debug", "info", "warning", "error"}
	languages    = []string{"fr", "en"}
)

// Validate rejects malformed configuration at load time, so that the
// per-image code can assume every zone is structurally valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("detection.confidence_threshold %v out of [0,1]", c.Detection.ConfidenceThreshold))
	}
	if !lo.Contains(inputActions, c.Processing.InputAction) {
		errs = append(errs, fmt.Errorf("processing.input_action %q must be one of %v", c.Processing.InputAction, inputActions))
	}
	if !lo.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q must be one of %v", c.Logging.Level, logLevels))
	}
	if !lo.Contains(languages, c.Notifications.Language) {
		errs = append(errs, fmt.Errorf("notifications.language %q must be one of %v", c.Notifications.Language, languages))
	}
	if c.Processing.Workers < 1 {
		errs = append(errs, fmt.Errorf("processing.workers must be >= 1"))
	}
	if len(c.Cameras) == 0 {
		errs = append(errs, fmt.Errorf("at least one camera is required"))
	}

	seen := map[string]bool{}
	for _, cam := range c.Cameras {
		if cam.Name == "" {
			errs = append(errs, fmt.Errorf("camera with empty name"))
			continue
		}
		if seen[cam.Name] {
			errs = append(errs, fmt.Errorf("duplicate camera %q", cam.Name))
		}
		seen[cam.Name] = true

		zoneSeen := map[string]bool{}
		for _, z := range cam.Zones {
			if zoneSeen[z.Name] {
				errs = append(errs, fmt.Errorf("camera %q: duplicate zone %q", cam.Name, z.Name))
			}
			zoneSeen[z.Name] = true
			if err := ValidateZone(z); err != nil {
				errs = append(errs, fmt.Errorf("camera %q: %w", cam.Name, err))
			}
		}
	}

	if _, ok := c.Camera(c.DefaultCamera); !ok && len(c.Cameras) > 0 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrNoDefaultCamera, c.DefaultCamera))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ValidateZone checks the polygon layout: an even number of coordinates, at
// least three points, every value within [0,1].
func ValidateZone(z Zone) error {
	if z.Name == "" {
		return fmt.Errorf("zone with empty name")
	}
	if len(z.Polygon)%2 != 0 {
		return fmt.Errorf("zone %q: polygon must have an even number of coordinates", z.Name)
	}
	if len(z.Polygon) < 6 {
		return fmt.Errorf("zone %q: polygon must have at least 3 points", z.Name)
	}
	for _, v := range z.Polygon {
		if v < 0 || v > 1 {
			return fmt.Errorf("zone %q: coordinate %v out of [0,1]", z.Name, v)
		}
	}
	return nil
}
