package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/frances-ha/egm722/internal/render"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Counties == "" {
		errs = append(errs, errors.New("counties is required"))
	}
	if c.Wards == "" {
		errs = append(errs, errors.New("wards is required"))
	}
	if c.CountyField == "" {
		errs = append(errs, errors.New("county_field is required"))
	}
	if c.PopulationField == "" {
		errs = append(errs, errors.New("population_field is required"))
	}
	if c.TargetCRS == "" {
		errs = append(errs, errors.New("target_crs is required"))
	}
	if c.Map.DPI <= 0 {
		errs = append(errs, fmt.Errorf("map.dpi must be positive, got %d", c.Map.DPI))
	}
	if c.Map.VMin >= c.Map.VMax {
		errs = append(errs, fmt.Errorf("map.vmin (%g) must be below map.vmax (%g)", c.Map.VMin, c.Map.VMax))
	}
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		errs = append(errs, fmt.Errorf("map size must be positive, got %gx%g", c.Map.Width, c.Map.Height))
	}
	if !slices.Contains(render.Colormaps(), c.Map.Colormap) {
		errs = append(errs, fmt.Errorf("unknown map.colormap %q (available: %s)",
			c.Map.Colormap, strings.Join(render.Colormaps(), ", ")))
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		errs = append(errs, fmt.Errorf("serve.port out of range: %d", c.Serve.Port))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch strings.ToLower(c.OutputFormat) {
	case "auto", "text", "markdown", "md", "json":
	default:
		errs = append(errs, fmt.Errorf("output must be auto, text, markdown or json, got %q", c.OutputFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
