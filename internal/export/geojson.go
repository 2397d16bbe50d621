// Package export writes pipeline results to formats other tools can read:
// GeoJSON for fragments and a DuckDB database for analytical queries.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/project"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeoJSON converts c to a FeatureCollection. Collections not already in
// EPSG:4326 are reprojected first, since GeoJSON coordinates are always
// WGS84 longitude/latitude.
func GeoJSON(c *feature.Collection, logger *slog.Logger) (*geojson.FeatureCollection, error) {
	if c.CRS != project.Geographic {
		p := project.New(project.Geographic, logger)
		defer p.Close()

		out, err := p.Reproject(c)
		if err != nil {
			return nil, fmt.Errorf("failed to reproject to %s: %w", project.Geographic, err)
		}
		c = out
	}

	fc := &geojson.FeatureCollection{
		BBox:     c.Bounds(),
		Features: make([]*geojson.Feature, 0, c.Len()),
	}
	for i, f := range c.Features {
		gf := &geojson.Feature{
			ID:         strconv.Itoa(i),
			Geometry:   f.Geometry,
			Properties: make(map[string]any, len(f.Properties)),
		}
		if f.Geometry != nil {
			gf.BBox = f.Geometry.Bounds()
		}
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		fc.Features = append(fc.Features, gf)
	}
	return fc, nil
}

// WriteGeoJSON encodes c as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, c *feature.Collection, logger *slog.Logger) error {
	fc, err := GeoJSON(c, logger)
	if err != nil {
		return err
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write geojson: %w", err)
	}
	return nil
}

// SaveGeoJSON writes c to path, creating parent directories.
func SaveGeoJSON(path string, c *feature.Collection, logger *slog.Logger) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return WriteGeoJSON(f, c, logger)
}
