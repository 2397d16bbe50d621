// Package loader reads polygon datasets from disk into feature collections.
//
// Shapefiles (.shp with .dbf and an optional .prj sidecar) and GeoJSON
// FeatureCollections are supported. The format is chosen by file extension.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/frances-ha/egm722/internal/feature"
)

// DefaultCRS is assumed when a dataset does not declare its CRS.
const DefaultCRS = "EPSG:4326"

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Options controls how datasets are read.
type Options struct {
	// FallbackCRS is used when a shapefile has no .prj. Empty means DefaultCRS.
	FallbackCRS string
	Logger      *slog.Logger
}

// Load reads the dataset at path.
func Load(ctx context.Context, path string, opts Options) (*feature.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fallback := opts.FallbackCRS
	if fallback == "" {
		fallback = DefaultCRS
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}

	var (
		c   *feature.Collection
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".shp":
		c, err = readShapefile(path, fallback)
	case ".geojson", ".json":
		c, err = readGeoJSON(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	logger.Debug("loaded dataset", "path", path, "features", c.Len(), "fields", len(c.Fields))
	return c, nil
}

// readPRJ returns the WKT in the shapefile's .prj sidecar, or "" if absent.
func readPRJ(shpPath string) (string, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".prj", ".PRJ"} {
		b, err := os.ReadFile(base + ext)
		if err == nil {
			return strings.TrimSpace(string(b)), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read projection: %w", err)
		}
	}
	return "", nil
}
