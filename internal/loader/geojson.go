package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// readGeoJSON reads a FeatureCollection. RFC 7946 fixes the CRS to WGS84 lon/lat.
func readGeoJSON(path string) (*feature.Collection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	c := feature.New(DefaultCRS)
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon, nil:
		default:
			return nil, fmt.Errorf("feature %d: unsupported geometry %T", i, f.Geometry)
		}
		props := make(map[string]any, len(f.Properties))
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			props[k] = normalise(f.Properties[k])
		}
		c.Add(&feature.Feature{Geometry: f.Geometry, Properties: props})
	}
	return c, nil
}

func normalise(v any) any {
	switch x := v.(type) {
	case nil, string, float64:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}
