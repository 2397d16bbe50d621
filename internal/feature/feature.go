// Package feature provides the in-memory vector model shared by every pipeline stage:
// an ordered collection of polygon features carrying a coordinate reference system
// and scalar attributes.
package feature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// ErrFieldNotFound is returned when a feature does not carry a requested attribute.
var ErrFieldNotFound = errors.New("field not found")

// Feature is a single geometry with its attributes.
// Attribute values are either string, float64 or nil.
type Feature struct {
	Geometry   geom.T
	Properties map[string]any
}

// Collection is an ordered sequence of features that share one CRS.
type Collection struct {
	// CRS is any definition PROJ accepts: "EPSG:4326", WKT, or a PROJ string.
	CRS string
	// Fields lists attribute names in source order.
	Fields   []string
	Features []*Feature
}

// New creates an empty collection.
func New(crs string, fields ...string) *Collection {
	return &Collection{
		CRS:    crs,
		Fields: append([]string(nil), fields...),
	}
}

// Len returns the number of features.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

// Add appends a feature, registering any attribute names not yet listed in Fields.
func (c *Collection) Add(f *Feature) {
	for _, name := range sortedKeys(f.Properties) {
		if !c.HasField(name) {
			c.Fields = append(c.Fields, name)
		}
	}
	c.Features = append(c.Features, f)
}

// HasField reports whether name is a declared attribute.
func (c *Collection) HasField(name string) bool {
	for _, f := range c.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Head returns up to n leading features. The slice aliases the collection.
func (c *Collection) Head(n int) []*Feature {
	if n < 0 || n > len(c.Features) {
		n = len(c.Features)
	}
	return c.Features[:n]
}

// Clone returns a deep copy. Geometries and property maps are not shared.
func (c *Collection) Clone() (*Collection, error) {
	out := &Collection{
		CRS:      c.CRS,
		Fields:   append([]string(nil), c.Fields...),
		Features: make([]*Feature, 0, len(c.Features)),
	}
	for i, f := range c.Features {
		cf, err := f.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone feature %d: %w", i, err)
		}
		out.Features = append(out.Features, cf)
	}
	return out, nil
}

// Where returns the features whose field equals value, in order.
// The returned collection shares features with c.
func (c *Collection) Where(field, value string) *Collection {
	out := &Collection{CRS: c.CRS, Fields: append([]string(nil), c.Fields...)}
	for _, f := range c.Features {
		if s, err := f.String(field); err == nil && s == value {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// Unique returns the distinct string values of field in first-appearance order.
func (c *Collection) Unique(field string) ([]string, error) {
	seen := make(map[string]bool)
	var values []string
	for i, f := range c.Features {
		s, err := f.String(field)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if !seen[s] {
			seen[s] = true
			values = append(values, s)
		}
	}
	return values, nil
}

// Bounds returns the envelope of all geometries, or nil for an empty collection.
func (c *Collection) Bounds() *geom.Bounds {
	var b *geom.Bounds
	for _, f := range c.Features {
		if f.Geometry == nil {
			continue
		}
		if b == nil {
			b = geom.NewBounds(geom.XY)
		}
		b.Extend(f.Geometry)
	}
	return b
}

// Clone returns a deep copy of the feature.
func (f *Feature) Clone() (*Feature, error) {
	g, err := CloneGeometry(f.Geometry)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	return &Feature{Geometry: g, Properties: props}, nil
}

// String returns the attribute as a string. Numbers are formatted without loss.
func (f *Feature) String(field string) (string, error) {
	v, ok := f.Properties[field]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFieldNotFound, field)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(x), nil
	}
}

// Float returns the attribute as a float64.
func (f *Feature) Float(field string) (float64, error) {
	v, ok := f.Properties[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %q is not numeric", field, x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %s: value %v (%T) is not numeric", field, v, v)
	}
}

// CloneGeometry deep-copies the polygonal geometry types the pipeline handles.
func CloneGeometry(g geom.T) (geom.T, error) {
	switch x := g.(type) {
	case nil:
		return nil, nil
	case *geom.Polygon:
		return x.Clone(), nil
	case *geom.MultiPolygon:
		return x.Clone(), nil
	case *geom.LineString:
		return x.Clone(), nil
	case *geom.MultiLineString:
		return x.Clone(), nil
	case *geom.Point:
		return x.Clone(), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}
