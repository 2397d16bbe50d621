package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

func readShapefile(path, fallbackCRS string) (*feature.Collection, error) {
	if err := checkDBF(path); err != nil {
		return nil, err
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer func() { _ = r.Close() }()

	crs, err := readPRJ(path)
	if err != nil {
		return nil, err
	}
	if crs == "" {
		crs = fallbackCRS
	}

	fields := r.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = fieldName(f)
	}

	c := feature.New(crs, names...)
	for r.Next() {
		n, shape := r.Shape()
		g, err := shapeGeometry(shape)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[names[i]] = attributeValue(f, r.ReadAttribute(n, i))
		}
		c.Features = append(c.Features, &feature.Feature{Geometry: g, Properties: props})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return c, nil
}

// checkDBF fails when the attribute table next to path is missing. go-shp
// opens it lazily and drops the error, which would load a layer without fields.
func checkDBF(path string) error {
	dbf := path[:len(path)-len(filepath.Ext(path))] + ".dbf"
	if _, err := os.Stat(dbf); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("missing attribute table %s: %w", filepath.Base(dbf), err)
		}
		return fmt.Errorf("failed to stat %s: %w", dbf, err)
	}
	return nil
}

func fieldName(f shp.Field) string {
	return strings.TrimRight(string(f.Name[:]), "\x00 ")
}

// attributeValue decodes a DBF cell. Numeric columns become float64, blank
// numerics become nil, everything else is a trimmed string.
func attributeValue(f shp.Field, raw string) any {
	s := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	switch f.Fieldtype {
	case 'N', 'F':
		if s == "" || strings.Trim(s, "*") == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return s
		}
		return v
	default:
		return s
	}
}

func shapeGeometry(s shp.Shape) (geom.T, error) {
	switch p := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Polygon:
		return polygonFromParts(p.Parts, p.Points)
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

// polygonFromParts assembles shapefile rings into polygons. Clockwise rings
// are shells; counter-clockwise rings are holes and belong to the shell that
// contains them.
func polygonFromParts(parts []int32, points []shp.Point) (geom.T, error) {
	var polys [][][]geom.Coord
	var holes [][]geom.Coord

	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			return nil, fmt.Errorf("corrupt part index %d", start)
		}
		ring := make([]geom.Coord, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, geom.Coord{pt.X, pt.Y})
		}
		if len(ring) < 4 {
			continue
		}
		if xy.IsRingCounterClockwise(geom.XY, flatten(ring)) {
			holes = append(holes, ring)
		} else {
			polys = append(polys, [][]geom.Coord{ring})
		}
	}

	for _, hole := range holes {
		owner := -1
		for i := range polys {
			if xy.IsPointInRing(geom.XY, hole[0], flatten(polys[i][0])) {
				owner = i
				break
			}
		}
		switch {
		case owner >= 0:
			polys[owner] = append(polys[owner], hole)
		case len(polys) > 0:
			polys[len(polys)-1] = append(polys[len(polys)-1], hole)
		default:
			// Wrongly wound shell with no clockwise partner.
			polys = append(polys, [][]geom.Coord{hole})
		}
	}

	switch len(polys) {
	case 0:
		return nil, nil
	case 1:
		p, err := geom.NewPolygon(geom.XY).SetCoords(polys[0])
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
		if err != nil {
			return nil, err
		}
		return mp, nil
	}
}

func flatten(ring []geom.Coord) []float64 {
	flat := make([]float64, 0, 2*len(ring))
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
