// Package analysis implements the ward/county overlay: the inner spatial join,
// the population aggregate and the per-county boundary clip.
package analysis

import (
	"errors"
	"fmt"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/spatial"
)

// ErrCRSMismatch is returned when two layers that must overlay are in different CRSs.
var ErrCRSMismatch = errors.New("layers are in different coordinate reference systems")

// Suffixes applied to attribute names present on both sides of a join.
const (
	LeftSuffix  = "_left"
	RightSuffix = "_right"
)

// IndexRight names the joined attribute that holds the county's row index.
const IndexRight = "index_right"

// JoinRow pairs a ward with one county it intersects.
type JoinRow struct {
	WardIndex   int
	CountyIndex int
	Ward        *feature.Feature
	County      *feature.Feature
	// Properties merges both sides; clashing names carry LeftSuffix/RightSuffix.
	Properties map[string]any
}

// Join performs an inner spatial join with the intersects predicate. Every
// (ward, county) pair that shares at least one point yields one row, ordered
// by ward then county. Wards touching no county are dropped; wards touching
// several counties appear once per county.
func Join(wards, counties *feature.Collection) ([]JoinRow, error) {
	if wards.CRS != counties.CRS {
		return nil, ErrCRSMismatch
	}

	wl, err := spatial.NewLayer(wards)
	if err != nil {
		return nil, fmt.Errorf("prepare wards: %w", err)
	}
	defer wl.Destroy()
	cl, err := spatial.NewLayer(counties)
	if err != nil {
		return nil, fmt.Errorf("prepare counties: %w", err)
	}
	defer cl.Destroy()

	clash := clashingFields(wards.Fields, counties.Fields)

	var rows []JoinRow
	for wi := 0; wi < wl.Len(); wi++ {
		wg := wl.Geom(wi)
		if wg == nil {
			continue
		}
		for _, ci := range cl.Candidates(wl.Bounds(wi)) {
			ok, err := spatial.Intersects(wg, cl.Geom(ci))
			if err != nil {
				return nil, fmt.Errorf("ward %d, county %d: %w", wi, ci, err)
			}
			if !ok {
				continue
			}
			ward, county := wards.Features[wi], counties.Features[ci]
			rows = append(rows, JoinRow{
				WardIndex:   wi,
				CountyIndex: ci,
				Ward:        ward,
				County:      county,
				Properties:  mergeProperties(ward.Properties, county.Properties, clash, ci),
			})
		}
	}
	return rows, nil
}

// JoinFields returns the attribute names carried by join rows, in display order.
func JoinFields(wards, counties *feature.Collection) []string {
	clash := clashingFields(wards.Fields, counties.Fields)
	var fields []string
	for _, f := range wards.Fields {
		if clash[f] {
			f += LeftSuffix
		}
		fields = append(fields, f)
	}
	fields = append(fields, IndexRight)
	for _, f := range counties.Fields {
		if clash[f] {
			f += RightSuffix
		}
		fields = append(fields, f)
	}
	return fields
}

// JoinCollection materialises join rows as a collection of ward geometries
// carrying the merged attributes. Geometries are shared with the ward layer.
func JoinCollection(rows []JoinRow, wards, counties *feature.Collection) *feature.Collection {
	c := feature.New(wards.CRS, JoinFields(wards, counties)...)
	for _, r := range rows {
		c.Features = append(c.Features, &feature.Feature{Geometry: r.Ward.Geometry, Properties: r.Properties})
	}
	return c
}

func clashingFields(left, right []string) map[string]bool {
	seen := make(map[string]bool, len(left))
	for _, f := range left {
		seen[f] = true
	}
	clash := make(map[string]bool)
	for _, f := range right {
		if seen[f] {
			clash[f] = true
		}
	}
	return clash
}

func mergeProperties(ward, county map[string]any, clash map[string]bool, countyIndex int) map[string]any {
	out := make(map[string]any, len(ward)+len(county)+1)
	for k, v := range ward {
		if clash[k] {
			k += LeftSuffix
		}
		out[k] = v
	}
	for k, v := range county {
		if clash[k] {
			k += RightSuffix
		}
		out[k] = v
	}
	out[IndexRight] = float64(countyIndex)
	return out
}
