package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/spatial"
	"github.com/twpayne/go-geom"
)

// FieldBoundaryLength holds a fragment's perimeter in CRS units.
const FieldBoundaryLength = "BoundaryLength"

// CountyLength is the summed fragment perimeter for one county.
type CountyLength struct {
	County    string
	Fragments int
	Length    float64
}

// ClipResult is the output of ClipByCounty.
type ClipResult struct {
	// Fragments holds one feature per (ward, county) overlap with area.
	Fragments *feature.Collection
	PerCounty []CountyLength
	// Total is the sum of every fragment's BoundaryLength.
	Total float64
}

// ClipOptions configures ClipByCounty.
type ClipOptions struct {
	// CountyField names the county attribute on the county layer. It is also
	// written onto each fragment.
	CountyField string
	Logger      *slog.Logger
}

// ClipByCounty clips the whole ward layer to each distinct county in turn.
// Every non-empty areal piece becomes a fragment carrying the ward's
// attributes, the county name in CountyField and its perimeter in
// FieldBoundaryLength. Counties are processed in first-appearance order;
// multi-row counties are unioned first.
func ClipByCounty(ctx context.Context, wards, counties *feature.Collection, opts ClipOptions) (*ClipResult, error) {
	if wards.CRS != counties.CRS {
		return nil, ErrCRSMismatch
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	names, err := counties.Unique(opts.CountyField)
	if err != nil {
		return nil, fmt.Errorf("county names: %w", err)
	}

	wl, err := spatial.NewLayer(wards)
	if err != nil {
		return nil, fmt.Errorf("prepare wards: %w", err)
	}
	defer wl.Destroy()

	fields := append([]string(nil), wards.Fields...)
	for _, f := range []string{opts.CountyField, FieldBoundaryLength} {
		if !contains(fields, f) {
			fields = append(fields, f)
		}
	}
	res := &ClipResult{Fragments: feature.New(wards.CRS, fields...)}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cl, err := clipCounty(wl, counties.Where(opts.CountyField, name), opts.CountyField, name)
		if err != nil {
			return nil, fmt.Errorf("county %s: %w", name, err)
		}
		res.Fragments.Features = append(res.Fragments.Features, cl.fragments...)
		res.PerCounty = append(res.PerCounty, cl.summary)
		logger.Debug("clipped county", "county", name, "fragments", cl.summary.Fragments, "length", cl.summary.Length)
	}

	for _, cl := range res.PerCounty {
		res.Total += cl.Length
	}
	return res, nil
}

type countyClip struct {
	fragments []*feature.Feature
	summary   CountyLength
}

func clipCounty(wl *spatial.Layer, county *feature.Collection, field, name string) (*countyClip, error) {
	parts := make([]geom.T, 0, county.Len())
	for _, f := range county.Features {
		if f.Geometry != nil {
			parts = append(parts, f.Geometry)
		}
	}
	boundary, err := spatial.Union(parts...)
	if err != nil {
		return nil, err
	}
	out := &countyClip{summary: CountyLength{County: name}}
	if boundary == nil {
		return out, nil
	}
	bg, err := spatial.ToGEOS(boundary)
	if err != nil {
		return nil, err
	}
	defer bg.Destroy()

	for _, wi := range wl.Candidates(boundary.Bounds()) {
		piece, err := spatial.Intersection(wl.Geom(wi), bg)
		if err != nil {
			return nil, fmt.Errorf("ward %d: %w", wi, err)
		}
		if piece == nil {
			continue
		}
		ward := wl.Collection.Features[wi]
		props := make(map[string]any, len(ward.Properties)+2)
		for k, v := range ward.Properties {
			props[k] = v
		}
		length := spatial.Perimeter(piece)
		props[field] = name
		props[FieldBoundaryLength] = length

		out.fragments = append(out.fragments, &feature.Feature{Geometry: piece, Properties: props})
		out.summary.Fragments++
		out.summary.Length += length
	}
	return out, nil
}

// Complement returns the part of extent outside county, nil if nothing remains.
func Complement(extent, county geom.T) (geom.T, error) {
	eg, err := spatial.ToGEOS(extent)
	if err != nil {
		return nil, err
	}
	defer eg.Destroy()
	cg, err := spatial.ToGEOS(county)
	if err != nil {
		return nil, err
	}
	defer cg.Destroy()
	return spatial.Difference(eg, cg)
}

// Clip returns the areal part of g inside mask, nil if they do not overlap.
func Clip(g, mask geom.T) (geom.T, error) {
	gg, err := spatial.ToGEOS(g)
	if err != nil {
		return nil, err
	}
	defer gg.Destroy()
	mg, err := spatial.ToGEOS(mask)
	if err != nil {
		return nil, err
	}
	defer mg.Destroy()
	return spatial.Intersection(gg, mg)
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
