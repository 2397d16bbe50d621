package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/frances-ha/egm722/internal/project"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Default graticule positions, in degrees.
var (
	DefaultLons = []float64{-8, -7.5, -7, -6.5, -6, -5.5}
	DefaultLats = []float64{54, 54.5, 55, 55.5}
)

// graticuleSteps is the number of segments each meridian or parallel is split
// into before projection.
const graticuleSteps = 64

// extent is the visible map window in map units.
type extent struct {
	xmin, xmax, ymin, ymax float64
}

// graticule builds projected meridians and parallels plus their edge labels.
// Meridians are labelled along the top edge and parallels along the left.
func graticule(p *project.Projector, lons, lats []float64, ext extent) ([]plot.Plotter, error) {
	if len(lons) == 0 || len(lats) == 0 {
		return nil, nil
	}
	lonMin, lonMax := span(lons, 1)
	latMin, latMax := span(lats, 1)

	style := draw.LineStyle{
		Color:  color.Gray{Y: 0x80},
		Width:  vg.Points(0.5),
		Dashes: []vg.Length{vg.Points(2), vg.Points(2)},
	}

	var (
		out  []plot.Plotter
		top  plotter.XYLabels
		left plotter.XYLabels
	)
	for _, lon := range lons {
		xys, err := projectLine(p, lon, latMin, lon, latMax)
		if err != nil {
			return nil, fmt.Errorf("meridian %g: %w", lon, err)
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		l.LineStyle = style
		out = append(out, l)
		if x, ok := crossing(xys, ext.ymax, false); ok && x >= ext.xmin && x <= ext.xmax {
			top.XYs = append(top.XYs, plotter.XY{X: x, Y: ext.ymax})
			top.Labels = append(top.Labels, degrees(lon, "E", "W"))
		}
	}
	for _, lat := range lats {
		xys, err := projectLine(p, lonMin, lat, lonMax, lat)
		if err != nil {
			return nil, fmt.Errorf("parallel %g: %w", lat, err)
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		l.LineStyle = style
		out = append(out, l)
		if y, ok := crossing(xys, ext.xmin, true); ok && y >= ext.ymin && y <= ext.ymax {
			left.XYs = append(left.XYs, plotter.XY{X: ext.xmin, Y: y})
			left.Labels = append(left.Labels, degrees(lat, "N", "S"))
		}
	}

	for _, edge := range []struct {
		labels plotter.XYLabels
		xalign draw.XAlignment
		yalign draw.YAlignment
		offset vg.Point
	}{
		{top, draw.XCenter, draw.YTop, vg.Point{Y: -vg.Points(2)}},
		{left, draw.XLeft, draw.YCenter, vg.Point{X: vg.Points(2)}},
	} {
		if len(edge.labels.XYs) == 0 {
			continue
		}
		lb, err := plotter.NewLabels(edge.labels)
		if err != nil {
			return nil, err
		}
		for i := range lb.TextStyle {
			lb.TextStyle[i].XAlign = edge.xalign
			lb.TextStyle[i].YAlign = edge.yalign
		}
		lb.Offset = edge.offset
		out = append(out, lb)
	}
	return out, nil
}

// projectLine densifies the geographic segment (lon0,lat0)-(lon1,lat1) and
// projects it into the projector's target CRS.
func projectLine(p *project.Projector, lon0, lat0, lon1, lat1 float64) (plotter.XYs, error) {
	flat := make([]float64, 0, 2*(graticuleSteps+1))
	for i := 0; i <= graticuleSteps; i++ {
		t := float64(i) / graticuleSteps
		flat = append(flat, lon0+t*(lon1-lon0), lat0+t*(lat1-lat0))
	}
	if err := p.Points(project.Geographic, flat); err != nil {
		return nil, err
	}
	xys := make(plotter.XYs, graticuleSteps+1)
	for i := range xys {
		xys[i] = plotter.XY{X: flat[2*i], Y: flat[2*i+1]}
	}
	return xys, nil
}

// crossing returns where the polyline crosses the line y=v (or x=v when
// vertical is set), interpolated along the first crossing segment.
func crossing(xys plotter.XYs, v float64, vertical bool) (float64, bool) {
	get := func(p plotter.XY) (along, across float64) {
		if vertical {
			return p.Y, p.X
		}
		return p.X, p.Y
	}
	for i := 1; i < len(xys); i++ {
		a0, c0 := get(xys[i-1])
		a1, c1 := get(xys[i])
		if (c0-v)*(c1-v) > 0 || c0 == c1 {
			continue
		}
		t := (v - c0) / (c1 - c0)
		return a0 + t*(a1-a0), true
	}
	return 0, false
}

// span returns the range of vs widened by pad degrees.
func span(vs []float64, pad float64) (lo, hi float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo - pad, hi + pad
}

// degrees formats a graticule label such as 7.5°W or 54°N.
func degrees(v float64, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
	}
	if v == 0 {
		hemi = ""
	}
	return strconv.FormatFloat(math.Abs(v), 'f', -1, 64) + "°" + hemi
}
