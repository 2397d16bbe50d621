// Package render draws the ward choropleth with county outlines, a graticule,
// a legend and a colour bar, and writes it as an image.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/project"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"
	"gonum.org/v1/plot/vg/vgsvg"
)

// ErrUnsupportedFormat is returned for image formats Write cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Defaults applied by Map to zero-valued options.
const (
	DefaultDPI        = 300
	DefaultSize       = 10.0 // inches
	DefaultVMin       = 1000
	DefaultVMax       = 8000
	DefaultValueField = "Population"
	DefaultLabel      = "Resident Population"
	LegendLabel       = "County Boundaries"
)

const (
	barFraction = 0.05
	barPad      = vg.Inch / 10
	// barAxis leaves room for the colour bar's tick labels and title.
	barAxis = vg.Inch * 9 / 10
)

var boundaryColor = color.RGBA{R: 0xff, A: 0xff}

// Options configures Map.
type Options struct {
	// ValueField is the ward attribute the choropleth is coloured on.
	ValueField string
	// Label titles the colour bar.
	Label    string
	Colormap string
	// VMin and VMax fix the colour range; values outside are clamped.
	VMin, VMax float64
	// Width and Height are the figure size in inches.
	Width, Height float64
	DPI           int
	// Lons and Lats place the graticule. Nil uses DefaultLons/DefaultLats.
	Lons, Lats []float64
	// Projector maps the graticule into the layers' CRS. Nil disables it.
	Projector *project.Projector
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.ValueField == "" {
		o.ValueField = DefaultValueField
	}
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if o.VMin == 0 && o.VMax == 0 {
		o.VMin, o.VMax = DefaultVMin, DefaultVMax
	}
	if o.Width <= 0 {
		o.Width = DefaultSize
	}
	if o.Height <= 0 {
		o.Height = DefaultSize
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Lons == nil {
		o.Lons = DefaultLons
	}
	if o.Lats == nil {
		o.Lats = DefaultLats
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// Figure is a composed map ready to be written.
type Figure struct {
	// Wards is the number of wards coloured; Missing counts wards skipped for
	// lack of a value.
	Wards, Missing int

	mapPlot *plot.Plot
	barPlot *plot.Plot
	width   vg.Length
	height  vg.Length
	mapW    vg.Length
	dpi     int
}

// Map composes the choropleth of wards with the county outlines on top. Both
// layers must share a CRS, which is also the map's CRS.
func Map(wards, counties *feature.Collection, opts Options) (*Figure, error) {
	opts.defaults()
	if wards.CRS != counties.CRS {
		return nil, analysis.ErrCRSMismatch
	}
	cm, err := Colormap(opts.Colormap, opts.VMin, opts.VMax)
	if err != nil {
		return nil, err
	}

	fig := &Figure{
		width:  vg.Length(opts.Width) * vg.Inch,
		height: vg.Length(opts.Height) * vg.Inch,
		dpi:    opts.DPI,
	}
	fig.mapW = (fig.width - barPad - barAxis) / (1 + barFraction)

	p := plot.New()
	p.HideAxes()
	p.X.Padding, p.Y.Padding = 0, 0

	if err := fig.addChoropleth(p, wards, cm, opts.ValueField); err != nil {
		return nil, err
	}
	if err := addOutlines(p, counties); err != nil {
		return nil, err
	}

	b := wards.Bounds()
	if cb := counties.Bounds(); cb != nil {
		if b == nil {
			b = cb
		} else {
			b.Extend(cb.Polygon())
		}
	}
	if b == nil {
		return nil, errors.New("nothing to draw: both layers are empty")
	}
	ext := equalAspect(b, fig.mapW, fig.height)

	if opts.Projector != nil {
		if opts.Projector.Target() != wards.CRS {
			return nil, fmt.Errorf("graticule projects to %s but layers are in %s", opts.Projector.Target(), wards.CRS)
		}
		grid, err := graticule(opts.Projector, opts.Lons, opts.Lats, ext)
		if err != nil {
			return nil, fmt.Errorf("graticule: %w", err)
		}
		p.Add(grid...)
	}
	p.Add(frame{})

	// Ranges are fixed after every plotter is added so the graticule does not
	// widen the view.
	p.X.Min, p.X.Max = ext.xmin, ext.xmax
	p.Y.Min, p.Y.Max = ext.ymin, ext.ymax

	handles := Handles([]string{""}, []color.Color{nil}, boundaryColor, 1)
	p.Legend.Add(LegendLabel, handles[0])
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Font.Size = vg.Points(12)
	p.Legend.XOffs = vg.Points(6)
	p.Legend.YOffs = -vg.Points(6)

	bar := plot.New()
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	bar.HideX()
	bar.X.Padding, bar.Y.Padding = 0, 0
	bar.Y.Label.Text = opts.Label

	fig.mapPlot, fig.barPlot = p, bar
	opts.Logger.Debug("composed map", "wards", fig.Wards, "missing", fig.Missing, "counties", counties.Len())
	return fig, nil
}

func (f *Figure) addChoropleth(p *plot.Plot, wards *feature.Collection, cm palette.ColorMap, field string) error {
	for i, w := range wards.Features {
		if w.Geometry == nil {
			continue
		}
		if v, ok := w.Properties[field]; !ok || v == nil {
			f.Missing++
			continue
		}
		v, err := w.Float(field)
		if err != nil {
			return fmt.Errorf("ward %d: %w", i, err)
		}
		fill, err := cm.At(clamp(cm, v))
		if err != nil {
			return fmt.Errorf("ward %d: %w", i, err)
		}
		polys, err := polygons(w.Geometry)
		if err != nil {
			return fmt.Errorf("ward %d: %w", i, err)
		}
		for _, poly := range polys {
			poly.Color = fill
			poly.LineStyle = draw.LineStyle{Color: fill, Width: vg.Points(0.1)}
			p.Add(poly)
		}
		f.Wards++
	}
	return nil
}

func addOutlines(p *plot.Plot, counties *feature.Collection) error {
	for i, c := range counties.Features {
		if c.Geometry == nil {
			continue
		}
		polys, err := polygons(c.Geometry)
		if err != nil {
			return fmt.Errorf("county %d: %w", i, err)
		}
		for _, poly := range polys {
			poly.Color = nil
			poly.LineStyle = draw.LineStyle{Color: boundaryColor, Width: vg.Points(1)}
			p.Add(poly)
		}
	}
	return nil
}

// polygons converts an areal geometry into one plotter polygon per part.
func polygons(g geom.T) ([]*plotter.Polygon, error) {
	var parts []*geom.Polygon
	switch x := g.(type) {
	case *geom.Polygon:
		parts = []*geom.Polygon{x}
	case *geom.MultiPolygon:
		for i := 0; i < x.NumPolygons(); i++ {
			parts = append(parts, x.Polygon(i))
		}
	default:
		return nil, fmt.Errorf("cannot draw %T", g)
	}

	out := make([]*plotter.Polygon, 0, len(parts))
	for _, part := range parts {
		var rings []plotter.XYer
		for _, ring := range part.Coords() {
			xys := make(plotter.XYs, len(ring))
			for i, c := range ring {
				xys[i] = plotter.XY{X: c.X(), Y: c.Y()}
			}
			rings = append(rings, xys)
		}
		if len(rings) == 0 {
			continue
		}
		poly, err := plotter.NewPolygon(rings...)
		if err != nil {
			return nil, err
		}
		out = append(out, poly)
	}
	return out, nil
}

// equalAspect widens the bounds so one map unit has the same length along both
// axes on a w x h canvas, with a small margin.
func equalAspect(b *geom.Bounds, w, h vg.Length) extent {
	const margin = 0.02
	xmin, xmax := b.Min(0), b.Max(0)
	ymin, ymax := b.Min(1), b.Max(1)
	dx, dy := xmax-xmin, ymax-ymin
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}
	dx *= 1 + 2*margin
	dy *= 1 + 2*margin
	cx, cy := (xmin+xmax)/2, (ymin+ymax)/2

	ratio := float64(w) / float64(h)
	if dx/dy < ratio {
		dx = dy * ratio
	} else {
		dy = dx / ratio
	}
	return extent{xmin: cx - dx/2, xmax: cx + dx/2, ymin: cy - dy/2, ymax: cy + dy/2}
}

// frame strokes the border of the map area.
type frame struct{}

func (frame) Plot(c draw.Canvas, _ *plot.Plot) {
	sty := draw.LineStyle{Color: color.Black, Width: vg.Points(0.8)}
	c.StrokeLines(sty, []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Min.Y},
	})
}

// Draw lays out the map and the colour bar on c.
func (f *Figure) Draw(c draw.Canvas) {
	c.SetColor(color.White)
	c.Fill(c.Rectangle.Path())

	mapC := draw.Crop(c, 0, c.Min.X+f.mapW-c.Max.X, 0, 0)
	f.mapPlot.Draw(mapC)

	barW := f.mapW * barFraction
	barC := draw.Crop(c, f.mapW+barPad, 0, 0, 0)
	if m := barC.Min.X + barAxis + barW; m < barC.Max.X {
		barC.Max.X = m
	}
	f.barPlot.Draw(barC)
}

// Size returns the figure size.
func (f *Figure) Size() (w, h vg.Length) { return f.width, f.height }

// Write encodes the figure as format: png, jpg, svg or pdf. Raster formats
// honour the figure DPI.
func (f *Figure) Write(w io.Writer, format string) error {
	cw, err := f.canvas(format)
	if err != nil {
		return err
	}
	f.Draw(draw.New(cw))
	if _, err := cw.WriteTo(w); err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

func (f *Figure) canvas(format string) (vg.CanvasWriterTo, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return vgimg.PngCanvas{Canvas: f.raster()}, nil
	case "jpg", "jpeg":
		return vgimg.JpegCanvas{Canvas: f.raster()}, nil
	case "svg":
		return vgsvg.New(f.width, f.height), nil
	case "pdf":
		return vgpdf.New(f.width, f.height), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (f *Figure) raster() *vgimg.Canvas {
	return vgimg.NewWith(vgimg.UseWH(f.width, f.height), vgimg.UseDPI(f.dpi))
}

// Supported reports whether Write can produce format, with or without a
// leading dot.
func Supported(format string) bool {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png", "jpg", "jpeg", "svg", "pdf":
		return true
	}
	return false
}

// Save writes the figure to path, choosing the format from its extension.
func (f *Figure) Save(path string) (err error) {
	format := filepath.Ext(path)
	if format == "" {
		return fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, path)
	}
	if !Supported(format) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return f.Write(file, format)
}
