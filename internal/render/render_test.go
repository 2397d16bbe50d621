package render

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/project"
	"github.com/frances-ha/egm722/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func rect(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}, {x0, y0},
	}})
}

// layers places two counties and three wards in UTM 29N near 7W 54N.
func layers() (wards, counties *feature.Collection) {
	const x0, y0, km = 620000.0, 5990000.0, 1000.0
	r := func(a, b, c, d float64) *geom.Polygon {
		return rect(x0+a*km, y0+b*km, x0+c*km, y0+d*km)
	}
	counties = feature.New(project.DefaultTarget, "CountyName")
	counties.Add(&feature.Feature{Geometry: r(0, 0, 40, 40), Properties: map[string]any{"CountyName": "ANTRIM"}})
	counties.Add(&feature.Feature{Geometry: r(40, 0, 80, 40), Properties: map[string]any{"CountyName": "DOWN"}})

	wards = feature.New(project.DefaultTarget, "Ward", "Population")
	wards.Add(&feature.Feature{Geometry: r(2, 2, 10, 10), Properties: map[string]any{"Ward": "Alpha", "Population": 500.0}})
	wards.Add(&feature.Feature{Geometry: r(42, 2, 50, 10), Properties: map[string]any{"Ward": "Bravo", "Population": 9000.0}})
	wards.Add(&feature.Feature{Geometry: r(35, 20, 45, 30), Properties: map[string]any{"Ward": "Charlie", "Population": nil}})
	return wards, counties
}

func TestColormap(t *testing.T) {
	cm, err := Colormap("", 1000, 8000)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, cm.Min())
	assert.Equal(t, 8000.0, cm.Max())

	lo, err := cm.At(1000)
	require.NoError(t, err)
	hi, err := cm.At(8000)
	require.NoError(t, err)
	assert.Less(t, brightness(lo), brightness(hi), "viridis runs dark to light")

	for _, name := range Colormaps() {
		_, err := Colormap(name, 0, 1)
		assert.NoError(t, err, name)
	}

	_, err = Colormap("jet", 0, 1)
	assert.ErrorContains(t, err, "unknown colormap")
	_, err = Colormap("viridis", 5, 5)
	assert.ErrorContains(t, err, "invalid colour range")
}

func TestClamp(t *testing.T) {
	cm, err := Colormap("kindlmann", 1000, 8000)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, clamp(cm, 12))
	assert.Equal(t, 8000.0, clamp(cm, 1e6))
	assert.Equal(t, 4321.0, clamp(cm, 4321))
}

func brightness(c color.Color) uint32 {
	r, g, b, _ := c.RGBA()
	return r + g + b
}

func TestHandles(t *testing.T) {
	red := color.RGBA{R: 0xff, A: 0xff}
	blue := color.RGBA{B: 0xff, A: 0xff}

	hs := Handles([]string{"a", "b", "c"}, []color.Color{red, blue}, nil, 1)
	require.Len(t, hs, 3)
	assert.Equal(t, red, hs[0].Fill)
	assert.Equal(t, blue, hs[1].Fill)
	assert.Equal(t, red, hs[2].Fill, "colours cycle")
	assert.Equal(t, color.Black, hs[0].Edge.Color)

	hs = Handles([]string{""}, []color.Color{nil}, red, 0.5)
	require.Len(t, hs, 1)
	assert.Nil(t, hs[0].Fill)
	assert.Equal(t, uint8(0x7f), hs[0].Edge.Color.(color.NRGBA).A)

	assert.Len(t, Handles([]string{"x", "y"}, nil, red, 1), 2)
}

func TestMap_WritesPNGAtDPI(t *testing.T) {
	wards, counties := layers()
	p := project.New(project.DefaultTarget, nil)
	defer p.Close()

	fig, err := Map(wards, counties, Options{
		Width: 5, Height: 5, DPI: 20,
		Projector: p,
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fig.Wards)
	assert.Equal(t, 1, fig.Missing)

	w, h := fig.Size()
	assert.Equal(t, 5*vg.Inch, w)
	assert.Equal(t, 5*vg.Inch, h)

	var buf bytes.Buffer
	require.NoError(t, fig.Write(&buf, "png"))
	cfg, err := png.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestMap_Save(t *testing.T) {
	wards, counties := layers()
	fig, err := Map(wards, counties, Options{DPI: 10})
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"map.png", "map.svg", "map.pdf", "nested/map.jpg"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, fig.Save(path))
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}

	err = fig.Save(filepath.Join(dir, "map.gif"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	err = fig.Save(filepath.Join(dir, "map"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMap_Errors(t *testing.T) {
	t.Run("crs mismatch", func(t *testing.T) {
		wards, counties := layers()
		counties.CRS = project.Geographic
		_, err := Map(wards, counties, Options{})
		assert.ErrorIs(t, err, analysis.ErrCRSMismatch)
	})

	t.Run("non-numeric value", func(t *testing.T) {
		wards, counties := layers()
		wards.Features[0].Properties["Population"] = "lots"
		_, err := Map(wards, counties, Options{})
		assert.ErrorContains(t, err, "ward 0")
	})

	t.Run("projector in another crs", func(t *testing.T) {
		wards, counties := layers()
		p := project.New("EPSG:29902", nil)
		defer p.Close()
		_, err := Map(wards, counties, Options{Projector: p})
		assert.ErrorContains(t, err, "graticule")
	})

	t.Run("empty", func(t *testing.T) {
		e := feature.New(project.DefaultTarget)
		_, err := Map(e, e, Options{})
		assert.ErrorContains(t, err, "nothing to draw")
	})
}

func TestGraticule(t *testing.T) {
	p := project.New(project.DefaultTarget, nil)
	defer p.Close()

	// Window spanning 7.8W..5.7W, 54.2N..55.3N.
	corners := []float64{-7.8, 54.2, -5.7, 55.3}
	require.NoError(t, p.Points(project.Geographic, corners))
	ext := extent{xmin: corners[0], ymin: corners[1], xmax: corners[2], ymax: corners[3]}

	plotters, err := graticule(p, DefaultLons, DefaultLats, ext)
	require.NoError(t, err)

	var lines int
	var labels []*plotter.Labels
	for _, pl := range plotters {
		switch x := pl.(type) {
		case *plotter.Line:
			lines++
		case *plotter.Labels:
			labels = append(labels, x)
		}
	}
	assert.Equal(t, len(DefaultLons)+len(DefaultLats), lines)
	require.Len(t, labels, 2)

	// Top edge: meridians strictly inside the window.
	assert.Equal(t, []string{"7.5°W", "7°W", "6.5°W", "6°W"}, labels[0].Labels)
	for _, xy := range labels[0].XYs {
		assert.Equal(t, ext.ymax, xy.Y)
	}
	// Left edge: parallels inside the window.
	assert.Equal(t, []string{"54.5°N", "55°N"}, labels[1].Labels)
	for _, xy := range labels[1].XYs {
		assert.Equal(t, ext.xmin, xy.X)
	}

	none, err := graticule(p, nil, DefaultLats, ext)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEqualAspect(t *testing.T) {
	b := geom.NewBounds(geom.XY).Set(0, 0, 100, 10)
	ext := equalAspect(b, 4*vg.Inch, 2*vg.Inch)

	dx, dy := ext.xmax-ext.xmin, ext.ymax-ext.ymin
	assert.InDelta(t, 2.0, dx/dy, 1e-9)
	assert.LessOrEqual(t, ext.xmin, 0.0)
	assert.GreaterOrEqual(t, ext.xmax, 100.0)
	assert.InDelta(t, 5.0, (ext.ymin+ext.ymax)/2, 1e-9)
}

func TestCrossing(t *testing.T) {
	xys := plotter.XYs{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 10}}

	x, ok := crossing(xys, 5, false)
	require.True(t, ok)
	assert.InDelta(t, 5, x, 1e-12)

	y, ok := crossing(xys, 15, true)
	require.True(t, ok)
	assert.InDelta(t, 10, y, 1e-12)

	_, ok = crossing(xys, 50, false)
	assert.False(t, ok)
}

func TestDegrees(t *testing.T) {
	assert.Equal(t, "7.5°W", degrees(-7.5, "E", "W"))
	assert.Equal(t, "54°N", degrees(54, "N", "S"))
	assert.Equal(t, "0°", degrees(0, "E", "W"))
}

func TestPolygons(t *testing.T) {
	holed := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	})
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(holed))
	require.NoError(t, mp.Push(rect(20, 20, 30, 30)))

	polys, err := polygons(mp)
	require.NoError(t, err)
	require.Len(t, polys, 2)
	assert.Len(t, polys[0].XYs, 2)
	assert.Len(t, polys[1].XYs, 1)

	_, err = polygons(geom.NewPointFlat(geom.XY, []float64{1, 2}))
	assert.Error(t, err)
}

var _ plot.Thumbnailer = Handle{}
