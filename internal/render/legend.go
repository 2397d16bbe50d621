package render

import (
	"image/color"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Handle is a legend thumbnail: a filled rectangle with a stroked edge.
// A nil Fill leaves the rectangle empty.
type Handle struct {
	Fill  color.Color
	Edge  draw.LineStyle
	Alpha float64
}

// Handles returns one rectangle thumbnail per label. Colours are cycled when
// there are fewer colours than labels; a nil colour means no fill.
func Handles(labels []string, colors []color.Color, edge color.Color, alpha float64) []Handle {
	if len(colors) == 0 {
		colors = []color.Color{nil}
	}
	if edge == nil {
		edge = color.Black
	}
	out := make([]Handle, len(labels))
	for i := range labels {
		out[i] = Handle{
			Fill:  colors[i%len(colors)],
			Edge:  draw.LineStyle{Color: withAlpha(edge, alpha), Width: vg.Points(1)},
			Alpha: alpha,
		}
	}
	return out
}

// Thumbnail implements plot.Thumbnailer.
func (h Handle) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	if h.Fill != nil {
		c.FillPolygon(withAlpha(h.Fill, h.Alpha), c.ClipPolygonY(pts))
	}
	c.StrokeLines(h.Edge, append(pts, pts[0]))
}

// withAlpha scales the opacity of c by alpha in [0, 1].
func withAlpha(c color.Color, alpha float64) color.Color {
	if alpha >= 1 || alpha < 0 {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * alpha)
	return n
}
