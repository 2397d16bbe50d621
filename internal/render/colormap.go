package render

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// DefaultColormap is the sequential colour map used for the choropleth.
const DefaultColormap = "viridis"

// viridis control points, dark to light.
var viridis = []color.Color{
	color.RGBA{R: 0x44, G: 0x01, B: 0x54, A: 0xff},
	color.RGBA{R: 0x3b, G: 0x52, B: 0x8b, A: 0xff},
	color.RGBA{R: 0x21, G: 0x91, B: 0x8c, A: 0xff},
	color.RGBA{R: 0x5e, G: 0xc9, B: 0x62, A: 0xff},
	color.RGBA{R: 0xfd, G: 0xe7, B: 0x25, A: 0xff},
}

var colormaps = map[string]func() (palette.ColorMap, error){
	"viridis":            func() (palette.ColorMap, error) { return moreland.NewLuminance(viridis) },
	"kindlmann":          func() (palette.ColorMap, error) { return moreland.Kindlmann(), nil },
	"extended-kindlmann": func() (palette.ColorMap, error) { return moreland.ExtendedKindlmann(), nil },
	"blackbody":          func() (palette.ColorMap, error) { return moreland.BlackBody(), nil },
	"extended-blackbody": func() (palette.ColorMap, error) { return moreland.ExtendedBlackBody(), nil },
}

// Colormaps lists the accepted colour map names.
func Colormaps() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Colormap returns a fresh colour map scaled to [vmin, vmax].
func Colormap(name string, vmin, vmax float64) (palette.ColorMap, error) {
	if name == "" {
		name = DefaultColormap
	}
	mk, ok := colormaps[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (available: %s)", name, strings.Join(Colormaps(), ", "))
	}
	if vmin >= vmax {
		return nil, fmt.Errorf("invalid colour range [%g, %g]", vmin, vmax)
	}
	cm, err := mk()
	if err != nil {
		return nil, fmt.Errorf("colormap %s: %w", name, err)
	}
	cm.SetMin(vmin)
	cm.SetMax(vmax)
	return cm, nil
}

// clamp limits v to the colour map range.
func clamp(cm palette.ColorMap, v float64) float64 {
	if v < cm.Min() {
		return cm.Min()
	}
	if v > cm.Max() {
		return cm.Max()
	}
	return v
}
