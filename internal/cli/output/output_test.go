package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/frances-ha/egm722/internal/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func newTest(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"TEXT", ModeText},
		{"md", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{" json ", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto tty", ModeAuto, true, ModeText},
		{"auto pipe", ModeAuto, false, ModeMarkdown},
		{"explicit text on pipe", ModeText, false, ModeText},
		{"json on tty", ModeJSON, true, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTest(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
}

func TestTable(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newTest(ModeMarkdown, false)
		r.Table([]string{"County", "Population"}, [][]string{{"Antrim", "4,000"}}, 2)
		s := out.String()
		assert.Contains(t, s, "| County | Population |")
		assert.Contains(t, s, "| Antrim |")
	})

	t.Run("text", func(t *testing.T) {
		r, out, _ := newTest(ModeText, false)
		r.Table([]string{"County"}, [][]string{{"Down"}})
		assert.Contains(t, out.String(), "Down")
		assert.Contains(t, out.String(), "┌")
	})

	t.Run("empty", func(t *testing.T) {
		r, out, _ := newTest(ModeMarkdown, false)
		r.Table([]string{"County"}, nil)
		assert.Contains(t, out.String(), "(0 rows)")
	})
}

func TestStatusLines(t *testing.T) {
	r, out, errOut := newTest(ModeText, false)
	r.Success("done")
	r.Warning("careful")
	r.Error("broken")
	r.KeyValue("CRS", "EPSG:32629")

	// Non-TTY text output carries no escape codes.
	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "✓ done")
	assert.Contains(t, out.String(), "! careful")
	assert.Contains(t, out.String(), "CRS: EPSG:32629")
	assert.Contains(t, errOut.String(), "✗ broken")
}

func TestHeaderMarkdown(t *testing.T) {
	r, out, _ := newTest(ModeMarkdown, false)
	r.Header(2, "Population by county")
	assert.Equal(t, "## Population by county\n\n", out.String())
}

func TestJSON(t *testing.T) {
	r, out, _ := newTest(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"rows": 4}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 4, got["rows"])
}

func TestJSONModeKeepsStdoutClean(t *testing.T) {
	r, out, errOut := newTest(ModeJSON, false)
	r.Success("Wrote map.png")
	r.Muted("watching")
	require.NoError(t, r.JSON([]int{1}))

	assert.Equal(t, "[\n  1\n]\n", out.String())
	assert.Contains(t, errOut.String(), "✓ Wrote map.png")
	assert.Contains(t, errOut.String(), "watching")
}

func TestTitle(t *testing.T) {
	r, _, _ := newTest(ModeText, false)
	assert.Equal(t, "Antrim", r.Title("ANTRIM"))
	assert.Equal(t, "Londonderry", r.Title("londonderry"))
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		v        float64
		decimals int
		want     string
	}{
		{0, 0, "0"},
		{999, 0, "999"},
		{1000, 0, "1,000"},
		{1234567.891, 1, "1,234,567.9"},
		{-45000, 0, "-45,000"},
		{1000.5, 2, "1,000.50"},
		{12345678, 0, "12,345,678"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.v, tt.decimals))
	}
}

func TestReporter(t *testing.T) {
	c := feature.New("EPSG:32629", "CountyName")
	c.Add(&feature.Feature{
		Geometry:   geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 1, 1, 1, 0, 0}, []int{8}),
		Properties: map[string]any{"CountyName": "ANTRIM"},
	})
	summary := analysis.Summary{{County: "ANTRIM", Total: 4000, Wards: 2}, {County: "DOWN", Total: 5000, Wards: 2}}
	clip := &analysis.ClipResult{
		Fragments: c,
		PerCounty: []analysis.CountyLength{{County: "ANTRIM", Fragments: 2, Length: 22000}},
		Total:     22000,
	}

	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newTest(ModeMarkdown, false)
		rep := NewReporter(r, 0)
		rep.Loaded("counties", c)
		rep.Summarized(summary)
		rep.Straddling([]analysis.Straddler{{WardIndex: 2, Counties: []string{"ANTRIM", "DOWN"}}})
		rep.Clipped(clip)

		s := out.String()
		assert.Contains(t, s, "## Loaded counties")
		assert.Contains(t, s, "POLYGON (1 rings, 4 pts)")
		assert.Contains(t, s, "| Antrim |")
		assert.Contains(t, s, "9,000")
		assert.Contains(t, s, "Antrim, Down")
		assert.Contains(t, s, "22,000.0")
	})

	t.Run("json is quiet", func(t *testing.T) {
		r, out, _ := newTest(ModeJSON, false)
		rep := NewReporter(r, 0)
		rep.Loaded("counties", c)
		rep.Summarized(summary)
		rep.Clipped(clip)
		assert.Empty(t, out.String())
	})
}
