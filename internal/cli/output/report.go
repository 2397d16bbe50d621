package output

import (
	"fmt"
	"strings"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/pipeline"
	"github.com/frances-ha/egm722/internal/render"
)

// DefaultHeadRows is how many rows Reporter prints per layer.
const DefaultHeadRows = 5

// Reporter prints each pipeline stage as it completes. JSON mode prints
// nothing per stage; the command emits one document at the end instead.
type Reporter struct {
	r        *Renderer
	headRows int
}

var _ pipeline.Reporter = (*Reporter)(nil)

// NewReporter creates a stage printer. headRows <= 0 uses DefaultHeadRows.
func NewReporter(r *Renderer, headRows int) *Reporter {
	if headRows <= 0 {
		headRows = DefaultHeadRows
	}
	return &Reporter{r: r, headRows: headRows}
}

func (p *Reporter) quiet() bool { return p.r.EffectiveMode() == ModeJSON }

// Loaded prints the head of a freshly read layer.
func (p *Reporter) Loaded(layer string, c *feature.Collection) {
	if p.quiet() {
		return
	}
	p.r.Header(2, "Loaded "+layer)
	p.Head(c, p.headRows)
}

// Projected prints the head of a reprojected layer.
func (p *Reporter) Projected(layer string, c *feature.Collection) {
	if p.quiet() {
		return
	}
	p.r.Header(2, "Projected "+layer)
	p.Head(c, p.headRows)
}

// Head prints CRS, feature count and the first n rows of c.
func (p *Reporter) Head(c *feature.Collection, n int) {
	p.r.KeyValue("CRS", feature.ShortCRS(c.CRS))
	p.r.KeyValue("Features", fmt.Sprintf("%d", c.Len()))
	rows := make([][]string, 0, n)
	for _, f := range c.Head(n) {
		rows = append(rows, c.Row(f))
	}
	p.r.Table(c.Header(), rows)
}

// Joined prints the join size.
func (p *Reporter) Joined(rows []analysis.JoinRow, joined *feature.Collection) {
	if p.quiet() {
		return
	}
	p.r.Header(2, "Spatial join")
	p.r.KeyValue("Rows", fmt.Sprintf("%d", len(rows)))
	p.r.KeyValue("Columns", strings.Join(joined.Fields, ", "))
}

// Summarized prints population per county.
func (p *Reporter) Summarized(s analysis.Summary) {
	if p.quiet() {
		return
	}
	p.r.Header(2, "Population by county")
	rows := make([][]string, 0, len(s)+1)
	for _, row := range s {
		rows = append(rows, []string{p.r.Title(row.County), fmt.Sprintf("%d", row.Wards), FormatNumber(row.Total, 0)})
	}
	rows = append(rows, []string{"Total", "", FormatNumber(s.Total(), 0)})
	p.r.Table([]string{"County", "Wards", "Population"}, rows, 2, 3)
}

// Straddling prints wards that fall in more than one county.
func (p *Reporter) Straddling(st []analysis.Straddler) {
	if p.quiet() {
		return
	}
	p.r.Header(2, "Wards in more than one county")
	rows := make([][]string, 0, len(st))
	for _, s := range st {
		names := make([]string, len(s.Counties))
		for i, c := range s.Counties {
			names[i] = p.r.Title(c)
		}
		rows = append(rows, []string{fmt.Sprintf("%d", s.WardIndex), strings.Join(names, ", ")})
	}
	p.r.Table([]string{"Ward", "Counties"}, rows, 1)
}

// Clipped prints boundary length per county and the overall total.
func (p *Reporter) Clipped(res *analysis.ClipResult) {
	if p.quiet() {
		return
	}
	p.r.Header(2, "Clipped boundary length")
	rows := make([][]string, 0, len(res.PerCounty))
	for _, cl := range res.PerCounty {
		rows = append(rows, []string{p.r.Title(cl.County), fmt.Sprintf("%d", cl.Fragments), FormatNumber(cl.Length, 1)})
	}
	p.r.Table([]string{"County", "Fragments", "Length"}, rows, 2, 3)
	p.r.KeyValue("Total", FormatNumber(res.Total, 1))
}

// Rendered reports the written map.
func (p *Reporter) Rendered(path string, fig *render.Figure) {
	if p.quiet() {
		return
	}
	msg := "Wrote " + path
	if fig.Missing > 0 {
		msg += fmt.Sprintf(" (%d wards without a value left blank)", fig.Missing)
	}
	p.r.Success(msg)
}
