// Package output renders command results for terminals, markdown consumers
// and machines.
//
// In auto mode a TTY gets styled text and anything else gets markdown, so
// piping a command into a file or an agent produces readable tables.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Modes lists the accepted mode names.
var Modes = []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}

// Mode converts a config string into an OutputMode. Unknown values fall back
// to auto.
func Mode(s string) OutputMode {
	switch OutputMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText
	case ModeMarkdown, "md":
		return ModeMarkdown
	case ModeJSON:
		return ModeJSON
	default:
		return ModeAuto
	}
}

// Renderer writes formatted output for one command invocation.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	term   *termenv.Output
	title  cases.Caser
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	opts := []termenv.OutputOption{termenv.WithProfile(termenv.Ascii)}
	if isTTY {
		opts = []termenv.OutputOption{termenv.WithTTY(true)}
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		term:   termenv.NewOutput(out, opts...),
		title:  cases.Title(language.English),
	}
}

// EffectiveMode resolves auto to text on a TTY and markdown otherwise.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrorOutput returns the error writer.
func (r *Renderer) ErrorOutput() io.Writer { return r.errOut }

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a section heading.
func (r *Renderer) Header(level int, title string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, title))
		return
	}
	r.Println()
	r.Println(r.term.String(title).Bold().String())
}

// Success writes a positive status line.
func (r *Renderer) Success(msg string) {
	r.status("✓", "2", msg)
}

// Warning writes a warning line.
func (r *Renderer) Warning(msg string) {
	r.status("!", "3", msg)
}

// Error writes an error line to the error writer.
func (r *Renderer) Error(msg string) {
	style := r.term.String("✗ " + msg).Foreground(r.term.Color("1"))
	_, _ = fmt.Fprintln(r.errOut, style.String())
}

// Muted writes de-emphasised text.
func (r *Renderer) Muted(msg string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		_, _ = fmt.Fprintln(r.errOut, msg)
		return
	case ModeMarkdown:
		r.Println("_" + msg + "_")
		return
	}
	r.Println(r.term.String(msg).Faint().String())
}

// status lines go to the error writer in JSON mode so stdout stays a
// single document.
func (r *Renderer) status(mark, color, msg string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		_, _ = fmt.Fprintln(r.errOut, mark+" "+msg)
		return
	case ModeMarkdown:
		r.Println(mark + " " + msg)
		return
	}
	r.Println(r.term.String(mark + " " + msg).Foreground(r.term.Color(color)).String())
}

// KeyValue writes one "key: value" line.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatKeyValue(key, value))
		return
	}
	r.Printf("%s %s\n", r.term.String(key+":").Bold().String(), value)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// Table writes rows under header. Columns listed in numeric are
// right-aligned (1-based, as go-pretty counts them).
func (r *Renderer) Table(header []string, rows [][]string, numeric ...int) {
	if len(rows) == 0 {
		r.Muted("(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	h := make(table.Row, len(header))
	for i, col := range header {
		h[i] = col
	}
	t.AppendHeader(h)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	configs := make([]table.ColumnConfig, 0, len(numeric))
	for _, n := range numeric {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		r.Println()
		return
	}
	t.Render()
}

// Title title-cases a display label, so "ANTRIM" prints as "Antrim".
func (r *Renderer) Title(s string) string {
	return r.title.String(s)
}

// FormatHeader returns a markdown heading.
func FormatHeader(level int, title string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + title + "\n"
}

// FormatKeyValue returns a markdown list item.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s:** %s", key, value)
}

// numberPrinter groups digits the English way, matching the title casing.
var numberPrinter = message.NewPrinter(language.English)

// FormatNumber formats v with thousands separators and the given decimals.
func FormatNumber(v float64, decimals int) string {
	return numberPrinter.Sprintf("%.*f", decimals, v)
}
