package commands

import (
	"fmt"

	"github.com/frances-ha/egm722/internal/cli/output"
	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/loader"
	"github.com/frances-ha/egm722/internal/project"
	"github.com/spf13/cobra"
)

// InspectOptions holds options for the inspect command.
type InspectOptions struct {
	Rows int
	To   string
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Show the CRS, fields and first rows of a dataset",
		Example: `  # Show the first five counties
  countymap inspect data_files/Counties.shp

  # Show wards after reprojecting to Irish Grid
  countymap inspect data_files/NI_Wards.shp --to EPSG:29902 --rows 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Rows, "rows", "n", output.DefaultHeadRows, "Number of rows to show")
	cmd.Flags().StringVar(&opts.To, "to", "", "Reproject to this CRS before showing")

	return cmd
}

func runInspect(cmd *cobra.Command, path string, opts *InspectOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	c, err := loader.Load(cmd.Context(), path, loader.Options{FallbackCRS: cc.Cfg.SourceCRS, Logger: cc.Logger})
	if err != nil {
		return err
	}
	if opts.To != "" {
		p := project.New(opts.To, cc.Logger)
		defer p.Close()
		if c, err = p.Reproject(c); err != nil {
			return fmt.Errorf("failed to reproject: %w", err)
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(inspectOutput(path, c, opts.Rows))
	}

	r.Header(1, path)
	output.NewReporter(r, opts.Rows).Head(c, opts.Rows)
	if b := c.Bounds(); b != nil {
		r.KeyValue("Bounds", fmt.Sprintf("%.4f %.4f %.4f %.4f", b.Min(0), b.Min(1), b.Max(0), b.Max(1)))
	}
	return nil
}

func inspectOutput(path string, c *feature.Collection, n int) *output.InspectOutput {
	out := &output.InspectOutput{
		Path:     path,
		CRS:      c.CRS,
		Features: c.Len(),
		Fields:   c.Fields,
		Header:   c.Header(),
		Rows:     [][]string{},
	}
	if b := c.Bounds(); b != nil {
		out.Bounds = []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
	}
	for _, f := range c.Head(n) {
		out.Rows = append(out.Rows, c.Row(f))
	}
	return out
}
