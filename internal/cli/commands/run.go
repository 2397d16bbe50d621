package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frances-ha/egm722/internal/cli/output"
	"github.com/frances-ha/egm722/internal/export"
	"github.com/frances-ha/egm722/internal/pipeline"
	"github.com/spf13/cobra"
)

// wardLabelField is copied into the DuckDB fragments table when present.
const wardLabelField = "Ward"

// RunOptions holds options for the run command.
type RunOptions struct {
	Watch   bool
	NoState bool
	NoMap   bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the county and ward analysis",
		Long: `Load the counties and wards layers, reproject both, join wards to
counties, total population per county, clip wards to each county and
render the choropleth map.

Each run is recorded in the state database unless --no-state is set.`,
		Example: `  # Run with countymap.yaml or the defaults
  countymap run

  # Render an SVG with a narrower colour range
  countymap run --map out/wards.svg --vmin 2000 --vmax 6000

  # Export the clipped fragments and a DuckDB file
  countymap run --fragments out/fragments.geojson --duckdb out/wards.duckdb

  # Re-run whenever an input shapefile changes
  countymap run --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when an input layer changes")
	cmd.Flags().BoolVar(&opts.NoState, "no-state", false, "Do not record the run in the state database")
	cmd.Flags().BoolVar(&opts.NoMap, "no-map", false, "Skip rendering the map")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	rec, cleanup, err := cc.recorder(ctx, opts.NoState)
	if err != nil {
		return err
	}
	defer cleanup()

	pcfg := cc.Pipeline()
	if opts.NoMap {
		pcfg.MapPath = ""
	}

	if !opts.Watch {
		_, err := cc.runOnce(ctx, pcfg, rec)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := cc.Renderer
	if _, err := cc.runOnce(ctx, pcfg, rec); err != nil {
		r.Error(err.Error())
	}
	r.Muted(fmt.Sprintf("Watching %s and %s for changes (Ctrl+C to stop)", pcfg.CountiesPath, pcfg.WardsPath))

	return pipeline.Watch(ctx, []string{pcfg.CountiesPath, pcfg.WardsPath}, pipeline.DefaultDebounce, cc.Logger,
		func(ctx context.Context) {
			r.Muted("Change detected, re-running")
			if _, err := cc.runOnce(ctx, pcfg, rec); err != nil && ctx.Err() == nil {
				r.Error(err.Error())
			}
		})
}

// recorder opens the state store unless disabled. The returned cleanup
// closes it.
func (c *CommandContext) recorder(ctx context.Context, disabled bool) (*recorder, func(), error) {
	if disabled {
		return nil, func() {}, nil
	}
	store, err := c.OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return newRecorder(store, c.Pipeline(), c.Logger), func() { _ = store.Close() }, nil
}

// runOnce executes one pipeline run, writes the configured exports and
// records the outcome.
func (c *CommandContext) runOnce(ctx context.Context, pcfg pipeline.Config, rec *recorder) (*output.RunOutput, error) {
	r := c.Renderer
	runID := rec.start(ctx)

	res, err := pipeline.Run(ctx, pcfg, output.NewReporter(r, 0))
	if err == nil {
		err = c.writeExports(ctx, res)
	}
	rec.finish(ctx, runID, res, err)
	if err != nil {
		return nil, fmt.Errorf("run failed: %w", err)
	}

	out := runOutput(runID, res, pcfg)
	out.FragmentsOut = c.Cfg.FragmentsOut
	out.DuckDB = c.Cfg.Export.DuckDB

	if r.EffectiveMode() == output.ModeJSON {
		return out, r.JSON(out)
	}
	if runID != "" {
		r.Success(fmt.Sprintf("Run %s completed in %s", runID, res.Duration.Round(time.Millisecond)))
	} else {
		r.Success(fmt.Sprintf("Completed in %s", res.Duration.Round(time.Millisecond)))
	}
	return out, nil
}

func (c *CommandContext) writeExports(ctx context.Context, res *pipeline.Result) error {
	cfg := c.Cfg
	if cfg.FragmentsOut != "" {
		if err := export.SaveGeoJSON(cfg.FragmentsOut, res.Clip.Fragments, c.Logger); err != nil {
			return fmt.Errorf("failed to export fragments: %w", err)
		}
		c.Renderer.Success("Wrote " + cfg.FragmentsOut)
	}
	if cfg.Export.DuckDB != "" {
		t := export.Tables{
			Summary:         res.Summary,
			Clip:            res.Clip,
			CountyField:     cfg.CountyField,
			PopulationField: cfg.PopulationField,
		}
		if res.Clip.Fragments.HasField(wardLabelField) {
			t.WardField = wardLabelField
		}
		if err := export.DuckDB(ctx, cfg.Export.DuckDB, t, c.Logger); err != nil {
			return fmt.Errorf("failed to export duckdb: %w", err)
		}
		c.Renderer.Success("Wrote " + cfg.Export.DuckDB)
	}
	return nil
}

// runOutput flattens a result into the run command's JSON document.
func runOutput(runID string, res *pipeline.Result, pcfg pipeline.Config) *output.RunOutput {
	out := &output.RunOutput{
		RunID:      runID,
		Status:     "completed",
		Duration:   res.Duration.Round(time.Millisecond).String(),
		TargetCRS:  pcfg.TargetCRS,
		JoinRows:   len(res.Rows),
		Counties:   []output.CountyRow{},
		Straddlers: []output.StraddlerRow{},
		Fragments:  res.Clip.Fragments.Len(),
		ClipTotal:  res.Clip.Total,
		MapPath:    res.MapPath,
	}
	for _, ct := range outcome(res).Counties {
		out.Counties = append(out.Counties, output.CountyRow(ct))
	}
	for _, s := range res.Straddlers {
		out.Straddlers = append(out.Straddlers, output.StraddlerRow{Ward: s.WardIndex, Counties: s.Counties})
	}
	return out
}
