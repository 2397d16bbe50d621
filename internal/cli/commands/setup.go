// Package commands implements the countymap subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/frances-ha/egm722/internal/cli/config"
	"github.com/frances-ha/egm722/internal/cli/output"
	"github.com/frances-ha/egm722/internal/pipeline"
	"github.com/frances-ha/egm722/internal/render"
	"github.com/frances-ha/egm722/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the config and logger stored by the root
// command and builds a renderer for the configured output mode.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.FromContext(ctx)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(ctx),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// Pipeline builds the pipeline configuration from the CLI configuration.
func (c *CommandContext) Pipeline() pipeline.Config {
	cfg := c.Cfg
	return pipeline.Config{
		CountiesPath:    cfg.Counties,
		WardsPath:       cfg.Wards,
		CountyField:     cfg.CountyField,
		PopulationField: cfg.PopulationField,
		SourceCRS:       cfg.SourceCRS,
		TargetCRS:       cfg.TargetCRS,
		MapPath:         cfg.Map.Output,
		Map: render.Options{
			Colormap: cfg.Map.Colormap,
			VMin:     cfg.Map.VMin,
			VMax:     cfg.Map.VMax,
			Width:    cfg.Map.Width,
			Height:   cfg.Map.Height,
			DPI:      cfg.Map.DPI,
		},
		Logger: c.Logger,
	}
}

// OpenStore opens the run history database.
func (c *CommandContext) OpenStore(ctx context.Context) (*state.SQLiteStore, error) {
	store, err := state.Open(ctx, c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return store, nil
}

// outcome converts a pipeline result into what the state store records.
func outcome(res *pipeline.Result) state.Outcome {
	lengths := make(map[string]analysis.CountyLength, len(res.Clip.PerCounty))
	for _, cl := range res.Clip.PerCounty {
		lengths[cl.County] = cl
	}
	out := state.Outcome{
		MapPath:   res.MapPath,
		JoinRows:  len(res.Rows),
		Fragments: res.Clip.Fragments.Len(),
		ClipTotal: res.Clip.Total,
		Counties:  make([]state.CountyTotal, 0, len(res.Summary)),
	}
	for _, row := range res.Summary {
		out.Counties = append(out.Counties, state.CountyTotal{
			County:         row.County,
			Population:     row.Total,
			Wards:          row.Wards,
			BoundaryLength: lengths[row.County].Length,
		})
	}
	return out
}

// recorder tracks pipeline runs in the state store. A nil recorder records
// nothing.
type recorder struct {
	store  *state.SQLiteStore
	input  state.RunInput
	logger *slog.Logger
}

func newRecorder(store *state.SQLiteStore, cfg pipeline.Config, logger *slog.Logger) *recorder {
	if store == nil {
		return nil
	}
	return &recorder{
		store:  store,
		input:  state.RunInput{CountiesPath: cfg.CountiesPath, WardsPath: cfg.WardsPath, TargetCRS: cfg.TargetCRS},
		logger: logger,
	}
}

// start creates a running record and returns its ID, or empty.
func (r *recorder) start(ctx context.Context) string {
	if r == nil {
		return ""
	}
	run, err := r.store.CreateRun(ctx, r.input)
	if err != nil {
		r.logger.Warn("failed to record run", "error", err)
		return ""
	}
	return run.ID
}

// finish marks the run completed or failed. History is best effort, so
// failures are logged rather than returned.
func (r *recorder) finish(ctx context.Context, id string, res *pipeline.Result, runErr error) {
	if r == nil || id == "" {
		return
	}
	// The run context may already be cancelled; the record should still land.
	ctx = context.WithoutCancel(ctx)
	var err error
	if runErr != nil {
		err = r.store.FailRun(ctx, id, runErr)
	} else {
		err = r.store.CompleteRun(ctx, id, outcome(res))
	}
	if err != nil {
		r.logger.Warn("failed to finish run record", "run_id", id, "error", err)
	}
}
