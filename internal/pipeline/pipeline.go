// Package pipeline sequences one analysis run: load both layers, reproject
// them, join wards to counties, aggregate population, clip wards per county
// and render the map.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/frances-ha/egm722/internal/feature"
	"github.com/frances-ha/egm722/internal/loader"
	"github.com/frances-ha/egm722/internal/project"
	"github.com/frances-ha/egm722/internal/render"
	"golang.org/x/sync/errgroup"
)

// Layer names passed to the Reporter.
const (
	LayerCounties = "counties"
	LayerWards    = "wards"
)

// Config holds the inputs of one run.
type Config struct {
	CountiesPath string
	WardsPath    string
	// CountyField names the county attribute; PopulationField the ward value.
	CountyField     string
	PopulationField string
	// SourceCRS is assumed for shapefiles without a .prj.
	SourceCRS string
	TargetCRS string
	// MapPath is where the map is written. Empty skips rendering.
	MapPath string
	Map     render.Options
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.CountyField == "" {
		c.CountyField = "CountyName"
	}
	if c.PopulationField == "" {
		c.PopulationField = "Population"
	}
	if c.TargetCRS == "" {
		c.TargetCRS = project.DefaultTarget
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Reporter receives each stage's output as the run progresses.
type Reporter interface {
	Loaded(layer string, c *feature.Collection)
	Projected(layer string, c *feature.Collection)
	Joined(rows []analysis.JoinRow, joined *feature.Collection)
	Summarized(s analysis.Summary)
	Straddling(st []analysis.Straddler)
	Clipped(res *analysis.ClipResult)
	Rendered(path string, fig *render.Figure)
}

// NopReporter ignores every stage.
type NopReporter struct{}

func (NopReporter) Loaded(string, *feature.Collection) {}
func (NopReporter) Projected(string, *feature.Collection) {}
func (NopReporter) Joined([]analysis.JoinRow, *feature.Collection) {}
func (NopReporter) Summarized(analysis.Summary) {}
func (NopReporter) Straddling([]analysis.Straddler) {}
func (NopReporter) Clipped(*analysis.ClipResult) {}
func (NopReporter) Rendered(string, *render.Figure) {}

// Result carries everything a run produced.
type Result struct {
	// Counties and Wards are the reprojected layers.
	Counties   *feature.Collection
	Wards      *feature.Collection
	Rows       []analysis.JoinRow
	Joined     *feature.Collection
	Summary    analysis.Summary
	Straddlers []analysis.Straddler
	Clip       *analysis.ClipResult
	// Figure and MapPath are empty when rendering was skipped.
	Figure   *render.Figure
	MapPath  string
	Duration time.Duration
}

// Run executes the whole analysis. The first failing stage aborts the run.
func Run(ctx context.Context, cfg Config, rep Reporter) (*Result, error) {
	cfg.defaults()
	if rep == nil {
		rep = NopReporter{}
	}
	logger := cfg.Logger
	start := time.Now()

	counties, wards, err := loadBoth(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rep.Loaded(LayerCounties, counties)
	rep.Loaded(LayerWards, wards)

	proj := project.New(cfg.TargetCRS, logger)
	defer proj.Close()

	res := &Result{}
	if res.Counties, err = proj.Reproject(counties); err != nil {
		return nil, fmt.Errorf("reproject counties: %w", err)
	}
	rep.Projected(LayerCounties, res.Counties)
	if res.Wards, err = proj.Reproject(wards); err != nil {
		return nil, fmt.Errorf("reproject wards: %w", err)
	}
	rep.Projected(LayerWards, res.Wards)

	for _, check := range []struct {
		c     *feature.Collection
		field string
	}{
		{res.Counties, cfg.CountyField},
		{res.Wards, cfg.PopulationField},
	} {
		if !check.c.HasField(check.field) {
			return nil, fmt.Errorf("%w: %s", feature.ErrFieldNotFound, check.field)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Rows, err = analysis.Join(res.Wards, res.Counties); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	res.Joined = analysis.JoinCollection(res.Rows, res.Wards, res.Counties)
	logger.Info("joined wards to counties", "rows", len(res.Rows), "wards", res.Wards.Len())
	rep.Joined(res.Rows, res.Joined)

	if res.Summary, err = analysis.Aggregate(res.Rows, cfg.CountyField, cfg.PopulationField); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	rep.Summarized(res.Summary)

	if res.Straddlers, err = analysis.Straddlers(res.Rows, cfg.CountyField); err != nil {
		return nil, fmt.Errorf("straddlers: %w", err)
	}
	rep.Straddling(res.Straddlers)

	res.Clip, err = analysis.ClipByCounty(ctx, res.Wards, res.Counties, analysis.ClipOptions{
		CountyField: cfg.CountyField,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	logger.Info("clipped wards", "fragments", res.Clip.Fragments.Len(), "total", res.Clip.Total)
	rep.Clipped(res.Clip)

	if cfg.MapPath != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts := cfg.Map
		opts.ValueField = cfg.PopulationField
		opts.Projector = proj
		opts.Logger = logger
		fig, err := render.Map(res.Wards, res.Counties, opts)
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		if err := fig.Save(cfg.MapPath); err != nil {
			return nil, fmt.Errorf("save map: %w", err)
		}
		res.Figure = fig
		res.MapPath = cfg.MapPath
		logger.Info("wrote map", "path", cfg.MapPath)
		rep.Rendered(cfg.MapPath, fig)
	}

	res.Duration = time.Since(start)
	return res, nil
}

// loadBoth reads the two inputs concurrently; the first error cancels the other.
func loadBoth(ctx context.Context, cfg Config) (counties, wards *feature.Collection, err error) {
	opts := loader.Options{FallbackCRS: cfg.SourceCRS, Logger: cfg.Logger}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := loader.Load(gctx, cfg.CountiesPath, opts)
		if err != nil {
			return fmt.Errorf("load counties: %w", err)
		}
		counties = c
		return nil
	})
	g.Go(func() error {
		c, err := loader.Load(gctx, cfg.WardsPath, opts)
		if err != nil {
			return fmt.Errorf("load wards: %w", err)
		}
		wards = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return counties, wards, nil
}
