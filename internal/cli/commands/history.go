package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/frances-ha/egm722/internal/cli/output"
	"github.com/frances-ha/egm722/internal/state"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs or show one run's county totals",
		Example: `  # List the 20 most recent runs
  countymap history

  # Show the county totals of one run
  countymap history 3f1c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryShow(cmd, args[0])
			}
			return runHistoryList(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func runHistoryList(cmd *cobra.Command, opts *HistoryOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer
	ctx := cmd.Context()

	store, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		records := make([]output.RunRecord, 0, len(runs))
		for _, run := range runs {
			records = append(records, runRecord(run, nil))
		}
		return r.JSON(records)
	}

	r.Header(1, "Runs")
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			duration(run),
			fmt.Sprintf("%d", run.JoinRows),
			output.FormatNumber(run.ClipTotal, 1),
		})
	}
	r.Table([]string{"ID", "Status", "Started", "Duration", "Join rows", "Clip total"}, rows, 5, 6)
	return nil
}

func runHistoryShow(cmd *cobra.Command, id string) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer
	ctx := cmd.Context()

	store, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(ctx, id)
	if errors.Is(err, state.ErrRunNotFound) {
		return fmt.Errorf("no run with id %s", id)
	}
	if err != nil {
		return err
	}
	totals, err := store.CountyTotals(ctx, id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runRecord(run, totals))
	}

	r.Header(1, "Run "+run.ID)
	r.KeyValue("Status", string(run.Status))
	r.KeyValue("Counties", run.CountiesPath)
	r.KeyValue("Wards", run.WardsPath)
	r.KeyValue("Target CRS", run.TargetCRS)
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	r.KeyValue("Duration", duration(run))
	if run.MapPath != "" {
		r.KeyValue("Map", run.MapPath)
	}
	if run.Error != "" {
		r.Error(run.Error)
		return nil
	}

	rows := make([][]string, 0, len(totals))
	var population float64
	for _, ct := range totals {
		population += ct.Population
		rows = append(rows, []string{
			r.Title(ct.County),
			fmt.Sprintf("%d", ct.Wards),
			output.FormatNumber(ct.Population, 0),
			output.FormatNumber(ct.BoundaryLength, 1),
		})
	}
	if len(rows) > 0 {
		rows = append(rows, []string{"Total", "", output.FormatNumber(population, 0), output.FormatNumber(run.ClipTotal, 1)})
	}
	r.Table([]string{"County", "Wards", "Population", "Boundary length"}, rows, 2, 3, 4)
	return nil
}

func runRecord(run *state.Run, totals []state.CountyTotal) output.RunRecord {
	rec := output.RunRecord{
		ID:           run.ID,
		Status:       string(run.Status),
		CountiesPath: run.CountiesPath,
		WardsPath:    run.WardsPath,
		TargetCRS:    run.TargetCRS,
		MapPath:      run.MapPath,
		JoinRows:     run.JoinRows,
		Fragments:    run.Fragments,
		ClipTotal:    run.ClipTotal,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		Error:        run.Error,
	}
	for _, ct := range totals {
		rec.Counties = append(rec.Counties, output.CountyRow(ct))
	}
	return rec
}

func duration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}
