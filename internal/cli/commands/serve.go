package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frances-ha/egm722/internal/pipeline"
	"github.com/frances-ha/egm722/internal/serve"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var noState bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Preview the map and county summary in a browser",
		Long: `Run the analysis and serve the rendered map, the county summary and the
clipped ward fragments over HTTP.

With --watch the analysis re-runs whenever an input layer changes and open
pages reload themselves.`,
		Example: `  # Serve on the default port
  countymap serve

  # Serve on port 9000 and re-run on changes
  countymap serve --port 9000 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, noState)
		},
	}

	cmd.Flags().IntP("port", "p", serve.DefaultPort, "Port to listen on")
	cmd.Flags().BoolP("watch", "w", false, "Re-run when an input layer changes")
	cmd.Flags().BoolVar(&noState, "no-state", false, "Do not record runs in the state database")

	return cmd
}

func runServe(cmd *cobra.Command, noState bool) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, cleanup, err := cc.recorder(ctx, noState)
	if err != nil {
		return err
	}
	defer cleanup()

	// Refresh runs sequentially, so one pending ID is enough.
	var runID string
	srv := serve.New(serve.Config{
		Pipeline: cc.Pipeline(),
		Port:     cc.Cfg.Serve.Port,
		Watch:    cc.Cfg.Serve.Watch,
		BeforeRun: func(ctx context.Context) {
			runID = rec.start(ctx)
		},
		OnRun: func(res *pipeline.Result, err error) {
			rec.finish(ctx, runID, res, err)
			if err != nil {
				r.Error(err.Error())
				return
			}
			r.Success(fmt.Sprintf("Refreshed: %d counties, %d fragments", len(res.Summary), res.Clip.Fragments.Len()))
		},
		Logger: cc.Logger,
	})

	r.Muted(fmt.Sprintf("Serving on http://localhost:%d (Ctrl+C to stop)", cc.Cfg.Serve.Port))
	return srv.Serve(ctx)
}
