// Package cli provides the command-line interface for countymap.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/frances-ha/egm722/internal/cli/commands"
	"github.com/frances-ha/egm722/internal/cli/config"
	"github.com/frances-ha/egm722/internal/cli/output"
	"github.com/frances-ha/egm722/internal/project"
	"github.com/frances-ha/egm722/internal/render"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "countymap",
		Short: "countymap - county and ward population mapping",
		Long: `countymap loads Northern Ireland county and ward boundaries, reprojects
them, joins wards to the counties they intersect, totals population per
county, measures ward boundaries clipped to each county and renders a
choropleth map of ward population.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			// Local flags such as serve --port take part too.
			loaded, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg := loaded.Config

			logger := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
			if loaded.File != "" {
				logger.Info("using config file", "path", loaded.File)
			}

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go, GEOS and PROJ
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./countymap.yaml, searched upward)")
	pf.String("counties", "", "Counties layer (.shp or .geojson)")
	pf.String("wards", "", "Wards layer (.shp or .geojson)")
	pf.String("county-field", "", "County name attribute")
	pf.String("population-field", "", "Ward population attribute")
	pf.String("source-crs", "", "CRS assumed for shapefiles without a .prj")
	pf.String("target-crs", "", "CRS both layers are projected to (default "+project.DefaultTarget+")")
	pf.String("map", "", "Map output path (.png, .svg, .pdf, .jpg)")
	pf.Int("dpi", render.DefaultDPI, "Map resolution")
	pf.Float64("vmin", render.DefaultVMin, "Lower end of the colour range")
	pf.Float64("vmax", render.DefaultVMax, "Upper end of the colour range")
	pf.Float64("width", render.DefaultSize, "Map width in inches")
	pf.Float64("height", render.DefaultSize, "Map height in inches")
	pf.String("colormap", render.DefaultColormap, "Colour map")
	pf.String("fragments", "", "Write clipped ward fragments to this GeoJSON file")
	pf.String("duckdb", "", "Write county and fragment tables to this DuckDB file")
	pf.String("state", "", "Path to state database")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.String("log-format", "", "Log format (text|json)")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("colormap", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return render.Colormaps(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger logs to w at debug level when verbose and warn level otherwise.
func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for countymap.

To load completions:

Bash:
  $ source <(countymap completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ countymap completion bash > /etc/bash_completion.d/countymap
  # macOS:
  $ countymap completion bash > $(brew --prefix)/etc/bash_completion.d/countymap

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ countymap completion zsh > "${fpath[1]}/_countymap"

Fish:
  $ countymap completion fish | source

  # To load completions for each session, execute once:
  $ countymap completion fish > ~/.config/fish/completions/countymap.fish

PowerShell:
  PS> countymap completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
