package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/frances-ha/egm722/internal/cli/config"
	"github.com/frances-ha/egm722/internal/cli/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const configHeader = `countymap configuration.
Relative paths resolve against this file's directory. Every key can be
overridden with a COUNTYMAP_ environment variable (map.dpi becomes
COUNTYMAP_MAP__DPI) or the matching command-line flag.`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default countymap.yaml",
		Long: `Initialize a countymap project with a configuration file holding every
default, and a data_files/ directory for the counties and wards layers.`,
		Example: `  # Initialize in the current directory
  countymap init

  # Initialize in a new directory
  countymap init ni-wards

  # Overwrite an existing countymap.yaml
  countymap init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(NewCommandContext(cmd).Renderer, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	configPath := filepath.Join(dir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", configPath, err)
	}

	dataDir := filepath.Join(dir, filepath.Dir(config.DefaultCounties))
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dataDir, err)
	}

	body, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.Success("Created " + configPath)
	r.Success("Created " + dataDir + "/")
	r.Muted(fmt.Sprintf("Copy %s and %s (with their .dbf, .shx and .prj files) into %s, then run: countymap run",
		filepath.Base(config.DefaultCounties), filepath.Base(config.DefaultWards), dataDir))
	return nil
}

// defaultConfigYAML renders config.Defaults with a header comment.
func defaultConfigYAML() ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(config.Defaults()); err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	doc.HeadComment = configHeader

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	return out, nil
}
