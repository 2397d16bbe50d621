// Package config loads countymap settings from defaults, countymap.yaml,
// COUNTYMAP_* environment variables and command-line flags.
package config

import (
	"github.com/frances-ha/egm722/internal/project"
	"github.com/frances-ha/egm722/internal/render"
)

// Config holds all CLI configuration options.
type Config struct {
	Counties        string `koanf:"counties" yaml:"counties"`
	Wards           string `koanf:"wards" yaml:"wards"`
	CountyField     string `koanf:"county_field" yaml:"county_field"`
	PopulationField string `koanf:"population_field" yaml:"population_field"`
	// SourceCRS is assumed for shapefiles that ship without a .prj.
	SourceCRS string `koanf:"source_crs" yaml:"source_crs"`
	TargetCRS string `koanf:"target_crs" yaml:"target_crs"`

	Map          MapConfig    `koanf:"map" yaml:"map"`
	FragmentsOut string       `koanf:"fragments_out" yaml:"fragments_out,omitempty"`
	Export       ExportConfig `koanf:"export" yaml:"export,omitempty"`
	Serve        ServeConfig  `koanf:"serve" yaml:"serve"`

	StatePath    string `koanf:"state_path" yaml:"state_path"`
	Verbose      bool   `koanf:"verbose" yaml:"verbose"`
	LogFormat    string `koanf:"log_format" yaml:"log_format"`
	OutputFormat string `koanf:"output" yaml:"output"`

	// BaseDir is where relative paths were resolved from: the directory of
	// the config file, or the working directory without one.
	BaseDir string `koanf:"-" yaml:"-"`
}

// MapConfig controls the rendered choropleth.
type MapConfig struct {
	Output   string  `koanf:"output" yaml:"output"`
	DPI      int     `koanf:"dpi" yaml:"dpi"`
	VMin     float64 `koanf:"vmin" yaml:"vmin"`
	VMax     float64 `koanf:"vmax" yaml:"vmax"`
	Width    float64 `koanf:"width" yaml:"width"`
	Height   float64 `koanf:"height" yaml:"height"`
	Colormap string  `koanf:"colormap" yaml:"colormap"`
}

// ExportConfig holds optional analytical exports.
type ExportConfig struct {
	DuckDB string `koanf:"duckdb" yaml:"duckdb,omitempty"`
}

// ServeConfig holds preview server settings.
type ServeConfig struct {
	Port  int  `koanf:"port" yaml:"port"`
	Watch bool `koanf:"watch" yaml:"watch"`
}

// Default configuration values.
const (
	DefaultConfigFile = "countymap.yaml"
	DefaultCounties   = "data_files/Counties.shp"
	DefaultWards      = "data_files/NI_Wards.shp"
	DefaultMapOutput  = "sample_map.png"
	DefaultStateFile  = ".countymap/state.db"
	DefaultLogFormat  = "text"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultPort       = 8722
	EnvPrefix         = "COUNTYMAP_"
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Counties:        DefaultCounties,
		Wards:           DefaultWards,
		CountyField:     "CountyName",
		PopulationField: render.DefaultValueField,
		SourceCRS:       project.Geographic,
		TargetCRS:       project.DefaultTarget,
		Map: MapConfig{
			Output:   DefaultMapOutput,
			DPI:      render.DefaultDPI,
			VMin:     render.DefaultVMin,
			VMax:     render.DefaultVMax,
			Width:    render.DefaultSize,
			Height:   render.DefaultSize,
			Colormap: render.DefaultColormap,
		},
		Serve:        ServeConfig{Port: DefaultPort},
		StatePath:    DefaultStateFile,
		LogFormat:    DefaultLogFormat,
		OutputFormat: DefaultOutput,
	}
}

// defaultMap flattens Defaults into koanf keys.
func defaultMap() map[string]any {
	d := Defaults()
	return map[string]any{
		"counties":         d.Counties,
		"wards":            d.Wards,
		"county_field":     d.CountyField,
		"population_field": d.PopulationField,
		"source_crs":       d.SourceCRS,
		"target_crs":       d.TargetCRS,
		"map.output":       d.Map.Output,
		"map.dpi":          d.Map.DPI,
		"map.vmin":         d.Map.VMin,
		"map.vmax":         d.Map.VMax,
		"map.width":        d.Map.Width,
		"map.height":       d.Map.Height,
		"map.colormap":     d.Map.Colormap,
		"fragments_out":    "",
		"export.duckdb":    "",
		"serve.port":       d.Serve.Port,
		"serve.watch":      false,
		"state_path":       d.StatePath,
		"verbose":          false,
		"log_format":       d.LogFormat,
		"output":           d.OutputFormat,
	}
}
