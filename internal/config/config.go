// Package config resolves layered run configuration: built-in defaults,
// overridden by an optional TOML file (github.com/BurntSushi/toml), in
// turn overridden by explicit CLI flags. Only the file layer is parsed
// here; cli.Context values are applied by the caller in cmd/logscope.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig mirrors the subset of pipeline.Options a TOML file may
// override. Every field is optional; zero values mean "not set in this
// file" and the default/CLI layer takes over.
type FileConfig struct {
	BufferSize     int      `toml:"bufferSize"`
	MaxMessageSize int      `toml:"maxMessageSize"`
	Concurrency    int      `toml:"concurrency"`
	InputFormat    string   `toml:"inputFormat"`
	OutputFormat   string   `toml:"outputFormat"`
	Color          string   `toml:"color"`
	Flatten        bool     `toml:"flatten"`
	HideEmpty      bool     `toml:"hideEmpty"`
	TimeFormat     string   `toml:"timeFormat"`
	Fields         []string `toml:"fields"`
	Filters        []string `toml:"filters"`
	Query          string   `toml:"query"`
	Level          string   `toml:"level"`
}

// Defaults returns the built-in baseline configuration.
func Defaults() FileConfig {
	return FileConfig{
		BufferSize:     64 * 1024,
		MaxMessageSize: 16 * 1024 * 1024,
		Concurrency:    4,
		InputFormat:    "auto",
		OutputFormat:   "text",
		Color:          "auto",
		TimeFormat:     "2006-01-02 15:04:05.000",
	}
}

// LoadFile reads and decodes a TOML config file at path. A missing path
// ("") is not an error; it returns the zero FileConfig.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return fc, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return fc, nil
}

// Merge layers override on top of base: any non-zero field in override
// replaces the corresponding field in base, except Filters, which are
// appended to base's Filters.
func Merge(base, override FileConfig) FileConfig {
	out := base
	if override.BufferSize != 0 {
		out.BufferSize = override.BufferSize
	}
	if override.MaxMessageSize != 0 {
		out.MaxMessageSize = override.MaxMessageSize
	}
	if override.Concurrency != 0 {
		out.Concurrency = override.Concurrency
	}
	if override.InputFormat != "" {
		out.InputFormat = override.InputFormat
	}
	if override.OutputFormat != "" {
		out.OutputFormat = override.OutputFormat
	}
	if override.Color != "" {
		out.Color = override.Color
	}
	if override.Flatten {
		out.Flatten = true
	}
	if override.HideEmpty {
		out.HideEmpty = true
	}
	if override.TimeFormat != "" {
		out.TimeFormat = override.TimeFormat
	}
	if len(override.Fields) > 0 {
		out.Fields = override.Fields
	}
	if len(override.Filters) > 0 {
		out.Filters = append(out.Filters, override.Filters...)
	}
	if override.Query != "" {
		out.Query = override.Query
	}
	if override.Level != "" {
		out.Level = override.Level
	}
	return out
}
