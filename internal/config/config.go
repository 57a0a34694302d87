package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/txnimport/internal/importer"
	"github.com/cleared-dev/txnimport/internal/ledger"
	"github.com/cleared-dev/txnimport/internal/model"
)

// FileName is the config file looked up in the working directory.
const FileName = "txnimport.yaml"

// Config represents the top-level txnimport.yaml configuration.
type Config struct {
	Import         ImportConfig                   `yaml:"import"`
	ColumnMappings map[string]model.ColumnMapping `yaml:"column_mappings,omitempty"`
	Accounts       []ledger.Account               `yaml:"accounts,omitempty"`
	Audit          AuditConfig                    `yaml:"audit"`
	Log            LogConfig                      `yaml:"log"`
}

// ImportConfig controls parsing.
type ImportConfig struct {
	Dir            string         `yaml:"dir"`
	DateOrder      string         `yaml:"date_order"` // mdy, dmy or ymd
	PayeeMaxLength int            `yaml:"payee_max_length"`
	MaxFileSizeMB  map[string]int `yaml:"max_file_size_mb,omitempty"`
	Workers        int            `yaml:"workers"`
}

// AuditConfig controls the import run log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Load reads a txnimport.yaml file from disk. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			Dir:            "import",
			DateOrder:      string(importer.OrderMDY),
			PayeeMaxLength: importer.DefaultPayeeMaxLength,
			Workers:        4,
		},
		Audit: AuditConfig{
			Enabled: true,
			Dir:     "logs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks values Load cannot repair.
func (c *Config) Validate() error {
	switch importer.DateOrder(strings.ToLower(c.Import.DateOrder)) {
	case importer.OrderMDY, importer.OrderDMY, importer.OrderYMD:
	default:
		return fmt.Errorf("import.date_order %q must be mdy, dmy or ymd", c.Import.DateOrder)
	}
	if c.Import.Workers < 0 {
		return fmt.Errorf("import.workers must not be negative")
	}
	if c.Import.PayeeMaxLength < 0 {
		return fmt.Errorf("import.payee_max_length must not be negative")
	}
	for format, mb := range c.Import.MaxFileSizeMB {
		if mb <= 0 {
			return fmt.Errorf("import.max_file_size_mb.%s must be positive", format)
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", c.Log.Format)
	}
	return nil
}

// ImportOptions converts the import section to parser options.
func (c *Config) ImportOptions() importer.Options {
	opts := importer.Options{
		DateOrder:      importer.DateOrder(strings.ToLower(c.Import.DateOrder)),
		PayeeMaxLength: c.Import.PayeeMaxLength,
		Workers:        c.Import.Workers,
	}
	if len(c.Import.MaxFileSizeMB) > 0 {
		opts.MaxFileSize = make(map[string]int64, len(c.Import.MaxFileSizeMB))
		for format, mb := range c.Import.MaxFileSizeMB {
			opts.MaxFileSize[strings.ToLower(format)] = int64(mb) << 20
		}
	}
	return opts
}

// Mapping returns the named column mapping. An empty name returns nil.
func (c *Config) Mapping(name string) (*model.ColumnMapping, error) {
	if name == "" {
		return nil, nil
	}
	m, ok := c.ColumnMappings[name]
	if !ok {
		names := make([]string, 0, len(c.ColumnMappings))
		for n := range c.ColumnMappings {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("column mapping %q not defined (have: %s)", name, strings.Join(names, ", "))
	}
	return &m, nil
}
