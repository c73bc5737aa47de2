package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a run configuration file, applies defaults and validates it.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	c.FilePath = absPath

	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", filename, err)
	}

	return &c, nil
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.ERP.DateFormat == "" {
		c.ERP.DateFormat = DateLayout
	}

	if c.Browser.ReadyTimeout <= 0 {
		c.Browser.ReadyTimeout = DefaultReadyTimeout
	}
	if c.Browser.ActionTimeout <= 0 {
		c.Browser.ActionTimeout = DefaultActionTimeout
	}
	if c.Browser.PollInterval <= 0 {
		c.Browser.PollInterval = DefaultPollInterval
	}

	if len(c.Workbook.Patterns) == 0 {
		c.Workbook.Patterns = []string{"*.xlsx", "*.xls"}
	}
	if c.Workbook.DownloadTimeout <= 0 {
		c.Workbook.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.Workbook.HeaderRows <= 0 {
		c.Workbook.HeaderRows = DefaultHeaderRows
	}
	if c.Workbook.Transform.Timeout <= 0 {
		c.Workbook.Transform.Timeout = DefaultTransformTimeout
	}

	if c.Approval.WindowTimeout <= 0 {
		c.Approval.WindowTimeout = DefaultWindowTimeout
	}
}
