// Package covconfig provides configuration loading for covmap.
//
// Configuration comes from a TOML file, either specified explicitly with
// the -config flag or via the COVMAP_CONFIG environment variable. CLI
// flags always override config file values.
package covconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// EnvConfig is the environment variable for specifying a config file path.
const EnvConfig = "COVMAP_CONFIG"

// Config represents the covmap configuration.
type Config struct {
	// Report contains output settings.
	Report ReportConfig `toml:"report"`

	// Filters contains class name filtering patterns.
	Filters FilterConfig `toml:"filters"`
}

// ReportConfig contains output settings.
type ReportConfig struct {
	// XML is the structured document output path.
	XML string `toml:"xml"`

	// HTML is the annotated-source site output directory.
	HTML string `toml:"html"`

	// Title heads the HTML report.
	Title string `toml:"title"`

	// Sources lists source root directories, tried in order.
	Sources []string `toml:"sources"`
}

// FilterConfig contains class name filtering patterns. Wildcard '*'
// patterns over fully qualified names; excludes take precedence.
type FilterConfig struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// DefaultConfig returns an empty configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Discover loads the configuration named by the COVMAP_CONFIG environment
// variable, or returns defaults when it is unset.
func Discover() (*Config, string, error) {
	envPath := os.Getenv(EnvConfig)
	if envPath == "" {
		return DefaultConfig(), "", nil
	}
	cfg, err := Load(envPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
	}
	return cfg, envPath, nil
}
