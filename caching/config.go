package caching

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v2"
)

// Config configures the event cache.
type Config struct {
	// The maximum total cost of the cached events, in bytes of event JSON.
	MaxCost int64 `yaml:"max_cost"`
	// The number of keys to track access frequency for. Ristretto
	// recommends ten times the number of items expected in a full cache.
	NumCounters int64 `yaml:"num_counters"`
	// How long an event stays in the cache. Zero means forever.
	MaxAge time.Duration `yaml:"max_age"`
	// Where to register the cache metrics. Metrics are not registered
	// anywhere when nil.
	Registerer prometheus.Registerer `yaml:"-"`
}

// Defaults sets every option to its default value.
func (c *Config) Defaults() {
	c.MaxCost = 64 * 1024 * 1024
	c.NumCounters = 1e6
	c.MaxAge = 0
}

// Verify checks the options, returning an error describing every invalid
// option.
func (c *Config) Verify() error {
	var problems []string
	if c.MaxCost <= 0 {
		problems = append(problems, fmt.Sprintf("invalid value for config key %q: %d", "max_cost", c.MaxCost))
	}
	if c.NumCounters <= 0 {
		problems = append(problems, fmt.Sprintf("invalid value for config key %q: %d", "num_counters", c.NumCounters))
	}
	if c.MaxAge < 0 {
		problems = append(problems, fmt.Sprintf("invalid value for config key %q: %s", "max_age", c.MaxAge))
	}
	if len(problems) > 0 {
		return fmt.Errorf("caching: bad config: %s", strings.Join(problems, ", "))
	}
	return nil
}

// ParseConfig parses YAML cache options. Options missing from the YAML
// keep their default values.
func ParseConfig(configData []byte) (*Config, error) {
	var c Config
	c.Defaults()
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return nil, fmt.Errorf("caching: failed to parse config: %w", err)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfig reads and parses a YAML cache config file.
func LoadConfig(configPath string) (*Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return ParseConfig(configData)
}
