// Package config loads the hivemind configuration from defaults, an optional
// YAML file and HIVEMIND_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. HIVEMIND_LISTEN.
const EnvPrefix = "HIVEMIND"

// Config represents the complete hivemind configuration
type Config struct {
	Listen    string          `mapstructure:"listen" yaml:"listen"`
	APIAddr   string          `mapstructure:"api_addr" yaml:"api_addr"`
	DBPath    string          `mapstructure:"db_path" yaml:"db_path"`
	Resources ResourcesConfig `mapstructure:"resources" yaml:"resources"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
}

// ResourcesConfig controls zone thresholds and agent budgets
type ResourcesConfig struct {
	CPUWarning     float64       `mapstructure:"cpu_warning" yaml:"cpu_warning"`
	CPUDanger      float64       `mapstructure:"cpu_danger" yaml:"cpu_danger"`
	RAMWarning     float64       `mapstructure:"ram_warning" yaml:"ram_warning"`
	RAMDanger      float64       `mapstructure:"ram_danger" yaml:"ram_danger"`
	MaxAgents      int           `mapstructure:"max_agents" yaml:"max_agents"`
	WarningAgents  int           `mapstructure:"warning_agents" yaml:"warning_agents"`
	DangerAgents   int           `mapstructure:"danger_agents" yaml:"danger_agents"`
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	SampleTimeout  time.Duration `mapstructure:"sample_timeout" yaml:"sample_timeout"`
}

// RetentionConfig bounds finished state kept in memory and on disk
type RetentionConfig struct {
	// MaxTerminalTasks is how many finished tasks stay in the registry (0 = unbounded)
	MaxTerminalTasks int `mapstructure:"max_terminal_tasks" yaml:"max_terminal_tasks"`
	// MaxHistory is how many history records stay in memory (0 = unbounded)
	MaxHistory int `mapstructure:"max_history" yaml:"max_history"`
	// MaxAge evicts finished tasks and history older than this (0 = never)
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
	// SweepInterval is how often retention runs
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// HistoryConfig controls history persistence
type HistoryConfig struct {
	// Persist writes every history record to the database
	Persist bool `mapstructure:"persist" yaml:"persist"`
	// WarmStartLimit is how many persisted records are loaded at startup
	WarmStartLimit int `mapstructure:"warm_start_limit" yaml:"warm_start_limit"`
}

// Default returns the default configuration.
func Default() *Config {
	dbPath := filepath.Join(".hivemind", "hivemind.db")
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".hivemind", "hivemind.db")
	}

	return &Config{
		Listen:  "127.0.0.1:7477",
		APIAddr: "http://127.0.0.1:7477",
		DBPath:  dbPath,
		Resources: ResourcesConfig{
			CPUWarning:     0.60,
			CPUDanger:      0.80,
			RAMWarning:     0.70,
			RAMDanger:      0.85,
			MaxAgents:      5,
			WarningAgents:  3,
			DangerAgents:   1,
			SampleInterval: 500 * time.Millisecond,
			SampleTimeout:  2 * time.Second,
		},
		Retention: RetentionConfig{
			MaxTerminalTasks: 1000,
			MaxHistory:       10000,
			MaxAge:           7 * 24 * time.Hour,
			SweepInterval:    time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		History: HistoryConfig{
			Persist:        true,
			WarmStartLimit: 1000,
		},
	}
}

// SetDefaults registers every default value on v so environment variables
// can override keys that no config file mentions.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("listen", d.Listen)
	v.SetDefault("api_addr", d.APIAddr)
	v.SetDefault("db_path", d.DBPath)

	v.SetDefault("resources.cpu_warning", d.Resources.CPUWarning)
	v.SetDefault("resources.cpu_danger", d.Resources.CPUDanger)
	v.SetDefault("resources.ram_warning", d.Resources.RAMWarning)
	v.SetDefault("resources.ram_danger", d.Resources.RAMDanger)
	v.SetDefault("resources.max_agents", d.Resources.MaxAgents)
	v.SetDefault("resources.warning_agents", d.Resources.WarningAgents)
	v.SetDefault("resources.danger_agents", d.Resources.DangerAgents)
	v.SetDefault("resources.sample_interval", d.Resources.SampleInterval)
	v.SetDefault("resources.sample_timeout", d.Resources.SampleTimeout)

	v.SetDefault("retention.max_terminal_tasks", d.Retention.MaxTerminalTasks)
	v.SetDefault("retention.max_history", d.Retention.MaxHistory)
	v.SetDefault("retention.max_age", d.Retention.MaxAge)
	v.SetDefault("retention.sweep_interval", d.Retention.SweepInterval)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("history.persist", d.History.Persist)
	v.SetDefault("history.warm_start_limit", d.History.WarmStartLimit)
}

// Load reads the configuration. An explicit path must exist; without one the
// default $HOME/.hivemind/config.yaml is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hivemind"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values that can't work.
func (c *Config) Validate() error {
	r := c.Resources
	if !validPair(r.CPUWarning, r.CPUDanger) {
		return fmt.Errorf("resources: cpu thresholds must satisfy 0 < warning < danger <= 1")
	}
	if !validPair(r.RAMWarning, r.RAMDanger) {
		return fmt.Errorf("resources: ram thresholds must satisfy 0 < warning < danger <= 1")
	}
	if r.MaxAgents < 1 || r.WarningAgents < 1 || r.DangerAgents < 1 {
		return fmt.Errorf("resources: agent budgets must be at least 1")
	}
	if r.SampleInterval <= 0 || r.SampleTimeout <= 0 {
		return fmt.Errorf("resources: sample interval and timeout must be positive")
	}
	if r.SampleTimeout <= r.SampleInterval {
		return fmt.Errorf("resources: sample timeout must be longer than the sample interval")
	}

	t := c.Retention
	if t.MaxTerminalTasks < 0 || t.MaxHistory < 0 || t.MaxAge < 0 {
		return fmt.Errorf("retention: bounds must not be negative")
	}
	if t.SweepInterval <= 0 {
		return fmt.Errorf("retention: sweep interval must be positive")
	}
	if c.History.WarmStartLimit < 0 {
		return fmt.Errorf("history: warm start limit must not be negative")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics: path must start with /")
	}

	return nil
}

func validPair(warning, danger float64) bool {
	return warning > 0 && warning < danger && danger <= 1
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
