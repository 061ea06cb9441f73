package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	ModeTopK   = "top_k"
	ModeSample = "sample"
)

type Config struct {
	Input         InputConfig         `yaml:"input"`
	Selection     SelectionConfig     `yaml:"selection"`
	Decomposition DecompositionConfig `yaml:"decomposition"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Hermes        HermesConfig        `yaml:"hermes"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type InputConfig struct {
	Preferences string `yaml:"preferences"`
	Items       string `yaml:"items"`
}

type SelectionConfig struct {
	Mode string `yaml:"mode"` // top_k or sample
	K    int    `yaml:"k"`
	Seed int64  `yaml:"seed"` // 0 picks a fresh seed per run
}

type DecompositionConfig struct {
	Tolerance float64 `yaml:"tolerance"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
	RateLimit   int    `yaml:"rate_limit_per_minute"`
	// Request limits for POST /api/v1/allocations. Decomposition cost grows
	// with the square of the agent count.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	MaxAgents    int   `yaml:"max_agents"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type MetricsConfig struct {
	// Textfile, when set, receives a node-exporter textfile after each batch run.
	Textfile string `yaml:"textfile"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Input: InputConfig{
			Preferences: "prefs.csv",
			Items:       "goods.txt",
		},
		Selection: SelectionConfig{
			Mode: ModeTopK,
			K:    5,
		},
		Decomposition: DecompositionConfig{
			Tolerance: 1e-6,
		},
		Server: ServerConfig{
			Port:         8700,
			MetricsPort:  8701,
			RateLimit:    120,
			MaxBodyBytes: 1 << 20,
			MaxAgents:    200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	switch c.Selection.Mode {
	case ModeTopK, ModeSample:
	default:
		return fmt.Errorf("selection.mode must be %q or %q, got %q", ModeTopK, ModeSample, c.Selection.Mode)
	}
	if c.Selection.K < 0 {
		return fmt.Errorf("selection.k must not be negative, got %d", c.Selection.K)
	}
	if c.Decomposition.Tolerance <= 0 || c.Decomposition.Tolerance >= 1 {
		return fmt.Errorf("decomposition.tolerance must be in (0, 1), got %g", c.Decomposition.Tolerance)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.MaxAgents <= 0 {
		return fmt.Errorf("server.max_agents must be positive, got %d", c.Server.MaxAgents)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ALLOT_PREFERENCES"); v != "" {
		cfg.Input.Preferences = v
	}
	if v := os.Getenv("ALLOT_ITEMS"); v != "" {
		cfg.Input.Items = v
	}
	if v := os.Getenv("ALLOT_MODE"); v != "" {
		cfg.Selection.Mode = v
	}
	if v := os.Getenv("ALLOT_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Selection.K = n
		}
	}
	if v := os.Getenv("ALLOT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Selection.Seed = n
		}
	}
	if v := os.Getenv("ALLOT_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Decomposition.Tolerance = f
		}
	}
	if v := os.Getenv("ALLOT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("ALLOT_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("ALLOT_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("ALLOT_MAX_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxAgents = n
		}
	}
	if v := os.Getenv("ALLOT_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("ALLOT_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ALLOT_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("ALLOT_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v := os.Getenv("ALLOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALLOT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
