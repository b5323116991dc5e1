// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database names accepted by --databases and used as metric labels.
const (
	Bohrium  = "bohrium"
	MOFdb    = "mofdb"
	OpenLAM  = "openlam"
	Optimade = "optimade"
)

// AllDatabases lists every adapter in registration order.
var AllDatabases = []string{Bohrium, MOFdb, OpenLAM, Optimade}

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Logging    LoggingConfig  `yaml:"logging"`
	OutputRoot string         `yaml:"output_root"`
	Databases  []string       `yaml:"databases"`
	Bohrium    BohriumConfig  `yaml:"bohrium"`
	MOFdb      MOFdbConfig    `yaml:"mofdb"`
	OpenLAM    OpenLAMConfig  `yaml:"openlam"`
	Optimade   OptimadeConfig `yaml:"optimade"`
}

// ServerConfig controls the MCP transport.
type ServerConfig struct {
	Transport   string `yaml:"transport"` // stdio, http
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	RateLimit   int    `yaml:"rate_limit"`    // requests per minute per client IP
	MaxBodySize int64  `yaml:"max_body_size"` // bytes
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"` // DEBUG, INFO, WARNING, ERROR
}

// BohriumConfig holds the Bohrium public crystal database settings.
type BohriumConfig struct {
	BaseURL   string `yaml:"base_url"`
	UserID    string `yaml:"user_id"`
	AccessKey string `yaml:"access_key"`
	OutputDir string `yaml:"output_dir"`
	Timeout   string `yaml:"timeout"`
}

// MOFdbConfig holds the MOFdb settings.
type MOFdbConfig struct {
	BaseURL   string `yaml:"base_url"`
	OutputDir string `yaml:"output_dir"`
	Timeout   string `yaml:"timeout"`
}

// OpenLAMConfig holds the OpenLAM structure API settings.
type OpenLAMConfig struct {
	QueryURL  string `yaml:"query_url"`
	AccessKey string `yaml:"access_key"`
	OutputDir string `yaml:"output_dir"`
	Timeout   string `yaml:"timeout"`
}

// OptimadeConfig holds the OPTIMADE federation settings.
type OptimadeConfig struct {
	OutputDir      string              `yaml:"output_dir"`
	Timeout        string              `yaml:"timeout"`
	MaxConcurrency int                 `yaml:"max_concurrency"`
	Providers      map[string][]string `yaml:"providers"` // overrides entries of the built-in URL table
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:   "stdio",
			Host:        "0.0.0.0",
			Port:        50001,
			RateLimit:   120,
			MaxBodySize: 1 << 20,
		},
		Logging:    LoggingConfig{Level: "INFO"},
		OutputRoot: ".",
		Databases:  slices.Clone(AllDatabases),
		Bohrium: BohriumConfig{
			BaseURL:   "https://db-core.dp.tech",
			UserID:    "117756",
			OutputDir: "materials_data_bohriumpublic",
			Timeout:   "30s",
		},
		MOFdb: MOFdbConfig{
			BaseURL:   "https://mof.tech.northwestern.edu",
			OutputDir: "materials_data_mofdb",
			Timeout:   "60s",
		},
		OpenLAM: OpenLAMConfig{
			QueryURL:  "http://openapi.dp.tech/openapi/v1/structures/iterate",
			OutputDir: "materials_data_openlam",
			Timeout:   "30s",
		},
		Optimade: OptimadeConfig{
			OutputDir:      "materials_data",
			Timeout:        "25s",
			MaxConcurrency: 8,
		},
	}
}

// Load builds the configuration. A missing YAML file or .env file is not an
// error; an unreadable or malformed one is.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = vars
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
	}

	cfg.applyEnvOverrides(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	})

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Process
// environment wins over .env entries.
func (c *Config) applyEnvOverrides(getenv func(string) string) {
	if v := getenv("BOHRIUM_DB_CORE_HOST"); v != "" {
		c.Bohrium.BaseURL = v
	}
	if v := getenv("BOHRIUM_USER_ID"); v != "" {
		c.Bohrium.UserID = v
	}
	if v := getenv("BOHRIUM_ACCESS_KEY"); v != "" {
		c.Bohrium.AccessKey = v
		c.OpenLAM.AccessKey = v
	}
	if v := getenv("OPENLAM_ACCESS_KEY"); v != "" {
		c.OpenLAM.AccessKey = v
	}
	if v := getenv("OPENLAM_STRUCTURE_QUERY_URL"); v != "" {
		c.OpenLAM.QueryURL = v
	}
	if v := getenv("MOFDB_BASE_URL"); v != "" {
		c.MOFdb.BaseURL = v
	}
	if v := getenv("MATERIALS_OUTPUT_ROOT"); v != "" {
		c.OutputRoot = v
	}
	if v := getenv("OPTIMADE_HTTP_TIMEOUT"); v != "" {
		c.Optimade.Timeout = v
	}
	if v := getenv("MCP_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := getenv("MCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks enum and range settings.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport %q: must be stdio or http", c.Server.Transport)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be enabled")
	}
	for _, db := range c.Databases {
		if !slices.Contains(AllDatabases, db) {
			return fmt.Errorf("unknown database %q: must be one of %s", db, strings.Join(AllDatabases, ", "))
		}
	}
	return nil
}

// SetDatabases replaces the enabled list from a comma separated flag value.
func (c *Config) SetDatabases(list string) {
	var dbs []string
	for _, part := range strings.Split(list, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" && !slices.Contains(dbs, part) {
			dbs = append(dbs, part)
		}
	}
	c.Databases = dbs
}

// Enabled reports whether the adapter for db should register its tools.
func (c *Config) Enabled(db string) bool {
	return slices.Contains(c.Databases, db)
}

// OutputDir resolves a database output directory against OutputRoot.
// Absolute directories are returned unchanged.
func (c *Config) OutputDir(dir string) string {
	if filepath.IsAbs(dir) || c.OutputRoot == "" {
		return dir
	}
	return filepath.Join(c.OutputRoot, dir)
}

// ParseLevel maps a level name to a slog level. WARNING and WARN are both accepted.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be DEBUG, INFO, WARNING or ERROR", level)
	}
}

// Duration parses a duration setting, falling back to def when empty or invalid.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
