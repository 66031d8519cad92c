package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/johnwards/hubsync/internal/apperr"
)

// MaxBatchCreate is the CRM's hard limit for batch create inputs.
const MaxBatchCreate = 100

// DefaultConfigFile is read when no path is given and HUBSYNC_CONFIG is unset.
const DefaultConfigFile = "hubsync.yaml"

// Config holds application configuration. Values are layered: built-in
// defaults, then an optional YAML file, then non-empty environment variables (a
// .env file in the working directory is loaded into the environment first).
type Config struct {
	HubSpot  HubSpotConfig  `koanf:"hubspot"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// HubSpotConfig configures the CRM client.
type HubSpotConfig struct {
	Token   string        `koanf:"token" validate:"required"`
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DatabaseConfig configures the relational source and mirror database.
type DatabaseConfig struct {
	Driver   string `koanf:"driver" validate:"oneof=sqlserver mysql sqlite"`
	Server   string `koanf:"server" validate:"required_unless=Driver sqlite"`
	Port     int    `koanf:"port" validate:"gte=0,lte=65535"`
	Name     string `koanf:"name" validate:"required"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// SyncConfig tunes the write path and discovery.
type SyncConfig struct {
	BatchSize          int           `koanf:"batch_size" validate:"min=1"`
	UpdateBatchSize    int           `koanf:"update_batch_size" validate:"min=1"`
	WriteDelay         time.Duration `koanf:"write_delay" validate:"gte=0"`
	BatchPause         time.Duration `koanf:"batch_pause" validate:"gte=0"`
	DiscoveryPause     time.Duration `koanf:"discovery_pause" validate:"gte=0"`
	DiscoveryThreshold float64       `koanf:"discovery_threshold" validate:"gte=0,lte=1"`
	Timeout            time.Duration `koanf:"timeout" validate:"gt=0"`
	DryRun             bool          `koanf:"dry_run"`
	InsertQueryFile    string        `koanf:"insert_query_file" validate:"required"`
	UpdateQueryFile    string        `koanf:"update_query_file" validate:"required"`
	MappingFile        string        `koanf:"mapping_file"`
	ReportDir          string        `koanf:"report_dir" validate:"required"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
	Dir    string `koanf:"dir"`
}

// MetricsConfig enables the prometheus textfile export.
type MetricsConfig struct {
	File string `koanf:"file"`
}

// envKeys maps the supported environment variables to config paths.
var envKeys = map[string]string{
	"HUBSPOT_TOKEN":       "hubspot.token",
	"HUBSPOT_BASE_URL":    "hubspot.base_url",
	"HUBSPOT_TIMEOUT":     "hubspot.timeout",
	"DB_DRIVER":           "database.driver",
	"SQL_SERVER":          "database.server",
	"SQL_PORT":            "database.port",
	"SQL_DATABASE":        "database.name",
	"SQL_USER":            "database.user",
	"SQL_PASSWORD":        "database.password",
	"BATCH_SIZE":          "sync.batch_size",
	"UPDATE_BATCH_SIZE":   "sync.update_batch_size",
	"WRITE_DELAY":         "sync.write_delay",
	"BATCH_PAUSE":         "sync.batch_pause",
	"DISCOVERY_PAUSE":     "sync.discovery_pause",
	"DISCOVERY_THRESHOLD": "sync.discovery_threshold",
	"SYNC_TIMEOUT":        "sync.timeout",
	"DRY_RUN":             "sync.dry_run",
	"QUERY_INSERT_FILE":   "sync.insert_query_file",
	"QUERY_UPDATE_FILE":   "sync.update_query_file",
	"MAPPING_FILE":        "sync.mapping_file",
	"REPORT_DIR":          "sync.report_dir",
	"LOG_LEVEL":           "log.level",
	"LOG_FORMAT":          "log.format",
	"LOG_DIR":             "log.dir",
	"METRICS_FILE":        "metrics.file",
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HubSpot: HubSpotConfig{
			BaseURL: "https://api.hubapi.com",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlserver",
			Port:   1433,
		},
		Sync: SyncConfig{
			BatchSize:          MaxBatchCreate,
			UpdateBatchSize:    50,
			WriteDelay:         100 * time.Millisecond,
			BatchPause:         2 * time.Second,
			DiscoveryPause:     500 * time.Millisecond,
			DiscoveryThreshold: 0.01,
			Timeout:            300 * time.Second,
			InsertQueryFile:    "HB_INSERT.sql",
			UpdateQueryFile:    "HB_UPDATE.sql",
			ReportDir:          "reports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the configuration. path names a YAML file; when empty,
// HUBSYNC_CONFIG and then DefaultConfigFile are tried, and a missing default
// file is not an error. Invalid or missing required values are reported as a
// single *apperr.ConfigurationError.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv("HUBSYNC_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := k.Load(file.Provider(DefaultConfigFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", DefaultConfigFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &apperr.ConfigurationError{Problems: []string{err.Error()}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sync.BatchSize > MaxBatchCreate {
		cfg.Sync.BatchSize = MaxBatchCreate
	}
	return cfg, nil
}

// Validate checks required and ranged settings.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &apperr.ConfigurationError{Problems: []string{err.Error()}}
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		name := envName(key)
		if strings.HasPrefix(fe.Tag(), "required") {
			problems = append(problems, name+" is required")
			continue
		}
		problems = append(problems, fmt.Sprintf("%s is invalid (%s=%s, got %v)", name, fe.Tag(), fe.Param(), fe.Value()))
	}
	return &apperr.ConfigurationError{Problems: problems}
}

// envValue maps a supported, non-empty environment variable to its config
// path. Empty values are treated as unset.
func envValue(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	return envKeys[key], value
}

func envName(key string) string {
	for envKey, path := range envKeys {
		if path == key {
			return envKey
		}
	}
	return key
}
