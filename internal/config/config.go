package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Datasets     DatasetsConfig     `yaml:"datasets" mapstructure:"datasets"`
	Scraper      ScraperConfig      `yaml:"scraper" mapstructure:"scraper"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Weather      WeatherConfig      `yaml:"weather" mapstructure:"weather"`
	Ergast       ErgastConfig       `yaml:"ergast" mapstructure:"ergast"`
	OpenF1       OpenF1Config       `yaml:"openf1" mapstructure:"openf1"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HTTPConfig configures the shared HTTP client used by every network call.
type HTTPConfig struct {
	Insecure        bool   `yaml:"insecure" mapstructure:"insecure"`
	CABundle        string `yaml:"ca_bundle" mapstructure:"ca_bundle"`
	Proxy           string `yaml:"proxy" mapstructure:"proxy"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int    `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoffSecs int    `yaml:"base_backoff_secs" mapstructure:"base_backoff_secs"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
}

// DatasetsConfig points at the historical CSV dump.
type DatasetsConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	ArchiveURL    string `yaml:"archive_url" mapstructure:"archive_url"`
	HistoryWindow int    `yaml:"history_window" mapstructure:"history_window"`
}

// ScraperConfig points at optional scraper outputs. Columns maps a scraper
// table name ("longrun", "weather", ...) to an explicit column mapping that
// replaces keyword discovery for that table.
type ScraperConfig struct {
	Dir     string                   `yaml:"dir" mapstructure:"dir"`
	Columns map[string]ColumnMapping `yaml:"columns" mapstructure:"columns"`
}

// ColumnMapping names the key and value columns of a scraper table.
type ColumnMapping struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Value string `yaml:"value" mapstructure:"value"`
}

// OutputConfig configures output locations.
type OutputConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	SummaryFile string `yaml:"summary_file" mapstructure:"summary_file"`
	XLSX        bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// WeatherConfig configures the Open-Meteo client and the wet-race cache.
type WeatherConfig struct {
	ForecastURL     string  `yaml:"forecast_url" mapstructure:"forecast_url"`
	ArchiveURL      string  `yaml:"archive_url" mapstructure:"archive_url"`
	CacheDriver     string  `yaml:"cache_driver" mapstructure:"cache_driver"`
	CachePath       string  `yaml:"cache_path" mapstructure:"cache_path"`
	History         bool    `yaml:"history" mapstructure:"history"`
	WetThresholdMM  float64 `yaml:"wet_threshold_mm" mapstructure:"wet_threshold_mm"`
	DefaultStartUTC string  `yaml:"default_start_utc" mapstructure:"default_start_utc"`
}

// ErgastConfig configures the Ergast-compatible results API.
type ErgastConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OpenF1Config configures the OpenF1 live timing API.
type OpenF1Config struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OrchestratorConfig configures the `all` command.
type OrchestratorConfig struct {
	CircuitsFile    string `yaml:"circuits_file" mapstructure:"circuits_file"`
	StepTimeoutSecs int    `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
	MinDrivers      int    `yaml:"min_drivers" mapstructure:"min_drivers"`
	MaxDrivers      int    `yaml:"max_drivers" mapstructure:"max_drivers"`
}

// StoreConfig configures the run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// MetricsConfig configures the Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("F1ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.insecure", false)
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.base_backoff_secs", 2)
	v.SetDefault("http.user_agent", "f1-etl/1.0")
	v.SetDefault("datasets.dir", "./formula1-datasets")
	v.SetDefault("datasets.history_window", 5)
	v.SetDefault("output.dir", "./build")
	v.SetDefault("output.summary_file", "summary.json")
	v.SetDefault("weather.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("weather.archive_url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("weather.cache_driver", "sqlite")
	v.SetDefault("weather.cache_path", "./build/weather_cache.db")
	v.SetDefault("weather.wet_threshold_mm", 1.0)
	v.SetDefault("weather.default_start_utc", "13:00:00")
	v.SetDefault("ergast.base_url", "https://api.jolpi.ca/ergast/f1")
	v.SetDefault("ergast.rate_limit", 4)
	v.SetDefault("openf1.base_url", "https://api.openf1.org/v1")
	v.SetDefault("orchestrator.circuits_file", "etl/circuits.yaml")
	v.SetDefault("orchestrator.step_timeout_secs", 300)
	v.SetDefault("orchestrator.min_drivers", 10)
	v.SetDefault("orchestrator.max_drivers", 25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./build/f1-etl.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(NormalizeLevel(cfg.Level))
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// NormalizeLevel maps the level names accepted by --log-level (DEBUG, INFO,
// WARNING, ERROR, CRITICAL) onto zap level names.
func NormalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return "warn"
	case "critical":
		return "fatal"
	case "":
		return "info"
	default:
		return strings.ToLower(strings.TrimSpace(level))
	}
}
