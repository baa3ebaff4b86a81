package config

import (
	"fmt"
	"strings"

	"github.com/meteolab/meteod/internal/logger"
	"github.com/spf13/viper"
)

// Config is the top-level TOML structure for the daemon.
//
// Runtime collection settings (interval, freshness window, refresh hint)
// live in the store's settings row, not here; collect.interval_minutes only
// seeds that row on first schema creation.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
	Collect  CollectConfig  `toml:"collect" mapstructure:"collect"`
	Export   ExportConfig   `toml:"export" mapstructure:"export"`
	Upstream UpstreamConfig `toml:"upstream" mapstructure:"upstream"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	APIToken string `toml:"api_token" mapstructure:"api_token"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type CollectConfig struct {
	IntervalMinutes int `toml:"interval_minutes" mapstructure:"interval_minutes"`
	TimeoutSeconds  int `toml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RetentionDays   int `toml:"retention_days" mapstructure:"retention_days"`
}

// ExportConfig selects an optional measurement export sink by DSN
// (clickhouse://host:port?table=..., opensearch://host:port/index).
// Empty disables export.
type ExportConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type UpstreamConfig struct {
	ForecastBase   string `toml:"forecast_base" mapstructure:"forecast_base"`
	AirQualityBase string `toml:"air_quality_base" mapstructure:"air_quality_base"`
	GeocodingBase  string `toml:"geocoding_base" mapstructure:"geocoding_base"`
	NominatimBase  string `toml:"nominatim_base" mapstructure:"nominatim_base"`
}

// Default returns the configuration used when a key is absent from the file
// and the environment.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:  ":8085",
			Metrics: true,
		},
		Store: StoreConfig{
			DSN: "meteod.db",
		},
		Collect: CollectConfig{
			IntervalMinutes: 30,
			TimeoutSeconds:  10,
			RetentionDays:   0,
		},
		Upstream: UpstreamConfig{
			ForecastBase:   "https://api.open-meteo.com",
			AirQualityBase: "https://air-quality-api.open-meteo.com",
			GeocodingBase:  "https://geocoding-api.open-meteo.com",
			NominatimBase:  "https://nominatim.openstreetmap.org",
		},
		Log: logger.Config{
			Color: true,
		},
	}
}

// Load reads the TOML file at path (optional when empty) and applies
// METEOD_* environment overrides, e.g. METEOD_STORE_DSN for store.dsn.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("METEOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot start with.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must not be empty")
	}
	if c.Collect.IntervalMinutes < 1 {
		return fmt.Errorf("collect.interval_minutes must be >= 1, got %d", c.Collect.IntervalMinutes)
	}
	if c.Collect.TimeoutSeconds < 1 {
		return fmt.Errorf("collect.timeout_seconds must be >= 1, got %d", c.Collect.TimeoutSeconds)
	}
	if c.Collect.RetentionDays < 0 {
		return fmt.Errorf("collect.retention_days must be >= 0, got %d", c.Collect.RetentionDays)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.api_token", d.Server.APIToken)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("collect.interval_minutes", d.Collect.IntervalMinutes)
	v.SetDefault("collect.timeout_seconds", d.Collect.TimeoutSeconds)
	v.SetDefault("collect.retention_days", d.Collect.RetentionDays)
	v.SetDefault("export.dsn", d.Export.DSN)
	v.SetDefault("upstream.forecast_base", d.Upstream.ForecastBase)
	v.SetDefault("upstream.air_quality_base", d.Upstream.AirQualityBase)
	v.SetDefault("upstream.geocoding_base", d.Upstream.GeocodingBase)
	v.SetDefault("upstream.nominatim_base", d.Upstream.NominatimBase)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.color", d.Log.Color)
}
