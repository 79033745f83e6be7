package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"weather-monitor/internal/logging"
	"weather-monitor/internal/weather"
)

// Recompute policies for the daily summary of a date that is polled more than once.
const (
	RecomputeCumulative = "cumulative"
	RecomputeBatch      = "batch"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	History   HistoryConfig   `mapstructure:"history"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ProviderConfig covers the OpenWeatherMap client.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Units          string        `mapstructure:"units"`
	Country        string        `mapstructure:"country"`
	Cities         []string      `mapstructure:"cities"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig holds the initial thresholds and delivery routing.
type AlertingConfig struct {
	HighTemp           float64        `mapstructure:"high_temp"`
	LowTemp            float64        `mapstructure:"low_temp"`
	ConsecutiveUpdates int            `mapstructure:"consecutive_updates"`
	Telegram           TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// HistoryConfig bounds the in-memory session.
type HistoryConfig struct {
	MaxDays      int    `mapstructure:"max_days"`
	MaxSnapshots int    `mapstructure:"max_snapshots"`
	MaxAlerts    int    `mapstructure:"max_alerts"`
	Timezone     string `mapstructure:"timezone"`
	Recompute    string `mapstructure:"recompute"`
}

// DashboardConfig configures the HTTP dashboard.
type DashboardConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RecentAlerts int           `mapstructure:"recent_alerts"`
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDays int `mapstructure:"max_days"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("WEATHERMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("provider.api_key", "WEATHERMON_PROVIDER_API_KEY", "OPENWEATHER_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "weathermon")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("provider.base_url", "https://api.openweathermap.org/data/2.5/weather")
	v.SetDefault("provider.units", "metric")
	v.SetDefault("provider.country", "IN")
	v.SetDefault("provider.cities", []string{"Delhi", "Mumbai", "Chennai", "Bangalore", "Kolkata", "Hyderabad"})
	v.SetDefault("provider.request_timeout", "10s")
	v.SetDefault("provider.user_agent", "weathermon/1.0")
	v.SetDefault("provider.breaker.max_requests", 1)
	v.SetDefault("provider.breaker.interval", "0s")
	v.SetDefault("provider.breaker.timeout", "1m")
	v.SetDefault("provider.breaker.max_failures", 5)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	defaults := weather.DefaultAlertConfig()
	v.SetDefault("alerting.high_temp", defaults.HighTemp)
	v.SetDefault("alerting.low_temp", defaults.LowTemp)
	v.SetDefault("alerting.consecutive_updates", defaults.ConsecutiveUpdates)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("history.max_days", 7)
	v.SetDefault("history.max_snapshots", 60)
	v.SetDefault("history.max_alerts", 500)
	v.SetDefault("history.timezone", "UTC")
	v.SetDefault("history.recompute", RecomputeCumulative)

	v.SetDefault("dashboard.listen", ":8080")
	v.SetDefault("dashboard.read_timeout", "10s")
	v.SetDefault("dashboard.write_timeout", "10s")
	v.SetDefault("dashboard.recent_alerts", 5)

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("export.max_days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if len(c.Provider.Cities) == 0 {
		return fmt.Errorf("provider.cities must contain at least one city")
	}
	for _, city := range c.Provider.Cities {
		if strings.TrimSpace(city) == "" {
			return fmt.Errorf("provider.cities must not contain empty names")
		}
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Alerting.ConsecutiveUpdates < 1 {
		return fmt.Errorf("alerting.consecutive_updates must be at least 1")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.History.MaxDays < 1 {
		return fmt.Errorf("history.max_days must be at least 1")
	}
	if c.History.MaxSnapshots < 1 {
		return fmt.Errorf("history.max_snapshots must be at least 1")
	}
	if c.History.MaxAlerts < 1 {
		return fmt.Errorf("history.max_alerts must be at least 1")
	}
	switch c.History.Recompute {
	case RecomputeCumulative, RecomputeBatch:
	default:
		return fmt.Errorf("history.recompute must be one of: %s, %s", RecomputeCumulative, RecomputeBatch)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("history.timezone: %w", err)
	}
	if c.Dashboard.Listen == "" {
		return fmt.Errorf("dashboard.listen is required")
	}
	if c.Export.MaxDays <= 0 {
		return fmt.Errorf("export.max_days must be greater than zero")
	}
	return nil
}

// Location resolves the timezone used for daily buckets.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.History.Timezone)
}

// Thresholds returns the initial alert configuration.
func (c *Config) Thresholds() weather.AlertConfig {
	return weather.AlertConfig{
		HighTemp:           c.Alerting.HighTemp,
		LowTemp:            c.Alerting.LowTemp,
		ConsecutiveUpdates: c.Alerting.ConsecutiveUpdates,
	}
}

// ResolveExportDays returns either the CLI override or config default.
func (c *Config) ResolveExportDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDays
}
