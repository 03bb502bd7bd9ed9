package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"streak-alerts/internal/alerting"
	"streak-alerts/internal/detector"
	"streak-alerts/internal/logging"
)

// Known adapter names for sources.order.
const (
	SourceYahooChart       = "yahoo_chart"
	SourceYahooDownload    = "yahoo_download"
	SourceTradingEconomics = "tradingeconomics"
	SourceEastmoney        = "eastmoney"
	SourceInvesting        = "investing"
)

// KnownSources lists every adapter sources.order may name.
var KnownSources = []string{SourceYahooChart, SourceYahooDownload, SourceTradingEconomics, SourceEastmoney, SourceInvesting}

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MonitorConfig is the watched instrument and its alert rule.
type MonitorConfig struct {
	Symbol       string          `mapstructure:"symbol"`
	Title        string          `mapstructure:"title"`
	Threshold    decimal.Decimal `mapstructure:"threshold"`
	RunLength    int             `mapstructure:"run_length"`
	Comparison   string          `mapstructure:"comparison"`
	LookbackDays int             `mapstructure:"lookback_days"`
	Unit         string          `mapstructure:"unit"`
}

// SourcesConfig 描述数据源优先级与各适配器参数。
type SourcesConfig struct {
	Order          []string               `mapstructure:"order"`
	OverrideURL    string                 `mapstructure:"override_url"`
	RequestTimeout time.Duration          `mapstructure:"request_timeout"`
	UserAgent      string                 `mapstructure:"user_agent"`
	Yahoo          YahooConfig            `mapstructure:"yahoo"`
	TradingEcon    TradingEconomicsConfig `mapstructure:"tradingeconomics"`
	Eastmoney      EastmoneyConfig        `mapstructure:"eastmoney"`
	Investing      InvestingConfig        `mapstructure:"investing"`
}

// YahooConfig covers both Yahoo adapters.
type YahooConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// TradingEconomicsConfig 对应 TradingEconomics API。
type TradingEconomicsConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Key          string `mapstructure:"key"`
	MarketSymbol string `mapstructure:"market_symbol"`
	Country      string `mapstructure:"country"`
	Indicator    string `mapstructure:"indicator"`
}

// EastmoneyConfig 对应东方财富 kline 接口。
type EastmoneyConfig struct {
	BaseURL string `mapstructure:"base_url"`
	SecID   string `mapstructure:"secid"`
}

// InvestingConfig points at a historical-data page.
type InvestingConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。凭据可以为空, 仅在需要推送时才校验。
type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChatID    string `mapstructure:"chat_id"`
	APIBase   string `mapstructure:"api_base"`
	ParseMode string `mapstructure:"parse_mode"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables storage.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs watch mode.
type SchedulerConfig struct {
	Cron            string `mapstructure:"cron"`
	Timezone        string `mapstructure:"timezone"`
	RunOnStart      bool   `mapstructure:"run_on_start"`
	AdvisoryLockKey int64  `mapstructure:"advisory_lock_key"`
	// RunRetention bounds the check_runs audit log; zero keeps everything.
	RunRetention time.Duration `mapstructure:"run_retention"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Plain environment variables honoured alongside the STREAKWATCH_ prefix.
var legacyEnv = map[string]string{
	"monitor.symbol":               "SYMBOL",
	"monitor.threshold":            "THRESHOLD",
	"monitor.run_length":           "CONSECUTIVE_DAYS",
	"monitor.comparison":           "COMPARISON",
	"monitor.lookback_days":        "LOOKBACK_DAYS",
	"alerting.telegram.bot_token":  "TELEGRAM_BOT_TOKEN",
	"alerting.telegram.chat_id":    "TELEGRAM_CHAT_ID",
	"sources.tradingeconomics.key": "TRADINGECONOMICS_KEY",
	"sources.override_url":         "SOURCE_URL",
	"database.dsn":                 "DATABASE_URL",
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STREAKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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

// The prefixed variable wins over the plain one.
func bindLegacyEnv(v *viper.Viper) error {
	for key, plain := range legacyEnv {
		prefixed := "STREAKWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, plain); err != nil {
			return fmt.Errorf("bind env %s: %w", plain, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "streakwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("monitor.symbol", "BZ=F")
	v.SetDefault("monitor.title", "Brent Watcher")
	v.SetDefault("monitor.threshold", "70")
	v.SetDefault("monitor.run_length", 5)
	v.SetDefault("monitor.comparison", ">")
	v.SetDefault("monitor.lookback_days", 40)
	v.SetDefault("monitor.unit", "usd")

	v.SetDefault("sources.order", []string{SourceYahooChart, SourceYahooDownload, SourceTradingEconomics, SourceEastmoney, SourceInvesting})
	v.SetDefault("sources.override_url", "")
	v.SetDefault("sources.request_timeout", "20s")
	v.SetDefault("sources.user_agent", "")
	v.SetDefault("sources.yahoo.base_url", "")
	v.SetDefault("sources.tradingeconomics.base_url", "")
	v.SetDefault("sources.tradingeconomics.key", "")
	v.SetDefault("sources.tradingeconomics.market_symbol", "")
	v.SetDefault("sources.tradingeconomics.country", "")
	v.SetDefault("sources.tradingeconomics.indicator", "")
	v.SetDefault("sources.eastmoney.base_url", "")
	v.SetDefault("sources.eastmoney.secid", "")
	v.SetDefault("sources.investing.url", "")
	v.SetDefault("sources.investing.timeout", "25s")

	v.SetDefault("alerting.timeout", "20s")
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.parse_mode", "Markdown")

	v.SetDefault("scheduler.cron", "30 22 * * 1-5")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73747277))
	v.SetDefault("scheduler.run_retention", "2160h")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			decimalHook(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook reads thresholds from YAML numbers or strings without going through float64 when possible.
func decimalHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		}
		return data, nil
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Monitor.Symbol) == "" {
		return fmt.Errorf("monitor.symbol must be set")
	}
	if c.Monitor.RunLength <= 0 {
		return fmt.Errorf("monitor.run_length must be greater than zero")
	}
	if c.Monitor.LookbackDays <= 0 {
		return fmt.Errorf("monitor.lookback_days must be greater than zero")
	}
	if _, err := c.Comparison(); err != nil {
		return fmt.Errorf("monitor.comparison: %w", err)
	}
	if _, err := c.Unit(); err != nil {
		return fmt.Errorf("monitor.unit: %w", err)
	}
	if c.Sources.OverrideURL == "" {
		order := c.SourceOrder()
		if len(order) == 0 {
			return fmt.Errorf("sources.order 不能为空")
		}
		if unknown, _ := lo.Difference(order, KnownSources); len(unknown) > 0 {
			return fmt.Errorf("sources.order 包含未知数据源: %s", strings.Join(unknown, ", "))
		}
	}
	if c.Sources.RequestTimeout <= 0 {
		return fmt.Errorf("sources.request_timeout must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if strings.TrimSpace(c.Scheduler.Cron) == "" {
		return fmt.Errorf("scheduler.cron must be set")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}

// SourceOrder returns the trimmed, de-duplicated adapter order.
func (c *Config) SourceOrder() []string {
	names := lo.Map(c.Sources.Order, func(s string, _ int) string { return strings.ToLower(strings.TrimSpace(s)) })
	return lo.Uniq(lo.Compact(names))
}

// Comparison parses monitor.comparison.
func (c *Config) Comparison() (detector.Comparison, error) {
	return detector.ParseComparison(c.Monitor.Comparison)
}

// Unit parses monitor.unit.
func (c *Config) Unit() (alerting.Unit, error) {
	return alerting.ParseUnit(c.Monitor.Unit)
}

// Rule is the detector rule for the monitored instrument.
func (c *Config) Rule() detector.Rule {
	cmp, _ := c.Comparison()
	return detector.Rule{Threshold: c.Monitor.Threshold, RunLength: c.Monitor.RunLength, Comparison: cmp}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
