package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streak-alerts/internal/alerting"
	"streak-alerts/internal/detector"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "BZ=F", cfg.Monitor.Symbol)
	assert.True(t, decimal.NewFromInt(70).Equal(cfg.Monitor.Threshold))
	assert.Equal(t, 5, cfg.Monitor.RunLength)
	assert.Equal(t, 40, cfg.Monitor.LookbackDays)
	assert.Equal(t, KnownSources, cfg.SourceOrder())
	assert.Equal(t, 20*time.Second, cfg.Sources.RequestTimeout)
	assert.Equal(t, 25*time.Second, cfg.Sources.Investing.Timeout)
	assert.Equal(t, "30 22 * * 1-5", cfg.Scheduler.Cron)
	assert.Equal(t, 90*24*time.Hour, cfg.Scheduler.RunRetention)
	assert.Empty(t, cfg.Alerting.Telegram.BotToken, "未配置 Telegram 也应能加载")

	rule := cfg.Rule()
	assert.Equal(t, detector.GreaterThan, rule.Comparison)
	unit, err := cfg.Unit()
	require.NoError(t, err)
	assert.Equal(t, alerting.UnitUSD, unit)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
monitor:
  symbol: china:10y
  title: China 10Y Government Bond
  threshold: 1.85
  run_length: 1
  comparison: ">="
  unit: percent
sources:
  order: tradingeconomics, eastmoney ,investing
  eastmoney:
    secid: 171.CN10Y
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("1.85").Equal(cfg.Monitor.Threshold))
	assert.Equal(t, detector.GreaterOrEqual, cfg.Rule().Comparison)
	assert.Equal(t, []string{"tradingeconomics", "eastmoney", "investing"}, cfg.SourceOrder())
	assert.Equal(t, "171.CN10Y", cfg.Sources.Eastmoney.SecID)
}

func TestLegacyEnvironment(t *testing.T) {
	t.Setenv("SYMBOL", "CL=F")
	t.Setenv("THRESHOLD", "80.5")
	t.Setenv("CONSECUTIVE_DAYS", "3")
	t.Setenv("TELEGRAM_BOT_TOKEN", "plain-token")
	t.Setenv("STREAKWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "prefixed-token")
	t.Setenv("SOURCE_URL", "https://example.test/q?s={symbol}")

	cfg, err := Load(writeConfig(t, "monitor:\n  symbol: BZ=F\n"))
	require.NoError(t, err)

	assert.Equal(t, "CL=F", cfg.Monitor.Symbol, "环境变量优先于配置文件")
	assert.True(t, decimal.RequireFromString("80.5").Equal(cfg.Monitor.Threshold))
	assert.Equal(t, 3, cfg.Monitor.RunLength)
	assert.Equal(t, "prefixed-token", cfg.Alerting.Telegram.BotToken)
	assert.Equal(t, "https://example.test/q?s={symbol}", cfg.Sources.OverrideURL)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"run length":     "monitor:\n  run_length: 0\n",
		"lookback":       "monitor:\n  lookback_days: -1\n",
		"comparison":     "monitor:\n  comparison: \"<\"\n",
		"unit":           "monitor:\n  unit: btc\n",
		"unknown source": "sources:\n  order: [yahoo_chart, bloomberg]\n",
		"empty order":    "sources:\n  order: []\n",
		"timezone":       "scheduler:\n  timezone: Mars/Base\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestOverrideAllowsEmptyOrder(t *testing.T) {
	_, err := Load(writeConfig(t, "sources:\n  order: []\n  override_url: https://example.test/data.json\n"))
	assert.NoError(t, err)
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	assert.Equal(t, 10, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 3, cfg.ResolveMaxPoints(3))
}
