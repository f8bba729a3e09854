package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"SOXL", "MSTU", "NVDA"}, cfg.Strategy.Symbols)
	assert.InDelta(t, -0.05, cfg.Strategy.StopLoss, 1e-9)
	assert.InDelta(t, 0.10, cfg.Strategy.TakeProfit, 1e-9)
	assert.Equal(t, 3, cfg.Strategy.MaxLayers)
	assert.InDelta(t, 0.05, cfg.Strategy.LayerDrop, 1e-9)
	assert.InDelta(t, 0.10, cfg.Strategy.LayerSize, 1e-9)
	assert.Equal(t, 20, cfg.Strategy.ShortWindow)
	assert.Equal(t, 50, cfg.Strategy.LongWindow)
	assert.InDelta(t, 1.5, cfg.Strategy.ExtremeFearBoost, 1e-9)
	assert.InDelta(t, 0.03, cfg.Risk.DailyLossLimit, 1e-9)
	assert.InDelta(t, 0.20, cfg.Risk.MaxPositionSize, 1e-9)
	assert.InDelta(t, 0.60, cfg.Risk.MaxConcentration, 1e-9)
	assert.InDelta(t, 0.03, cfg.Risk.TrailingStop, 1e-9)
	assert.InDelta(t, 0.15, cfg.Risk.MaxDrawdown, 1e-9)
	assert.InDelta(t, 3.0, cfg.Risk.ATRMultiplier, 1e-9)
	assert.True(t, cfg.Risk.UseATRStop)
	assert.True(t, cfg.Sentiment.Enabled)
	assert.NotEmpty(t, cfg.Schedule.TickCron)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
strategy:
  symbols: [SOXL]
  weights:
    SOXL: 1.0
  stop_loss: -0.08
  max_layers: 5
risk:
  trailing_stop: 0.05
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOXL"}, cfg.Strategy.Symbols)
	assert.InDelta(t, -0.08, cfg.Strategy.StopLoss, 1e-9)
	assert.Equal(t, 5, cfg.Strategy.MaxLayers)
	assert.InDelta(t, 0.05, cfg.Risk.TrailingStop, 1e-9)
	// Untouched fields still get defaults.
	assert.InDelta(t, 0.10, cfg.Strategy.TakeProfit, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token-from-env")
	t.Setenv("APCA_API_KEY_ID", "key-from-env")

	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "token-from-env", cfg.Telegram.BotToken)
	assert.Equal(t, "key-from-env", cfg.Broker.APIKey)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"positive stop loss", func(c *Config) { c.Strategy.StopLoss = 0.05 }},
		{"zero take profit", func(c *Config) { c.Strategy.TakeProfit = -0.1 }},
		{"short window not below long", func(c *Config) { c.Strategy.ShortWindow = 50 }},
		{"weights not summing to one", func(c *Config) {
			c.Strategy.Weights = map[string]float64{"SOXL": 0.5, "NVDA": 0.2}
		}},
		{"negative weight", func(c *Config) {
			c.Strategy.Weights = map[string]float64{"SOXL": -0.5, "NVDA": 1.5}
		}},
		{"concentration above one", func(c *Config) { c.Risk.MaxConcentration = 1.5 }},
		{"trailing stop out of range", func(c *Config) { c.Risk.TrailingStop = 1.0 }},
		{"zero volatility coeff", func(c *Config) {
			c.Risk.Volatility = map[string]float64{"SOXL": 0}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("does-not-exist.yaml")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWeightAndVolatilityFallbacks(t *testing.T) {
	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)

	assert.InDelta(t, 0.34, cfg.Weight("NVDA"), 1e-9)
	// Unweighted symbol falls back to an equal split of the universe.
	assert.InDelta(t, 1.0/3.0, cfg.Weight("TQQQ"), 1e-9)
	assert.InDelta(t, 0.04, cfg.VolatilityCoeff("SOXL"), 1e-9)
	assert.InDelta(t, 0.03, cfg.VolatilityCoeff("TQQQ"), 1e-9)
}
