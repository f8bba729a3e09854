package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Broker struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"broker"`
	Sentiment struct {
		Enabled   bool   `yaml:"enabled"`
		CacheFile string `yaml:"cache_file"`
		CacheTTL  int    `yaml:"cache_ttl_seconds"`
	} `yaml:"sentiment"`
	Strategy struct {
		Symbols          []string           `yaml:"symbols"`
		Weights          map[string]float64 `yaml:"weights"`
		StopLoss         float64            `yaml:"stop_loss"`
		TakeProfit       float64            `yaml:"take_profit"`
		MaxLayers        int                `yaml:"max_layers"`
		LayerDrop        float64            `yaml:"layer_drop"`
		LayerSize        float64            `yaml:"layer_size"`
		ShortWindow      int                `yaml:"short_window"`
		LongWindow       int                `yaml:"long_window"`
		ExtremeFearBoost float64            `yaml:"extreme_fear_boost"`
	} `yaml:"strategy"`
	Risk struct {
		DailyLossLimit   float64            `yaml:"daily_loss_limit"`
		MaxPositionSize  float64            `yaml:"max_position_size"`
		MaxConcentration float64            `yaml:"max_concentration"`
		TrailingStop     float64            `yaml:"trailing_stop"`
		MaxDrawdown      float64            `yaml:"max_drawdown"`
		UseATRStop       bool               `yaml:"use_atr_stop"`
		ATRMultiplier    float64            `yaml:"atr_multiplier"`
		ExtendedHours    bool               `yaml:"extended_hours"`
		Volatility       map[string]float64 `yaml:"volatility"`
	} `yaml:"risk"`
	Schedule struct {
		TickCron    string `yaml:"tick_cron"`
		IdleCron    string `yaml:"idle_cron"`
		SummaryCron string `yaml:"summary_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Sentiment.Enabled = true
	cfg.Risk.UseATRStop = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = "https://paper-api.alpaca.markets"
	}
	if len(cfg.Strategy.Symbols) == 0 {
		cfg.Strategy.Symbols = []string{"SOXL", "MSTU", "NVDA"}
	}
	if len(cfg.Strategy.Weights) == 0 {
		cfg.Strategy.Weights = map[string]float64{"SOXL": 0.33, "MSTU": 0.33, "NVDA": 0.34}
	}
	if cfg.Strategy.StopLoss == 0 {
		cfg.Strategy.StopLoss = -0.05
	}
	if cfg.Strategy.TakeProfit == 0 {
		cfg.Strategy.TakeProfit = 0.10
	}
	if cfg.Strategy.MaxLayers == 0 {
		cfg.Strategy.MaxLayers = 3
	}
	if cfg.Strategy.LayerDrop == 0 {
		cfg.Strategy.LayerDrop = 0.05
	}
	if cfg.Strategy.LayerSize == 0 {
		cfg.Strategy.LayerSize = 0.10
	}
	if cfg.Strategy.ShortWindow == 0 {
		cfg.Strategy.ShortWindow = 20
	}
	if cfg.Strategy.LongWindow == 0 {
		cfg.Strategy.LongWindow = 50
	}
	if cfg.Strategy.ExtremeFearBoost == 0 {
		cfg.Strategy.ExtremeFearBoost = 1.5
	}
	if cfg.Risk.DailyLossLimit == 0 {
		cfg.Risk.DailyLossLimit = 0.03
	}
	if cfg.Risk.MaxPositionSize == 0 {
		cfg.Risk.MaxPositionSize = 0.20
	}
	if cfg.Risk.MaxConcentration == 0 {
		cfg.Risk.MaxConcentration = 0.60
	}
	if cfg.Risk.TrailingStop == 0 {
		cfg.Risk.TrailingStop = 0.03
	}
	if cfg.Risk.MaxDrawdown == 0 {
		cfg.Risk.MaxDrawdown = 0.15
	}
	if cfg.Risk.ATRMultiplier == 0 {
		cfg.Risk.ATRMultiplier = 3.0
	}
	if len(cfg.Risk.Volatility) == 0 {
		cfg.Risk.Volatility = map[string]float64{"SOXL": 0.04, "MSTU": 0.05, "NVDA": 0.03}
	}
	if cfg.Sentiment.CacheFile == "" {
		cfg.Sentiment.CacheFile = "data/fear_greed_cache.json"
	}
	if cfg.Sentiment.CacheTTL == 0 {
		cfg.Sentiment.CacheTTL = 3600
	}
	if cfg.Schedule.TickCron == "" {
		cfg.Schedule.TickCron = "0 */5 * * * *"
	}
	if cfg.Schedule.IdleCron == "" {
		cfg.Schedule.IdleCron = "0 0 * * * *"
	}
	if cfg.Schedule.SummaryCron == "" {
		// Shortly after the regular-session close; the job re-checks the
		// Eastern clock so a DST shift only delays it, never skips it.
		cfg.Schedule.SummaryCron = "0 15 16 * * 1-5"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/layertrader.db"
	}
}

// Validate checks that all required fields and thresholds are sane.
// A failure here is fatal at startup.
func (c *Config) Validate() error {
	if c.Strategy.StopLoss >= 0 {
		return fmt.Errorf("strategy.stop_loss must be negative, got %v", c.Strategy.StopLoss)
	}
	if c.Strategy.TakeProfit <= 0 {
		return fmt.Errorf("strategy.take_profit must be positive, got %v", c.Strategy.TakeProfit)
	}
	if c.Strategy.MaxLayers < 1 {
		return fmt.Errorf("strategy.max_layers must be >= 1, got %d", c.Strategy.MaxLayers)
	}
	if c.Strategy.LayerDrop <= 0 || c.Strategy.LayerSize <= 0 || c.Strategy.LayerSize > 1 {
		return fmt.Errorf("strategy.layer_drop/layer_size out of range")
	}
	if c.Strategy.ShortWindow >= c.Strategy.LongWindow {
		return fmt.Errorf("strategy.short_window (%d) must be < long_window (%d)",
			c.Strategy.ShortWindow, c.Strategy.LongWindow)
	}
	if c.Risk.DailyLossLimit <= 0 || c.Risk.MaxPositionSize <= 0 || c.Risk.MaxConcentration <= 0 {
		return fmt.Errorf("risk limits must be positive")
	}
	if c.Risk.MaxPositionSize > 1 || c.Risk.MaxConcentration > 1 {
		return fmt.Errorf("risk caps must be fractions <= 1")
	}
	if c.Risk.TrailingStop <= 0 || c.Risk.TrailingStop >= 1 {
		return fmt.Errorf("risk.trailing_stop must be in (0,1), got %v", c.Risk.TrailingStop)
	}
	var sum float64
	for sym, w := range c.Strategy.Weights {
		if w < 0 {
			return fmt.Errorf("strategy.weights[%s] must be >= 0", sym)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("strategy.weights must sum to 1.0, got %.3f", sum)
	}
	for sym, v := range c.Risk.Volatility {
		if v <= 0 {
			return fmt.Errorf("risk.volatility[%s] must be positive", sym)
		}
	}
	return nil
}

// Weight returns the capital-allocation weight for a symbol, defaulting to an
// equal split across the configured universe when the symbol is unweighted.
func (c *Config) Weight(symbol string) float64 {
	if w, ok := c.Strategy.Weights[symbol]; ok {
		return w
	}
	if n := len(c.Strategy.Symbols); n > 0 {
		return 1.0 / float64(n)
	}
	return 1.0
}

// VolatilityCoeff returns the static per-symbol volatility coefficient used
// for the ATR stop estimate.
func (c *Config) VolatilityCoeff(symbol string) float64 {
	if v, ok := c.Risk.Volatility[symbol]; ok {
		return v
	}
	return 0.03
}
