package strategy

import (
	"strings"
	"sync"
	"testing"

	"LayerTrader/internal/broker"
	"LayerTrader/internal/config"
	"LayerTrader/internal/model"
	"LayerTrader/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	closes map[string][]float64
}

func (s *stubHistory) Closes(symbol string, days int) ([]float64, error) {
	return s.closes[symbol], nil
}

type stubSentiment struct {
	score int
	err   error
}

func (s *stubSentiment) Score() (int, error) { return s.score, s.err }

type captureSender struct {
	messages []string
}

func (c *captureSender) Send(text string) error {
	c.messages = append(c.messages, text)
	return nil
}

type engineFixture struct {
	engine *Engine
	gw     *broker.PaperGateway
	rm     *risk.Manager
	cfg    *config.Config
	sender *captureSender
}

func newEngineFixture(t *testing.T, mutate func(cfg *config.Config)) *engineFixture {
	t.Helper()
	cfg, err := config.Load("testdata-does-not-exist.yaml")
	require.NoError(t, err)
	cfg.Strategy.Symbols = []string{"SOXL"}
	cfg.Strategy.Weights = map[string]float64{"SOXL": 1.0}
	if mutate != nil {
		mutate(cfg)
	}

	gw := broker.NewPaperGateway(10000)
	gw.SetPrice("SOXL", 100)
	rm, err := risk.NewManager(gw, cfg)
	require.NoError(t, err)

	sender := &captureSender{}
	eng := NewEngine(cfg, gw, rm, nil, nil, nil, nil, sender)
	return &engineFixture{engine: eng, gw: gw, rm: rm, cfg: cfg, sender: sender}
}

func TestRunCycle_EntersFlatSymbol(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle())

	// Neutral sentiment and no crossover signal: 10% layer size damped to 8%.
	pos := f.rm.Position("SOXL")
	assert.Equal(t, 8, pos.Quantity)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)

	st := f.engine.SymbolState("SOXL")
	assert.Equal(t, 1, st.Layers)
	assert.InDelta(t, 100.0, st.AnchorPrice, 1e-9)

	txs := f.engine.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, model.ActionBuy, txs[0].Action)
	assert.Equal(t, "entry", txs[0].Reason)
}

func TestRunCycle_GoldenCrossBoostsEntry(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.ShortWindow = 2
		cfg.Strategy.LongWindow = 3
	})
	f.engine.history = &stubHistory{closes: map[string][]float64{
		"SOXL": {5, 4, 3, 2, 3, 4},
	}}
	require.NoError(t, f.engine.RunCycle())

	// 10% layer size boosted 1.2x on the golden cross.
	assert.Equal(t, 12, f.rm.Position("SOXL").Quantity)
	txs := f.engine.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "entry_golden_cross", txs[0].Reason)
}

func TestRunCycle_StrongFearWidensEntry(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.senti = &stubSentiment{score: 20}
	require.NoError(t, f.engine.RunCycle())

	// Extreme fear: full 10% layer size, boosted 1.5x by the sizer.
	assert.Equal(t, 15, f.rm.Position("SOXL").Quantity)
	txs := f.engine.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "entry_sentiment", txs[0].Reason)
}

func TestRunCycle_SentimentErrorFallsBackToNeutral(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.senti = &stubSentiment{err: assert.AnError}
	require.NoError(t, f.engine.RunCycle())

	assert.Equal(t, 8, f.rm.Position("SOXL").Quantity)
	txs := f.engine.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "entry", txs[0].Reason)
}

func TestRunCycle_StopLossLiquidates(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.gw.SetPrice("SOXL", 94)
	require.NoError(t, f.engine.RunCycle())

	pos := f.rm.Position("SOXL")
	assert.True(t, pos.Flat())
	assert.Zero(t, f.engine.SymbolState("SOXL").Layers)
	assert.InDelta(t, 9200+94*8, f.gw.CashValue, 1e-9)

	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, model.ActionSell, txs[1].Action)
	assert.Equal(t, "stop_loss", txs[1].Reason)

	// Realized loss feeds the daily accumulator.
	assert.InDelta(t, (94.0-100.0)*8, f.rm.DailyLoss(), 1e-9)
}

func TestRunCycle_TrailingStopFromHighWater(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		// Keep take-profit out of the way so the trailing path decides.
		cfg.Strategy.TakeProfit = 0.50
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.gw.SetPrice("SOXL", 120)
	require.NoError(t, f.engine.RunCycle()) // high-water raised, no exit
	assert.Equal(t, 8, f.rm.Position("SOXL").Quantity)
	assert.InDelta(t, 120.0, f.rm.Position("SOXL").HighestPrice, 1e-9)

	// 116 is a 3.33% retreat from the 120 high.
	f.gw.SetPrice("SOXL", 116)
	require.NoError(t, f.engine.RunCycle())

	assert.True(t, f.rm.Position("SOXL").Flat())
	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "trailing_stop", txs[1].Reason)
	// A winning exit must not feed the daily loss accumulator.
	assert.Zero(t, f.rm.DailyLoss())
}

func TestRunCycle_TakeProfitBeatsTrailing(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.gw.SetPrice("SOXL", 111)
	require.NoError(t, f.engine.RunCycle())

	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "take_profit", txs[1].Reason)
}

func TestRunCycle_ScaleInOnLayerDrop(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		// A 5% drop trips the unrealized-risk guard, so use a tighter trigger.
		cfg.Strategy.LayerDrop = 0.02
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100, cash 9200

	f.gw.SetPrice("SOXL", 98)
	require.NoError(t, f.engine.RunCycle())

	pos := f.rm.Position("SOXL")
	assert.Equal(t, 8+9, pos.Quantity)
	st := f.engine.SymbolState("SOXL")
	assert.Equal(t, 2, st.Layers)
	assert.InDelta(t, 100.0, st.AnchorPrice, 1e-9, "anchor stays at the first entry")

	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "layer_2", txs[1].Reason)
}

func TestRunCycle_ScaleInSkippedWhenUnderwater(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.LayerDrop = 0.02
		cfg.Risk.TrailingStop = 0.10
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	// A 4% drop clears the layer trigger but unrealized risk is below -3%.
	f.gw.SetPrice("SOXL", 96)
	require.NoError(t, f.engine.RunCycle())

	assert.Equal(t, 8, f.rm.Position("SOXL").Quantity)
	assert.Equal(t, 1, f.engine.SymbolState("SOXL").Layers)
	assert.Len(t, f.engine.Transactions(), 1)
}

func TestRunCycle_EntryBlockedAfterDailyLossBreach(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.rm.DailyLossBreached(0.04)

	require.NoError(t, f.engine.RunCycle())
	assert.True(t, f.rm.Position("SOXL").Flat())
	assert.Empty(t, f.engine.Transactions())
}

func TestRunCycle_SymbolErrorsAreIsolated(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.Symbols = []string{"SOXL", "NVDA"}
		cfg.Strategy.Weights = map[string]float64{"SOXL": 0.5, "NVDA": 0.5}
	})
	f.gw.SetPrice("NVDA", 100)
	f.gw.PriceErr["SOXL"] = assert.AnError

	require.NoError(t, f.engine.RunCycle())

	assert.True(t, f.rm.Position("SOXL").Flat())
	assert.Equal(t, 4, f.rm.Position("NVDA").Quantity)
	txs := f.engine.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "NVDA", txs[0].Symbol)
}

func TestRunCycle_DrawdownWarningDoesNotHaltTrading(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // observe 10000 equity, enter

	// Simulate a large cash sweep: equity drops 20% against the high-water.
	f.gw.SetPrice("SOXL", 96)
	f.gw.CashValue = 7000
	require.NoError(t, f.engine.RunCycle())

	g := f.engine.GlobalState()
	assert.Greater(t, g.CurrentDrawdown, f.cfg.Risk.MaxDrawdown)

	found := false
	for _, msg := range f.sender.messages {
		if strings.Contains(msg, "回撤警告") {
			found = true
		}
	}
	assert.True(t, found, "expected a drawdown warning notification")
}

func TestRunCycle_TrendExitOnDeathCrossWithProfit(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.ShortWindow = 2
		cfg.Strategy.LongWindow = 3
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.engine.history = &stubHistory{closes: map[string][]float64{
		"SOXL": {2, 3, 4, 5, 4, 3}, // short average just crossed below long
	}}
	f.gw.SetPrice("SOXL", 105)
	require.NoError(t, f.engine.RunCycle())

	assert.True(t, f.rm.Position("SOXL").Flat())
	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "trend_exit", txs[1].Reason)
	// Trend exits do not feed the daily loss accumulator.
	assert.Zero(t, f.rm.DailyLoss())
}

func TestRunCycle_TrendExitOnDeathCrossWithBearishSentiment(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.ShortWindow = 2
		cfg.Strategy.LongWindow = 3
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.engine.history = &stubHistory{closes: map[string][]float64{
		"SOXL": {2, 3, 4, 5, 4, 3},
	}}
	f.engine.senti = &stubSentiment{score: 70} // SELL
	f.gw.SetPrice("SOXL", 98)                  // small loss, stop-loss untouched
	require.NoError(t, f.engine.RunCycle())

	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "trend_exit", txs[1].Reason)
}

func TestRunCycle_SentimentExitOnStrongSell(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.engine.senti = &stubSentiment{score: 90}
	f.gw.SetPrice("SOXL", 102)
	require.NoError(t, f.engine.RunCycle())

	assert.True(t, f.rm.Position("SOXL").Flat())
	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "sentiment_exit", txs[1].Reason)
}

func TestRunCycle_SentimentExitOnSellOnlyWhenProfitable(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	// SELL while underwater holds the position.
	f.engine.senti = &stubSentiment{score: 70}
	f.gw.SetPrice("SOXL", 98)
	require.NoError(t, f.engine.RunCycle())
	assert.Equal(t, 8, f.rm.Position("SOXL").Quantity)

	// SELL with a profit takes it.
	f.gw.SetPrice("SOXL", 105)
	require.NoError(t, f.engine.RunCycle())
	assert.True(t, f.rm.Position("SOXL").Flat())
	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "sentiment_exit", txs[1].Reason)
}

func TestRunCycle_VolatilityStopBeatsFixedStop(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	// 89 is below entry - 3*0.04*89 ≈ 89.32, and way past the -5% stop;
	// the volatility stop sits earlier in the chain and claims the exit.
	f.gw.SetPrice("SOXL", 89)
	require.NoError(t, f.engine.RunCycle())

	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "volatility_stop", txs[1].Reason)
	// The realized loss feeds the daily accumulator.
	assert.InDelta(t, (89.0-100.0)*8, f.rm.DailyLoss(), 1e-9)
}

func TestRunCycle_FixedStopWhenATRStopDisabled(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Risk.UseATRStop = false
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.gw.SetPrice("SOXL", 89)
	require.NoError(t, f.engine.RunCycle())

	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "stop_loss", txs[1].Reason)
}

func TestRunCycle_GoldenCrossBoostsScaleIn(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.LayerDrop = 0.02
		cfg.Strategy.ShortWindow = 2
		cfg.Strategy.LongWindow = 3
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100, cash 9200

	f.engine.history = &stubHistory{closes: map[string][]float64{
		"SOXL": {5, 4, 3, 2, 3, 4},
	}}
	f.gw.SetPrice("SOXL", 98)
	require.NoError(t, f.engine.RunCycle())

	// 10% layer size boosted 1.3x: int(0.13*9200/98) = 12 shares added.
	assert.Equal(t, 8+12, f.rm.Position("SOXL").Quantity)
	txs := f.engine.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, "layer_2", txs[1].Reason)
}

func TestScaleIn_AbortsOnStrongSell(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Strategy.LayerDrop = 0.02
	})
	require.NoError(t, f.engine.RunCycle()) // enter 8 @ 100

	f.gw.SetPrice("SOXL", 98)
	st := f.engine.states["SOXL"]
	tx, err := f.engine.tryScaleIn("SOXL", 98, model.SentimentStrongSell, model.CrossoverNone, st)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, 1, st.Layers)
	assert.Equal(t, 8, f.rm.Position("SOXL").Quantity)
}

func TestRunCycle_ConcurrentWithStateReads(t *testing.T) {
	f := newEngineFixture(t, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = f.engine.RunCycle()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = f.engine.GlobalState()
			_ = f.engine.Transactions()
			_ = f.engine.SymbolState("SOXL")
			_ = f.rm.Position("SOXL")
			_ = f.rm.DailyLoss()
		}
	}()
	wg.Wait()

	// Price never moves, so the first cycle enters and the rest hold.
	assert.Equal(t, 8, f.rm.Position("SOXL").Quantity)
	assert.Len(t, f.engine.Transactions(), 1)
}

func TestRunCycle_StaleLayersReconciled(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.NoError(t, f.engine.RunCycle()) // enter, layers=1

	// Position closed out-of-band at the broker.
	f.rm.RecordPositionDelta("SOXL", 100, -8)
	require.NoError(t, f.engine.RunCycle())

	st := f.engine.SymbolState("SOXL")
	// The stale layer state was reset before a fresh entry was attempted.
	assert.LessOrEqual(t, st.Layers, 1)
}
