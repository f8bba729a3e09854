package strategy

import "LayerTrader/internal/model"

// symbolTick is everything one exit-rule evaluation sees for one symbol on
// one cycle.
type symbolTick struct {
	price     float64
	position  model.Position
	state     *model.SymbolState
	sentiment model.SentimentCategory
	crossover model.Crossover
	// change is the unrealized return against the volume-weighted entry.
	change float64
}

// exitRule is one predicate in the ordered exit chain. Rules are evaluated
// top to bottom, first match wins; feedsDailyLoss marks rules whose realized
// PnL counts against the daily loss limit.
type exitRule struct {
	name           string
	feedsDailyLoss bool
	triggered      func(e *Engine, t *symbolTick) bool
}

// exitRules is the fixed precedence order: trend reversal, sentiment,
// volatility stop, fixed stop-loss, take-profit, trailing stop.
var exitRules = []exitRule{
	{
		name: "trend_exit",
		triggered: func(e *Engine, t *symbolTick) bool {
			if t.crossover != model.CrossoverDeath {
				return false
			}
			bearishSentiment := t.sentiment == model.SentimentSell || t.sentiment == model.SentimentStrongSell
			return t.change > 0 || bearishSentiment
		},
	},
	{
		name: "sentiment_exit",
		triggered: func(e *Engine, t *symbolTick) bool {
			if t.sentiment == model.SentimentStrongSell {
				return true
			}
			return t.sentiment == model.SentimentSell && t.change > 0
		},
	},
	{
		name:           "volatility_stop",
		feedsDailyLoss: true,
		triggered: func(e *Engine, t *symbolTick) bool {
			if !e.cfg.Risk.UseATRStop {
				return false
			}
			// Estimated ATR: a static per-symbol volatility coefficient
			// scaled by the current price.
			atr := e.cfg.VolatilityCoeff(t.position.Symbol) * t.price
			stop := t.position.EntryPrice - e.cfg.Risk.ATRMultiplier*atr
			return t.price <= stop
		},
	},
	{
		name:           "stop_loss",
		feedsDailyLoss: true,
		triggered: func(e *Engine, t *symbolTick) bool {
			return t.change <= e.cfg.Strategy.StopLoss
		},
	},
	{
		name: "take_profit",
		triggered: func(e *Engine, t *symbolTick) bool {
			return t.change >= e.cfg.Strategy.TakeProfit
		},
	},
	{
		name: "trailing_stop",
		triggered: func(e *Engine, t *symbolTick) bool {
			if t.price > t.state.AnchorPrice {
				e.risk.UpdateHighWater(t.position.Symbol, t.price)
			}
			high := e.risk.Position(t.position.Symbol).HighestPrice
			if high <= 0 {
				return false
			}
			return (high-t.price)/high >= e.cfg.Risk.TrailingStop
		},
	},
}
