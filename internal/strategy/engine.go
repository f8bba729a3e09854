package strategy

import (
	"fmt"
	"log"
	"sync"
	"time"

	"LayerTrader/internal/broker"
	"LayerTrader/internal/config"
	"LayerTrader/internal/indicator"
	"LayerTrader/internal/market"
	"LayerTrader/internal/model"
	"LayerTrader/internal/notifier"
	"LayerTrader/internal/recorder"
	"LayerTrader/internal/risk"
	"LayerTrader/internal/sentiment"
)

// Engine owns one state machine per symbol plus the global drawdown tracker.
// Each cycle it evaluates entry, layered scale-in, and the ordered exit rules
// for every symbol in the universe. The mutex serializes cycles against each
// other (cron tick vs a manually triggered run) and against the Telegram
// command goroutine reading state through the accessors.
type Engine struct {
	cfg      *config.Config
	gateway  broker.Gateway
	risk     *risk.Manager
	sizer    *Sizer
	history  market.HistoryProvider
	senti    sentiment.Provider
	monitor  *market.Monitor
	rec      recorder.Recorder
	notifier notifier.Sender

	mu           sync.Mutex
	states       map[string]*model.SymbolState
	global       model.GlobalRiskState
	transactions []model.Transaction
}

// NewEngine creates an Engine for the configured symbol universe. The
// sentiment provider, monitor, recorder, and notifier may be nil; the engine
// degrades to neutral signals and silent operation.
func NewEngine(cfg *config.Config, gateway broker.Gateway, rm *risk.Manager,
	history market.HistoryProvider, sp sentiment.Provider, monitor *market.Monitor,
	rec recorder.Recorder, sender notifier.Sender) *Engine {

	states := make(map[string]*model.SymbolState, len(cfg.Strategy.Symbols))
	for _, symbol := range cfg.Strategy.Symbols {
		states[symbol] = &model.SymbolState{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Engine{
		cfg:      cfg,
		gateway:  gateway,
		risk:     rm,
		sizer:    NewSizer(cfg, gateway, rm),
		history:  history,
		senti:    sp,
		monitor:  monitor,
		rec:      rec,
		notifier: sender,
		states:   states,
	}
}

// GlobalState returns a copy of the global risk snapshot.
func (e *Engine) GlobalState() model.GlobalRiskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.global
	g.DailyRealizedLoss = e.risk.DailyLoss()
	return g
}

// Transactions returns a copy of the in-memory audit log.
func (e *Engine) Transactions() []model.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Transaction, len(e.transactions))
	copy(out, e.transactions)
	return out
}

// SymbolState returns a copy of one symbol's layering state.
func (e *Engine) SymbolState(symbol string) model.SymbolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[symbol]; ok {
		return *st
	}
	return model.SymbolState{}
}

// RunCycle performs one full evaluation tick: refresh the global risk
// snapshot, then process each symbol. A per-symbol failure skips only that
// symbol; an equity failure aborts the cycle and is retried next tick.
// Concurrent calls serialize; the second caller waits its turn.
func (e *Engine) RunCycle() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	equity, err := e.risk.TotalEquity()
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}
	e.global.ObserveEquity(equity)
	e.global.DailyRealizedLoss = e.risk.DailyLoss()

	if e.global.CurrentDrawdown > e.cfg.Risk.MaxDrawdown {
		// Warning only: drawdown never halts trading.
		log.Printf("[WARN] drawdown %.1f%% exceeds limit %.1f%%",
			e.global.CurrentDrawdown*100, e.cfg.Risk.MaxDrawdown*100)
		e.trySend(fmt.Sprintf("⚠️ 回撤警告：当前回撤 %.1f%% 超过上限 %.1f%%",
			e.global.CurrentDrawdown*100, e.cfg.Risk.MaxDrawdown*100))
	}

	if err := e.rec.RecordEquity(&recorder.EquitySnapshot{
		Equity:    equity,
		MaxEquity: e.global.MaxEquityObserved,
		Drawdown:  e.global.CurrentDrawdown,
		DailyPnL:  e.risk.DailyLoss(),
	}); err != nil {
		log.Printf("[ERROR] record equity: %v", err)
	}

	for _, symbol := range e.cfg.Strategy.Symbols {
		tx, err := e.processSymbol(symbol)
		if err != nil {
			log.Printf("[ERROR] process %s: %v", symbol, err)
			continue
		}
		if tx != nil {
			e.commit(tx)
		}
	}
	return nil
}

// processSymbol runs one symbol through the state machine and returns the
// transaction it produced, if any.
func (e *Engine) processSymbol(symbol string) (*model.Transaction, error) {
	price, err := e.gateway.CurrentPrice(symbol)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	pos := e.risk.Position(symbol)
	st := e.states[symbol]
	if st == nil {
		st = &model.SymbolState{}
		e.states[symbol] = st
	}
	// A position closed out-of-band (manual sale, broker sweep) leaves stale
	// layering state behind; reconcile before deciding anything.
	if pos.Flat() && st.Layers > 0 {
		log.Printf("[WARN] %s flat at broker but layers=%d, resetting", symbol, st.Layers)
		st.Reset()
	}

	cat := e.sentimentCategory()
	cross := e.crossoverSignal(symbol)

	if pos.Flat() {
		return e.tryEnter(symbol, price, cat, cross, st)
	}

	tick := &symbolTick{
		price:     price,
		position:  pos,
		state:     st,
		sentiment: cat,
		crossover: cross,
		change:    (price - pos.EntryPrice) / pos.EntryPrice,
	}
	for _, rule := range exitRules {
		if rule.triggered(e, tick) {
			return e.liquidate(symbol, price, tick, rule)
		}
	}
	return e.tryScaleIn(symbol, price, cat, cross, st)
}

// tryEnter opens the first tranche for a flat symbol.
func (e *Engine) tryEnter(symbol string, price float64, cat model.SentimentCategory,
	cross model.Crossover, st *model.SymbolState) (*model.Transaction, error) {

	if e.risk.DailyLossBreached(0) {
		log.Printf("[WARN] daily loss limit reached, entries blocked (%s)", symbol)
		return nil, nil
	}

	base := e.cfg.Strategy.LayerSize
	reason := "entry"
	switch {
	case cross == model.CrossoverGolden:
		base *= 1.2
		reason = "entry_golden_cross"
	case cat == model.SentimentBuy || cat == model.SentimentStrongBuy:
		reason = "entry_sentiment"
	default:
		base *= 0.8
	}

	tx, err := e.sizer.SizeOrder(symbol, base, cat, e.regime())
	if err != nil || tx == nil {
		return nil, err
	}
	st.Layers = 1
	st.AnchorPrice = tx.Price
	tx.Reason = reason
	e.trySend(fmt.Sprintf("📈 首次建仓 %s %d 股，价格 %.2f (%s)", symbol, tx.Quantity, tx.Price, reason))
	return tx, nil
}

// liquidate closes the full position for a triggered exit rule. The position
// cache and symbol state are updated only after the broker accepts the sell.
func (e *Engine) liquidate(symbol string, price float64, tick *symbolTick, rule exitRule) (*model.Transaction, error) {
	qty := tick.position.Quantity
	if err := e.gateway.SubmitSell(symbol, qty); err != nil {
		return nil, fmt.Errorf("submit sell %s x%d: %w", symbol, qty, err)
	}

	realized := (price - tick.position.EntryPrice) * float64(qty)
	if rule.feedsDailyLoss {
		if e.risk.DailyLossBreached(realized) {
			log.Printf("[WARN] daily loss limit breached after %s on %s", rule.name, symbol)
		}
	}
	e.risk.RecordPositionDelta(symbol, price, -qty)
	tick.state.Reset()

	e.trySend(fmt.Sprintf("📉 %s 清仓 %s 全部 %d 股，价格 %.2f，盈亏 %+.2f",
		exitLabel(rule.name), symbol, qty, price, realized))

	return &model.Transaction{
		Time:     time.Now(),
		Action:   model.ActionSell,
		Symbol:   symbol,
		Quantity: qty,
		Price:    price,
		Reason:   rule.name,
	}, nil
}

// tryScaleIn adds a tranche when price has dropped far enough below the
// anchor. The trigger widens with each layer already held.
func (e *Engine) tryScaleIn(symbol string, price float64, cat model.SentimentCategory,
	cross model.Crossover, st *model.SymbolState) (*model.Transaction, error) {

	if st.AnchorPrice == 0 {
		// Position inherited without an anchor (reconciled at startup);
		// adopt the current price as the reference.
		st.AnchorPrice = price
		if st.Layers == 0 {
			st.Layers = 1
		}
		return nil, nil
	}

	drop := (st.AnchorPrice - price) / st.AnchorPrice
	if drop < e.cfg.Strategy.LayerDrop*float64(st.Layers) || st.Layers >= e.cfg.Strategy.MaxLayers {
		return nil, nil
	}

	ur, err := e.risk.UnrealizedRisk(symbol)
	if err != nil {
		return nil, fmt.Errorf("scale-in: %w", err)
	}
	if ur < -0.03 {
		log.Printf("[WARN] %s unrealized risk %.1f%% too deep, skipping layer", symbol, ur*100)
		return nil, nil
	}
	if cat == model.SentimentStrongSell {
		log.Printf("[INFO] %s scale-in aborted on STRONG_SELL sentiment", symbol)
		return nil, nil
	}

	base := e.cfg.Strategy.LayerSize
	if cross == model.CrossoverGolden {
		base *= 1.3
	}

	tx, err := e.sizer.SizeOrder(symbol, base, cat, e.regime())
	if err != nil || tx == nil {
		return nil, err
	}
	st.Layers++
	tx.Reason = fmt.Sprintf("layer_%d", st.Layers)
	e.trySend(fmt.Sprintf("➕ 触发加仓 %s 第 %d 层，加 %d 股，价格 %.2f",
		symbol, st.Layers, tx.Quantity, tx.Price))
	return tx, nil
}

func (e *Engine) sentimentCategory() model.SentimentCategory {
	if e.senti == nil || !e.cfg.Sentiment.Enabled {
		return model.SentimentNeutral
	}
	score, err := e.senti.Score()
	if err != nil {
		log.Printf("[WARN] sentiment unavailable, treating as NEUTRAL: %v", err)
		return model.SentimentNeutral
	}
	return sentiment.Category(score)
}

func (e *Engine) crossoverSignal(symbol string) model.Crossover {
	if e.history == nil {
		return model.CrossoverNone
	}
	closes, err := e.history.Closes(symbol, e.cfg.Strategy.LongWindow+10)
	if err != nil {
		log.Printf("[WARN] history for %s unavailable, no crossover signal: %v", symbol, err)
		return model.CrossoverNone
	}
	return indicator.Crossover(closes, e.cfg.Strategy.ShortWindow, e.cfg.Strategy.LongWindow)
}

func (e *Engine) regime() model.Regime {
	if e.monitor == nil {
		return model.RegimeNeutral
	}
	return e.monitor.Assess().Regime
}

func (e *Engine) commit(tx *model.Transaction) {
	e.transactions = append(e.transactions, *tx)
	if err := e.rec.RecordTransaction(tx); err != nil {
		log.Printf("[ERROR] record transaction: %v", err)
	}
}

func (e *Engine) trySend(text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(text); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}

func exitLabel(name string) string {
	switch name {
	case "trend_exit":
		return "趋势反转"
	case "sentiment_exit":
		return "情绪离场"
	case "volatility_stop":
		return "波动止损"
	case "stop_loss":
		return "止损"
	case "take_profit":
		return "止盈"
	case "trailing_stop":
		return "跟踪止损"
	default:
		return name
	}
}
