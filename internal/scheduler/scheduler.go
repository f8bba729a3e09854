package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"LayerTrader/internal/broker"
	"LayerTrader/internal/config"
	"LayerTrader/internal/model"
	"LayerTrader/internal/notifier"
	"LayerTrader/internal/recorder"
	"LayerTrader/internal/risk"
	"LayerTrader/internal/strategy"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the strategy engine from cron jobs: a five-minute tick
// while the market is open, an hourly heartbeat while it is closed, and a
// daily summary after the regular-session close. Decision logic lives in the
// engine; the scheduler only sequences it.
type Scheduler struct {
	Cron     *cron.Cron
	Cfg      *config.Config
	Engine   *strategy.Engine
	Risk     *risk.Manager
	Gateway  broker.Gateway
	Notifier *notifier.TelegramNotifier
	Recorder recorder.Recorder
	Ctx      context.Context

	eastern *time.Location
}

// NewScheduler creates a Scheduler.
func NewScheduler(ctx context.Context, cfg *config.Config, eng *strategy.Engine,
	rm *risk.Manager, gw broker.Gateway, tn *notifier.TelegramNotifier, rec recorder.Recorder) *Scheduler {

	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The risk manager already refused to start without the zone data;
		// this path is unreachable in practice.
		eastern = time.UTC
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Cfg:      cfg,
		Engine:   eng,
		Risk:     rm,
		Gateway:  gw,
		Notifier: tn,
		Recorder: rec,
		Ctx:      ctx,
		eastern:  eastern,
	}
}

// RegisterAll registers the tick, idle heartbeat, and daily summary jobs.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.Cron.AddFunc(s.Cfg.Schedule.TickCron, s.tickTask); err != nil {
		return fmt.Errorf("register tick task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.Cfg.Schedule.IdleCron, s.idleTask); err != nil {
		return fmt.Errorf("register idle task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.Cfg.Schedule.SummaryCron, s.summaryTask); err != nil {
		return fmt.Errorf("register summary task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunCycleNow executes one tick immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunCycleNow() {
	s.tickTask()
}

func (s *Scheduler) tickTask() {
	if !s.Risk.IsMarketOpen(time.Now()) {
		return
	}
	if err := s.Engine.RunCycle(); err != nil {
		// Cycle-level failure: report and let the next tick retry.
		log.Printf("[ERROR] run cycle: %v", err)
		s.trySend(fmt.Sprintf("❌ 交易周期执行失败: %v", err))
	}
}

func (s *Scheduler) idleTask() {
	now := time.Now()
	if s.Risk.IsMarketOpen(now) {
		return
	}
	log.Printf("[INFO] market closed, current US/Eastern time: %s",
		now.In(s.eastern).Format("2006-01-02 15:04:05"))
}

func (s *Scheduler) summaryTask() {
	date := time.Now().In(s.eastern).Format("2006-01-02")
	log.Printf("[INFO] running daily summary for %s", date)

	g := s.Engine.GlobalState()
	equity, err := s.Risk.TotalEquity()
	if err != nil {
		log.Printf("[ERROR] daily summary equity: %v", err)
		return
	}

	todays := s.transactionsOn(date)
	sum := &recorder.DailySummary{
		Date:        date,
		Trades:      len(todays),
		RealizedPnL: g.DailyRealizedLoss,
		Equity:      equity,
		Drawdown:    g.CurrentDrawdown,
	}
	if err := s.Recorder.RecordDailySummary(sum); err != nil {
		log.Printf("[ERROR] record daily summary: %v", err)
	}
	s.trySend(notifier.FormatDailySummary(sum, todays))
}

func (s *Scheduler) transactionsOn(date string) []model.Transaction {
	var out []model.Transaction
	for _, tx := range s.Engine.Transactions() {
		if tx.Time.In(s.eastern).Format("2006-01-02") == date {
			out = append(out, tx)
		}
	}
	return out
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status", "查看账户":
		equity, err := s.Risk.TotalEquity()
		if err != nil {
			return fmt.Sprintf("获取账户状态失败: %v", err)
		}
		return notifier.FormatStatus(equity, s.Engine.GlobalState(), s.positionLines())
	case "/positions", "查看持仓":
		return notifier.FormatPositions(s.positionLines())
	case "/daily", "查看日报":
		s.summaryTask()
		return ""
	case "/run":
		go s.RunCycleNow()
		return "已触发一次策略评估"
	default:
		return "可用命令:\n• /status 账户状态\n• /positions 持仓明细\n• /daily 每日汇总\n• /run 立即评估"
	}
}

func (s *Scheduler) positionLines() []notifier.PositionLine {
	lines := make([]notifier.PositionLine, 0, len(s.Cfg.Strategy.Symbols))
	for _, symbol := range s.Cfg.Strategy.Symbols {
		pos := s.Risk.Position(symbol)
		if pos.Flat() {
			continue
		}
		price, err := s.Gateway.CurrentPrice(symbol)
		if err != nil {
			log.Printf("[WARN] price for %s: %v", symbol, err)
			price = pos.EntryPrice
		}
		lines = append(lines, notifier.PositionLine{
			Position: pos,
			Price:    price,
			Layers:   s.Engine.SymbolState(symbol).Layers,
		})
	}
	return lines
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
