package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"LayerTrader/internal/broker"
	"LayerTrader/internal/config"
	"LayerTrader/internal/market"
	"LayerTrader/internal/notifier"
	"LayerTrader/internal/recorder"
	"LayerTrader/internal/risk"
	"LayerTrader/internal/scheduler"
	"LayerTrader/internal/sentiment"
	"LayerTrader/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] LayerTrader starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init broker gateway
	var gateway broker.Gateway
	if cfg.Broker.APIKey != "" {
		gateway = broker.NewAlpacaGateway(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Proxy)
	} else {
		log.Println("[WARN] no broker API key configured, using in-memory paper gateway")
		gateway = broker.NewPaperGateway(100000)
	}
	log.Printf("[INFO] broker gateway: %s", gateway.Name())

	// Init market data providers
	yahoo := market.NewYahooProvider(cfg.Proxy)
	var senti sentiment.Provider
	if cfg.Sentiment.Enabled {
		senti = sentiment.NewFearGreedClient(cfg.Sentiment.CacheFile,
			time.Duration(cfg.Sentiment.CacheTTL)*time.Second, cfg.Proxy)
	}
	monitor := market.NewMonitor(yahoo, senti)

	// Init risk manager and reconcile against broker truth
	rm, err := risk.NewManager(gateway, cfg)
	if err != nil {
		log.Fatalf("[FATAL] init risk manager: %v", err)
	}
	if err := rm.SyncPositions(cfg.Strategy.Symbols); err != nil {
		log.Fatalf("[FATAL] reconcile positions: %v", err)
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var sender notifier.Sender = notifier.NoopSender{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Println("[WARN] Telegram not configured, notifications disabled")
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init strategy engine
	eng := strategy.NewEngine(cfg, gateway, rm, yahoo, senti, monitor, rec, sender)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, cfg, eng, rm, gateway, tn, rec)
	if err := sched.RegisterAll(); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Startup notification with the current market mood
	startupMsg := fmt.Sprintf("🤖 交易系统已启动，交易标的: %s", strings.Join(cfg.Strategy.Symbols, ", "))
	if senti != nil {
		if score, err := senti.Score(); err != nil {
			log.Printf("[WARN] initial fear/greed fetch: %v", err)
		} else {
			startupMsg += fmt.Sprintf("\n当前恐慌贪婪指数: %d (%s)", score, sentiment.Rating(score))
		}
	}
	if err := sender.Send(startupMsg); err != nil {
		log.Printf("[ERROR] startup notification: %v", err)
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing one cycle now")
		go sched.RunCycleNow()
	}

	log.Println("[INFO] LayerTrader is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] LayerTrader stopped")
}
