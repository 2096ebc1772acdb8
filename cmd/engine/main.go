package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alpha-engine/internal/auditlog"
	"alpha-engine/internal/council"
	"alpha-engine/internal/engine"
	"alpha-engine/internal/ingest"
	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/llm"
	"alpha-engine/internal/logger"
	"alpha-engine/internal/marketdata"
	"alpha-engine/internal/news"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/trace"
	"alpha-engine/internal/trust"

	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()
	cfg, err := store.LoadConfig("config.yaml")
	must(err)

	must(logger.Init())
	_ = trace.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audit := auditlog.New(cfg.DataDir)
	if v := os.Getenv("ALPHA_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		_ = audit.CompressOlder(n)
	}

	st := state.New(cfg.Engine.StartingBalance)

	// Restore durable state: decision history for dedupe across restarts,
	// profiles so known sources are not cold starts again.
	if decisions, err := audit.LoadDecisions(); err == nil {
		for _, d := range decisions {
			_ = st.AppendDecision(d)
		}
	} else {
		logger.Warn(ctx, "Could not load decision history", "error", err)
	}
	if profiles, err := audit.LoadProfiles(); err == nil {
		for _, p := range profiles {
			_ = st.SetProfile(p)
		}
	} else {
		logger.Warn(ctx, "Could not load source profiles", "error", err)
	}

	tr := trust.New(st, cfg)
	tr.Seed(ctx, cfg.Trust.Seeds)

	md := marketdata.NewClient(cfg.MarketData.BaseURL)
	reasoner := llm.NewReasoner(cfg)
	co := council.New(cfg, st, audit, md,
		council.NewFundamentalist(reasoner),
		council.NewSentiment(reasoner),
		council.NewRiskManager(reasoner),
	)

	var scraper *news.Scraper
	if cfg.News.Enabled {
		scraper = news.NewScraper(time.Duration(cfg.News.TimeoutSeconds) * time.Second)
	}

	// Order submission belongs to the execution collaborator; until one is
	// wired in, LIVE must fail loudly rather than quietly simulate.
	if cfg.Mode == "LIVE" {
		log.Fatal("mode LIVE configured but no execution collaborator is wired; refusing to start")
	}
	log.Println(">> DRY_RUN mode")
	executor := engine.NewDryRunExecutor(st, md)

	eng := engine.New(cfg, st, tr, co, md, scraper, executor)

	sources := []interfaces.SignalSource{
		ingest.NewOrderBookWatcher(cfg, st),
		ingest.NewWhaleWatcher(cfg, st, md, tr),
	}
	for _, src := range sources {
		go func(src interfaces.SignalSource) {
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorWithErr(ctx, "Signal source stopped", err, "source", src.Name())
			}
		}(src)
	}
	go func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorWithErr(ctx, "Engine loop stopped", err)
		}
	}()

	log.Println("Engine started.")
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	log.Println("Shutting down...")
	cancel()
	if err := audit.SaveProfiles(st.Profiles()); err != nil {
		log.Printf("profile save failed: %v", err)
	}
	shutdownCtx := context.Background()
	_ = trace.Shutdown(shutdownCtx)
	_ = logger.Shutdown(shutdownCtx)
}
