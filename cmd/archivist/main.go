package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ent0n29/archivist/internal/agent"
	"github.com/ent0n29/archivist/internal/chunker"
	"github.com/ent0n29/archivist/internal/completion"
	"github.com/ent0n29/archivist/internal/config"
	"github.com/ent0n29/archivist/internal/executor"
	"github.com/ent0n29/archivist/internal/httpapi"
	"github.com/ent0n29/archivist/internal/index"
	"github.com/ent0n29/archivist/internal/ingest"
	"github.com/ent0n29/archivist/internal/observability"
	"github.com/ent0n29/archivist/internal/planner"
	"github.com/ent0n29/archivist/internal/tokens"
	"github.com/ent0n29/archivist/internal/tools"
	"github.com/ent0n29/archivist/internal/transcript"
	"github.com/ent0n29/archivist/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	ctx := context.Background()

	store, err := index.NewStore(ctx, cfg.IndexPath)
	if err != nil {
		log.Fatalf("index store init failed: %v", err)
	}
	defer store.Close()
	if cfg.IndexPath == "" {
		log.Printf("document index: in-memory")
	} else {
		log.Printf("document index: sqlite at %s", cfg.IndexPath)
	}

	transcripts, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer transcripts.Close()

	client, err := completion.NewClient(completion.Config{
		Mode:    cfg.CompletionMode,
		HTTPURL: cfg.CompletionURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.PlanTimeout,
	})
	if err != nil {
		log.Fatalf("completion client init failed: %v", err)
	}
	log.Printf("completion backend: %T", client)

	ing := ingest.New(chunker.New(cfg.ChunkSize, cfg.ChunkOverlap), store)

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewCalculatorTool(),
		tools.NewSearchTool(store),
		tools.NewIndexDocsTool(ing),
	} {
		if err := registry.Register(tool); err != nil {
			log.Fatalf("register tool %s: %v", tool.Name, err)
		}
	}

	exec := executor.New(registry, executor.Config{
		Attempts:    cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		ToolTimeout: cfg.ToolTimeout,
	})

	strategy := planner.NewHybridStrategy(
		planner.NewRuleStrategy(),
		planner.NewModelStrategy(client, planner.ModelConfig{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
			Timeout:   cfg.PlanTimeout,
		}),
	)

	est := tokens.NewEstimator()
	summarizer := completion.NewSummarizer(client, cfg.CompressTimeout)
	sessions := agent.NewManager(func() *window.Manager {
		return window.NewManager(window.Config{
			Budget:       cfg.TokenBudget,
			RecentPinned: cfg.RecentPinned,
			TargetRatio:  cfg.CompressTargetRatio,
		}, est, summarizer)
	}, cfg.AllowedTools, cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *agent.Session) {
		metrics.SessionOutcomes.WithLabelValues("EXPIRED", "").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	loop := agent.NewLoop(agent.LoopDeps{
		Strategy:    strategy,
		Executor:    exec,
		Registry:    registry,
		Transcripts: transcripts,
		Metrics:     metrics,
		Stages:      stages,
	}, cfg.MaxIterations)

	api := httpapi.New(cfg, sessions, loop, ing, transcripts, metrics, stages)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 30*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
