package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vyuha/vyuha-lens/internal/ai"
	"github.com/vyuha/vyuha-lens/internal/api"
	"github.com/vyuha/vyuha-lens/internal/config"
	"github.com/vyuha/vyuha-lens/internal/explain"
	"github.com/vyuha/vyuha-lens/internal/feed"
	"github.com/vyuha/vyuha-lens/internal/metrics"
	"github.com/vyuha/vyuha-lens/internal/session"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

// initLogger configures the global slog default with JSON output.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(h))
}

func main() {
	// ---- Flags -----------------------------------------------------------
	configFlag := flag.String("config", os.Getenv("VYUHA_CONFIG"), "Path to YAML config file")
	dbPathFlag := flag.String("db-path", "", "Path to SQLite database file")
	portFlag := flag.Int("port", 0, "HTTP server port")
	logLevel := flag.String("log-level", "", "Log level (debug|info|warn|error)")
	aiProviderFlag := flag.String("ai-provider", "", "AI provider: bedrock, ollama or none")
	aiModelFlag := flag.String("ai-model", "", "LLM model ID (provider-specific)")
	staticDirFlag := flag.String("static-dir", "", "Directory with a renderer build to serve on /")
	flag.Parse()

	// Resolve config: defaults < file < env < explicitly set flags.
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db-path":
			cfg.Storage.DBPath = *dbPathFlag
		case "port":
			cfg.Server.Port = *portFlag
		case "log-level":
			cfg.Server.LogLevel = *logLevel
		case "ai-provider":
			cfg.AI.Provider.Kind = ai.ProviderKind(*aiProviderFlag)
		case "ai-model":
			cfg.AI.Provider.Model = *aiModelFlag
		case "static-dir":
			cfg.Server.StaticDir = *staticDirFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	initLogger(cfg.Server.LogLevel)
	ctx := context.Background()

	// ---- Storage and metrics ---------------------------------------------
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("failed to initialise storage: %v", err)
	}
	collector := metrics.NewCollector("vyuha_lens")

	// ---- SSE Broadcaster -------------------------------------------------
	sse := api.NewSSEBroadcaster()

	// ---- Sessions --------------------------------------------------------
	sessions := session.NewManager(session.Options{
		HistoryDepth:     cfg.History.MaxDepth,
		PositionedRatio:  cfg.Reconcile.PositionedRatio,
		PlacementRadius:  cfg.Placement.Radius,
		PathMaxDepth:     cfg.Paths.MaxDepth,
		BFSEdgeThreshold: cfg.Paths.BFSEdgeThreshold,
		SaveDebounce:     cfg.Persist.SaveDebounce,
	}, store, sse, collector)

	restored := 0
	if cfg.Persist.RestoreOnStart {
		restored, err = sessions.Restore(ctx)
		if err != nil {
			slog.Warn("session restore incomplete", "restored", restored, "error", err)
		}
	}

	// ---- AI Provider (optional) ------------------------------------------
	var provider ai.Provider
	var jobQueue *explain.JobQueue

	provider, err = ai.NewProvider(ctx, cfg.AI.Provider)
	switch {
	case err == nil:
		slog.Info("AI provider ready", "provider", provider.Name())
		jobQueue = explain.NewJobQueue(provider, store, sse, collector, explain.QueueOptions{
			Workers:   cfg.AI.Workers,
			QueueSize: cfg.AI.QueueSize,
			Timeout:   cfg.AI.Timeout,
		})
	case errors.Is(err, ai.ErrDisabled):
		provider = nil
	default:
		provider = nil
		slog.Warn("AI provider init failed, explanations disabled", "error", err)
	}

	// ---- HTTP Server -----------------------------------------------------
	feeds := feed.NewRegistry(feed.TailerOptions{PollInterval: cfg.Feed.PollInterval}, collector)
	srv := api.NewServer(sessions, jobQueue, feeds, sse, collector, api.Options{
		RatePerSecond:  cfg.RateLimit.PerSecond,
		Burst:          cfg.RateLimit.Burst,
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// ---- Startup banner --------------------------------------------------
	aiStatus := "disabled"
	if provider != nil {
		aiStatus = provider.Name()
	}
	banner := fmt.Sprintf(`
═══════════════════════════════
 VYUHA Lens — Graph Explorer
 DB:   %s
 Port: %d
 Sessions restored: %d
 AI:   %s
═══════════════════════════════`, cfg.Storage.DBPath, cfg.Server.Port, restored, aiStatus)
	fmt.Println(banner)

	slog.Info("vyuha-lens starting",
		"db_path", cfg.Storage.DBPath,
		"port", cfg.Server.Port,
		"sessions_restored", restored,
		"ai_provider", aiStatus,
	)

	srv.RegisterRoutes()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// ---- Graceful shutdown -----------------------------------------------
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := sessions.Close(shutdownCtx); err != nil {
		slog.Error("session close error", "error", err)
	}

	if jobQueue != nil {
		jobQueue.Close()
	}
	if provider != nil {
		provider.Close()
	}

	if err := store.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("VYUHA Lens shutdown complete")
}
