// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"research-orchestrator/internal/config"
	"research-orchestrator/internal/domain/ports/adapter"
	aiAdapters "research-orchestrator/internal/infra/adapters/ai"
	"research-orchestrator/internal/infra/adapters/search"
	"research-orchestrator/internal/infra/adapters/vector"
	"research-orchestrator/internal/infra/api"
	pg "research-orchestrator/internal/infra/db/postgres"
	"research-orchestrator/internal/infra/events"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/memstate"
	"research-orchestrator/internal/infra/metrics"
	red "research-orchestrator/internal/infra/redis"
	"research-orchestrator/internal/infra/sched"
	"research-orchestrator/internal/infra/security"
	"research-orchestrator/internal/infra/stream"
	"research-orchestrator/internal/infra/worker"
	"research-orchestrator/internal/usecase"
	"research-orchestrator/internal/usecase/research"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

const upstreamTimeout = 30 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (fixed dev user, open CORS)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	fatal := func(what string, err error) {
		logger.Fatal().Err(err).Msg(what)
	}
	if cfg.Runtime.Dev {
		logger.Warn().Str("dev_user", cfg.Auth.DevUserID).Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		fatal("postgres", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		fatal("redis", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Encryption ----
	vault, err := security.NewKeyVault(cfg.Security.EncryptionKey)
	if err != nil {
		fatal("key vault", err)
	}

	// ---- Repositories ----
	// Cached thread reads must expire before finished turns leave memory,
	// or a read could miss both copies.
	threadTTL := cfg.Redis.ThreadTTL
	if half := cfg.Pipeline.EvictionGrace / 2; threadTTL <= 0 || threadTTL > half {
		threadTTL = half
	}
	txm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool)
	msgRepo := pg.NewMessageRepoCacheDecorator(pg.NewMessageRepo(pool), redisClient, threadTTL)
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewUserRepo(pool), redisClient, cfg.Redis.TTL)
	docRepo := pg.NewDocumentRepo(pool)

	// ---- Upstream adapters ----
	openai, err := aiAdapters.NewOpenAIAdapter(&cfg.LLM, logger)
	if err != nil {
		fatal("llm adapter", err)
	}
	var llm adapter.LLMClient = openai
	if cfg.LLM.ConcurrentLimit > 0 {
		llm = aiAdapters.NewLimitedLLM(openai, cfg.LLM.ConcurrentLimit)
	}
	embedder, err := aiAdapters.NewGeminiEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		fatal("embedder", err)
	}
	web := search.NewTavilyAdapter(cfg.Search.TavilyURL, upstreamTimeout)
	vectors := vector.NewQdrantStore(cfg.Vector.QdrantURL, cfg.Vector.APIKey, upstreamTimeout)
	logger.Info().
		Str("llm_base", cfg.LLM.BaseURL).
		Str("llm_model", cfg.LLM.Model).
		Str("embedding_model", cfg.Embedding.Model).
		Str("qdrant", cfg.Vector.QdrantURL).
		Msg("upstream adapters ready")

	// ---- Pipeline runtime ----
	chunker := research.NewChunker(cfg.Search.ChunkTokens)
	stages := usecase.Stages{
		Planner:   research.NewPlanner(llm, logger),
		Searcher:  research.NewSearcher(web, embedder, vectors, chunker, cfg.Search, logger),
		Extractor: research.NewExtractor(llm, embedder, vectors, cfg.Search.Concurrency, logger),
		Compiler:  research.NewCompiler(llm, logger),
	}
	state := memstate.New(cfg.Pipeline.EvictionGrace)
	bus := events.NewBus(cfg.Pipeline.EventBuffer, logger)
	streams := stream.NewManager(bus, logger)
	workers := worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	workers.Start(ctx)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, vault, logger)
	jobUC := usecase.NewJobUseCase(jobRepo, msgRepo, txm, state, bus, workers, userUC, stages, cfg.Pipeline, logger)
	docUC := usecase.NewDocumentUseCase(docRepo, jobRepo, txm, state, embedder, vectors, chunker, cfg.Upload.MaxBytes, logger)

	// ---- Reconciler ----
	reconciler := sched.NewReconciler(jobUC, locker, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.StaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP server ----
	srv := api.NewServer(cfg, api.Deps{
		Jobs:      jobUC,
		Users:     userUC,
		Documents: docUC,
		Streams:   streams,
		Limiter:   rateLimiter,
		Auth:      api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Runtime.Dev, cfg.Auth.DevUserID),
		Metrics:   metrics.Handler(),
	}, logger)
	// Request contexts end when shutdown starts so open streams let go.
	reqCtx, endRequests := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
	}
	server.RegisterOnShutdown(endRequests)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	// In-flight pipelines get the rest of the shutdown budget, then their
	// context is cancelled and they record the failure.
	drained := make(chan struct{})
	go func() {
		workers.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("pipelines still running at shutdown deadline; cancelling")
		cancel()
		<-drained
	}
	cancel()
	logger.Info().Msg("bye")
}
