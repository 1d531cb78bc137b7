// Package server wires the companion server together: storage, the memory
// index, the generation backend, moderation, the reconciler and the gRPC
// endpoint, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/companion/internal/logging"
	"github.com/dmitrijs2005/companion/internal/server/audit"
	"github.com/dmitrijs2005/companion/internal/server/config"
	"github.com/dmitrijs2005/companion/internal/server/generation"
	"github.com/dmitrijs2005/companion/internal/server/memory"
	"github.com/dmitrijs2005/companion/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/companion/internal/server/services"
	"github.com/dmitrijs2005/companion/internal/server/telemetry"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/companion/internal/server/grpc"
)

// shutdownGrace bounds how long in-flight background work may run after
// the gRPC server has stopped.
const shutdownGrace = 15 * time.Second

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	cache        *memory.EmbeddingCache
	background   *services.Background
	reconciler   *services.Reconciler
	conversation *services.ConversationService
	admin        *services.AdminService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.build(ctx, rm); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context, rm repomanager.RepositoryManager) error {
	c := app.config

	metrics, err := telemetry.New(nil)
	if err != nil {
		return fmt.Errorf("metrics init error: %w", err)
	}

	embed, err := memory.NewEmbeddingFunc(c.EmbeddingProvider, c.EmbeddingModel, c.EmbeddingAPIKey, c.EmbeddingBaseURL)
	if err != nil {
		return fmt.Errorf("embedding init error: %w", err)
	}
	if c.EmbeddingCacheSize > 0 {
		app.cache, err = memory.NewEmbeddingCache(embed, c.EmbeddingCacheSize)
		if err != nil {
			return fmt.Errorf("embedding cache init error: %w", err)
		}
		embed = app.cache.Func()
	}

	vdb, err := memory.OpenDB(c.MemoryIndexPath)
	if err != nil {
		return err
	}
	index, err := memory.NewIndex(vdb, memory.DefaultCollection, embed)
	if err != nil {
		return err
	}

	// The summarizer shares the reply generator's pacing budget.
	limiter := generation.NewLimiter(c.GenerationRate, c.GenerationBurst)
	genOpts := []generation.Option{
		generation.WithTimeout(c.GenerationTimeout),
		generation.WithLimiter(limiter),
	}
	if c.AnthropicBaseURL != "" {
		genOpts = append(genOpts, generation.WithBaseURL(c.AnthropicBaseURL))
	}
	replyParams := generation.ReplyParams
	replyParams.Model = c.AnthropicModel
	summaryParams := generation.SummaryParams
	summaryParams.Model = c.AnthropicModel
	replies := generation.New(c.AnthropicAPIKey, replyParams, genOpts...)
	summaries := generation.New(c.AnthropicAPIKey, summaryParams, genOpts...)

	rules, err := audit.LoadRules(c.ModerationPhrasesFile)
	if err != nil {
		return fmt.Errorf("moderation rules error: %w", err)
	}
	var archiver audit.Archiver
	if c.S3Bucket != "" {
		client, err := audit.NewS3Client(ctx, audit.S3Options{
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
		if err != nil {
			return fmt.Errorf("s3 init error: %w", err)
		}
		archiver = audit.NewS3Archiver(client, c.S3Bucket)
	}

	log := app.logger
	app.background = services.NewBackground(log)
	auditor := audit.NewAuditor(app.db, rm, rules, archiver, metrics, log)
	assembler := services.NewContextAssembler(app.db, rm, index, services.AssemblerConfig{
		TopK:          c.MemoryTopK,
		WindowSize:    c.WindowSize,
		MemoryTimeout: c.MemoryTimeout,
	}, metrics, log)
	coordinator := services.NewCoordinator(app.db, rm, index, app.background, metrics, log)
	app.reconciler = services.NewReconciler(app.db, rm, index, c.ReconcileBatchSize, metrics, log)
	app.conversation = services.NewConversationService(app.db, rm, assembler, replies, coordinator, auditor, app.background, metrics, log)
	app.admin = services.NewAdminService(app.db, rm, coordinator, summaries, app.reconciler, log)

	app.logger.Info(ctx, "components ready",
		"embedding_provider", c.EmbeddingProvider,
		"memory_index_path", c.MemoryIndexPath,
		"moderation_phrases", len(rules.Phrases()),
		"archive", archiver != nil)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.conversation, app.admin, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a shutdown signal arrives, then waits
// for background work and releases resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.reconciler.Run(ctx, app.config.ReconcileInterval)
	}()

	wg.Wait()

	app.drainBackground()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) drainBackground() {
	done := make(chan struct{})
	go func() {
		app.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		app.logger.Warn(context.Background(), "background work still running at shutdown")
	}
}

func (app *App) close() {
	if app.cache != nil {
		app.cache.Close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(context.Background(), "db close error", "error", err)
		}
	}
}
