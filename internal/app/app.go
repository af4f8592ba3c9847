// Package app is the composition root shared by the worker and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/chunking"
	"github.com/kailas-cloud/lexrag/internal/config"
	"github.com/kailas-cloud/lexrag/internal/db"
	dbPostgres "github.com/kailas-cloud/lexrag/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/lexrag/internal/db/redis"
	dbSqlite "github.com/kailas-cloud/lexrag/internal/db/sqlite"
	"github.com/kailas-cloud/lexrag/internal/domain"
	"github.com/kailas-cloud/lexrag/internal/metrics"
	catalogrepo "github.com/kailas-cloud/lexrag/internal/repository/catalog"
	chunkrepo "github.com/kailas-cloud/lexrag/internal/repository/chunk"
	"github.com/kailas-cloud/lexrag/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/lexrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/lexrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/lexrag/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/lexrag/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/lexrag/internal/usecase/retrieval"
)

// App holds the wired services of one process.
type App struct {
	Config    config.Config
	Store     db.VectorStore
	Catalog   *catalogrepo.Repo
	Chunker   *chunking.Engine
	Retrieval *retrievaluc.Service
	Ingest    *ingestuc.Service
	Health    *healthuc.Service

	cache  *dbRedis.Store
	logger *zap.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
	migrate       bool
}

// WithEmbedders replaces the provider chains built from config.
func WithEmbedders(doc, query domain.Embedder) Option {
	return func(o *options) {
		o.docEmbedder = doc
		o.queryEmbedder = query
	}
}

// WithMigrate forces schema migration regardless of database.migrate_on_start.
func WithMigrate() Option {
	return func(o *options) { o.migrate = true }
}

// New opens the stores, waits for them, migrates if configured and wires the services.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{migrate: cfg.Database.MigrateOnStart}
	for _, opt := range opts {
		opt(&o)
	}

	vc, err := vectorConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg.Database, vc.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}
	a := &App{Config: cfg, Store: store, logger: logger}

	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		a.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	if o.migrate {
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("Schema migrated", zap.String("driver", cfg.Database.Driver))
	}

	if cfg.Cache.Enabled {
		cache, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:          cfg.Cache.Addrs,
			Username:       cfg.Cache.Username,
			Password:       cfg.Cache.Password,
			DB:             cfg.Cache.DB,
			CommandTimeout: cfg.Cache.CommandTimeout(),
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create cache: %w", err)
		}
		a.cache = cache
		if err := cache.WaitForReady(ctx, readiness); err != nil {
			a.Close()
			return nil, fmt.Errorf("cache not ready: %w", err)
		}
	}

	docEmbedder, queryEmbedder := o.docEmbedder, o.queryEmbedder
	var providerHealth domain.Embedder
	if docEmbedder == nil || queryEmbedder == nil {
		base, err := a.baseEmbedder(vc)
		if err != nil {
			a.Close()
			return nil, err
		}
		providerHealth = base
		docEmbedder = a.buildEmbedder(base, vc, vc.DocumentInstruction)
		queryEmbedder = a.buildEmbedder(base, vc, vc.QueryInstruction)
	} else {
		providerHealth = docEmbedder
	}

	chunker, err := chunking.New(ChunkingConfig(cfg.Chunking))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("chunking config: %w", err)
	}
	a.Chunker = chunker.WithLogger(logger)

	chunks := chunkrepo.New(store)
	a.Catalog = catalogrepo.New(store)
	a.Retrieval = retrievaluc.New(chunks, queryEmbedder, retrievaluc.Options{
		Model:        vc.Model,
		Dimensions:   vc.Dimensions,
		StrictModel:  cfg.Retrieval.ModelPolicy == "strict",
		DefaultLimit: cfg.Retrieval.DefaultLimit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
	}, logger)
	a.Ingest = ingestuc.New(a.Chunker, chunks, docEmbedder, a.Retrieval, vc.Model, logger).
		WithConcurrency(cfg.Ingest.Concurrency).
		WithMaxBatchSize(cfg.Ingest.MaxBatchSize)

	var cachePinger healthuc.Pinger
	if a.cache != nil {
		cachePinger = a.cache
	}
	a.Health = healthuc.New(store, cachePinger, newEmbeddingHealthChecker(providerHealth))

	logger.Info("Services wired",
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("cache", a.cache != nil),
		zap.String("model", vc.Model),
		zap.Int("dimensions", vc.Dimensions),
		zap.String("model_policy", cfg.Retrieval.ModelPolicy),
	)
	return a, nil
}

// Close releases the cache client and the database pool.
func (a *App) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

func vectorConfig(cfg config.Config) (config.VectorizerConfig, error) {
	if len(cfg.Embedding.Vectorizers) == 0 {
		d := domain.DefaultVectorConfig()
		return config.VectorizerConfig{Model: d.Model, Dimensions: d.Dimensions}, nil
	}
	vc, _, err := cfg.Embedding.Active()
	if err != nil {
		return config.VectorizerConfig{}, fmt.Errorf("embedding config: %w", err)
	}
	return vc, nil
}

func newStore(cfg config.DatabaseConfig, dimensions int) (db.VectorStore, error) {
	switch cfg.Driver {
	case "postgres":
		return dbPostgres.NewStore(dbPostgres.Config{
			DSN:             cfg.DSN,
			Dimensions:      dimensions,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime(),
			ConnMaxIdleTime: cfg.ConnMaxIdleTime(),
			CommandTimeout:  cfg.CommandTimeout(),
		})
	case "sqlite":
		return dbSqlite.NewStore(dbSqlite.Config{
			Path:           cfg.DSN,
			Dimensions:     dimensions,
			CommandTimeout: cfg.CommandTimeout(),
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// ChunkingConfig maps the YAML chunking section onto engine tunables.
func ChunkingConfig(c config.ChunkingConfig) chunking.Config {
	return chunking.Config{
		MinTokens:           c.MinTokens,
		TargetTokens:        c.TargetTokens,
		MaxTokens:           c.MaxTokens,
		OverlapParagraphs:   c.Overlap(),
		PreservePageMarkers: c.PreservePageMarkers,
		DetectHeaders:       c.HeaderDetection(),
	}
}

func (a *App) baseEmbedder(vc config.VectorizerConfig) (*openaiEmb.Embedder, error) {
	_, prov, err := a.Config.Embedding.Active()
	if err != nil {
		return nil, fmt.Errorf("embedding config: %w", err)
	}
	return openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     prov.APIKey,
		BaseURL:    prov.BaseURL,
		Model:      vc.Model,
		Dimensions: vc.Dimensions,
		Provider:   vc.Provider,
		Logger:     a.logger,
	}), nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
func (a *App) buildEmbedder(base domain.Embedder, vc config.VectorizerConfig, instruction string) domain.Embedder {
	embedder := base
	if a.cache != nil {
		embedder = embcache.New(base, a.cache, embcache.Options{
			Prefix: a.Config.Cache.KeyPrefix,
			Model:  vc.Model,
			TTL:    a.Config.Cache.TTL(),
		}, metrics.EmbeddingCacheTotal, a.logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, vc.Provider, vc.Model, vc.Dimensions, a.logger,
	).WithBatchSize(a.Config.Embedding.BatchSize)

	// Instruction prefix is outermost so the cache key includes it.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
