package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/config"
	"github.com/markdave123-py/docsift/internal/core"
	db "github.com/markdave123-py/docsift/internal/core/database"
	"github.com/markdave123-py/docsift/internal/core/ingestion_engine"
	"github.com/markdave123-py/docsift/internal/core/llm"
	objectclient "github.com/markdave123-py/docsift/internal/core/object-client"
	"github.com/markdave123-py/docsift/internal/core/search_engine"
	"github.com/markdave123-py/docsift/internal/metrics"
	"github.com/markdave123-py/docsift/internal/services"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	cfg *config.Config

	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Embedder     core.EmbeddingProvider
	Redis        *redis.Client
	Ingestor     ingestion_engine.Ingestor
	Metrics      *metrics.Metrics
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	applog.Info("database initialized and ready", "embed_dim", cfg.EmbedDim)

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.ObjectClient = objClient
	applog.Info("object client initialized and ready", "bucket", cfg.BucketName)

	embedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.Embedder = embedder
	applog.Info("embedder ready", "provider", cfg.EmbedProvider, "model", cfg.EmbedModel)

	pdf, err := ingestion_engine.NewPDFExtractor(cfg.PDFExtractor, cfg.PdftotextPath, cfg.ExtractTimeout, cfg.ExtractMaxBytes)
	if err != nil {
		return nil, err
	}
	extractor := ingestion_engine.NewDocumentExtractor(pdf)

	locker, err := a.newLocker(appCtx)
	if err != nil {
		return nil, err
	}

	a.Ingestor = ingestion_engine.NewDocumentIngestor(dbClient, objClient, embedder, extractor, locker, a.Metrics, ingestion_engine.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatchSize,
		EmbedDim:     cfg.EmbedDim,
		Bucket:       cfg.BucketName,
		LeaseTTL:     cfg.IngestLeaseTTL,
	})

	cache := search_engine.NewQueryEmbeddingCache(cfg.QueryCacheSize, cfg.QueryCacheTTL, a.Metrics)
	searchSvc := search_engine.NewSearchService(dbClient, embedder, cache, dbClient, a.Metrics, search_engine.SearchConfig{
		FetchK:   cfg.SearchFetchK,
		ResultK:  cfg.SearchResultK,
		MaxK:     cfg.SearchMaxK,
		EmbedDim: cfg.EmbedDim,
	})

	router := NewRouter(RouterDeps{
		Health:      dbClient,
		Metrics:     a.Metrics,
		Ingest:      a.Ingestor,
		Search:      searchSvc,
		Documents:   services.NewDocumentService(dbClient, objClient, a.Ingestor, cfg.BucketName),
		Projects:    services.NewProjectService(dbClient),
		CorsOrigins: cfg.CorsOrigins,
		MaxUpload:   cfg.MaxUploadBytes,
	})
	a.Server = NewServer(cfg.Port, router)

	ok = true
	return a, nil
}

// Run serves HTTP and drains the ingestion queue until ctx is cancelled, then
// shuts the server down and waits for in-flight ingestions.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.Ingestor.Start(gctx, a.cfg.IngestWorkers)
	applog.Info("ingest workers started", "workers", a.cfg.IngestWorkers)

	g.Go(a.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Ingestor.Wait()
	return err
}

func (a *App) Close() {
	if c, ok := a.Embedder.(io.Closer); ok {
		_ = c.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		return llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
	case "openai":
		return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbedModel,
			Dimension: cfg.EmbedDim,
		})
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

// newLocker shares leases through Redis when REDIS_URL is set, and keeps
// them in process otherwise.
func (a *App) newLocker(ctx context.Context) (core.IngestLocker, error) {
	if a.cfg.RedisURL == "" {
		applog.Info("REDIS_URL not set, ingest leases are process-local")
		return ingestion_engine.NewLocalLocker(), nil
	}
	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.Redis = client
	applog.Info("ingest leases backed by redis", "addr", opt.Addr)
	return ingestion_engine.NewRedisLocker(client), nil
}
