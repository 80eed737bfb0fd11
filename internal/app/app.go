// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/api/handlers"
	"github.com/markdave123-py/contexta-datasets/internal/config"
	"github.com/markdave123-py/contexta-datasets/internal/core"
	"github.com/markdave123-py/contexta-datasets/internal/core/annotation"
	db "github.com/markdave123-py/contexta-datasets/internal/core/database"
	"github.com/markdave123-py/contexta-datasets/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-datasets/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-datasets/internal/core/object-client"
	"github.com/markdave123-py/contexta-datasets/internal/core/vectorindex"
	"github.com/markdave123-py/contexta-datasets/internal/core/webhook"
	"github.com/markdave123-py/contexta-datasets/internal/logger"
	"github.com/markdave123-py/contexta-datasets/internal/metrics"
	"github.com/markdave123-py/contexta-datasets/internal/services"
)

type App struct {
	Config   *config.Config
	Store    core.DatasetStore
	Ingestor ingestion_engine.Ingestor
	Server   *Server

	log     zerolog.Logger
	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, log: log}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	index, err := a.openStore(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	httpClient := &http.Client{}
	var s3 core.ObjectLoader
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg, logger.Component(log, "s3"))
		if err != nil {
			a.Close()
			return nil, err
		}
		s3 = s3Client
		log.Info().Str("region", cfg.AwsRegion).Msg("object client initialized and ready")
	} else {
		log.Warn().Msg("AWS credentials not set, s3 objects are fetched as public urls")
	}
	objects := objectclient.NewRouter(s3, objectclient.NewHTTPClient(httpClient), cfg.FetchTimeout)
	annotations := annotation.NewClient(cfg.AnnotationURL, cfg.AnnotationToken, httpClient)

	var notifier core.StatusNotifier = webhook.Noop{}
	if cfg.WebhookURL != "" {
		notifier = webhook.NewNotifier(cfg.WebhookURL, logger.Component(log, "webhook"), webhook.WithHTTPClient(httpClient))
	}

	extractor := ingestion_engine.NewDocconvExtractor(logger.Component(log, "extractor"))
	registry := ingestion_engine.NewRegistry(objects, annotations, extractor, ingestion_engine.NewCharacterSplitter())

	ingestLog := logger.Component(log, "ingestor")
	gate := ingestion_engine.NewDocumentGate()
	locks := ingestion_engine.NewKeyedMutex()
	pipeline := ingestion_engine.NewPipeline(registry, index, ingestLog)
	reconciler := ingestion_engine.NewReconciler(pipeline, a.Store, index, gate, cfg.IngestParallelism, m, ingestLog)
	a.Ingestor = ingestion_engine.NewDatasetIngestor(reconciler, a.Store, notifier, locks, ingestion_engine.IngestConfig{
		Workers:     cfg.IngestWorkers,
		QueueSize:   cfg.IngestQueueSize,
		Parallelism: cfg.IngestParallelism,
		MaxRetries:  cfg.IngestMaxRetries,
		RetryDelay:  cfg.IngestRetryDelay,
	}, m, ingestLog)

	svcLog := logger.Component(log, "service")
	datasets := services.NewDatasetService(a.Store, index, a.Ingestor, pipeline, locks, svcLog)
	segments := services.NewSegmentService(a.Store, index, gate, m, svcLog)

	httpLog := logger.Component(log, "http")
	a.Server = NewServer(cfg, httpLog, reg,
		handlers.NewDatasetHandler(datasets, httpLog),
		handlers.NewSegmentHandler(segments, httpLog),
	)
	return a, nil
}

// openStore sets a.Store and returns the vector index that matches it.
// Semantic search needs both postgres and an embedding key.
func (a *App) openStore(ctx context.Context) (core.VectorIndex, error) {
	cfg := a.Config
	if cfg.StoreDriver == config.StoreDriverMemory {
		a.Store = db.NewMemoryStore()
		a.log.Warn().Msg("using in-memory store, data is lost on restart")
		return vectorindex.NoopIndex{}, nil
	}

	client, err := db.NewDatabaseClient(ctx, cfg, logger.Component(a.log, "database"))
	if err != nil {
		return nil, err
	}
	a.Store = client
	a.closers = append(a.closers, client.Close)
	a.log.Info().Msg("database initialized and ready")

	if cfg.AIAPIKey == "" {
		a.log.Warn().Msg("GEMINI_API_KEY not set, semantic query disabled")
		return vectorindex.NoopIndex{}, nil
	}
	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.closers = append(a.closers, embedder.Close)
	return vectorindex.NewPgVectorIndex(client.DB(), embedder), nil
}

// Run starts the ingestion workers and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Ingestor.Start(ctx, a.Config.IngestWorkers)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Server.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
