package main

// @title           Sercha Sync API
// @version         1.0
// @description     Keeps a search index in sync with versioned web and file sources.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT issued by sercha-sync token, or the raw API key.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-sync/docs"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/elasticsearch"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/extract"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/fetcher"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/listing"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/minio"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/postgres"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/prometheus"
	pgqueue "github.com/custodia-labs/sercha-sync/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-sync/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-sync/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driven/vespa"
	"github.com/custodia-labs/sercha-sync/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-sync/internal/config"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/services"
	"github.com/custodia-labs/sercha-sync/internal/postprocessors"
	"github.com/custodia-labs/sercha-sync/internal/resilience"
	"github.com/custodia-labs/sercha-sync/internal/worker"
)

var version = "dev"

// stores groups the record store backend chosen at startup.
type stores struct {
	versions driven.VersionStore
	records  driven.ProcessingStore
	states   driven.SyncStateStore
	lock     driven.DistributedLock
	ping     func(ctx context.Context) error
	close    func() error

	// queue is nil unless async tasks are enabled
	queue driven.TaskQueue
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if len(os.Args) > 1 && (os.Args[1] == "token" || os.Args[1] == "hash-key") {
		if err := runCredentialCommand(cfg, os.Args[1], os.Args[2:]); err != nil {
			log.Fatalf("%s: %v", os.Args[1], err)
		}
		return
	}

	// A positional argument overrides MODE
	if len(os.Args) > 1 {
		cfg.Mode = os.Args[1]
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	log.Printf("sercha-sync %s starting in %s mode", cfg.Version, cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("sercha-sync: %v", err)
	}
	log.Println("sercha-sync stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// ===== Source catalog =====
	catalog, err := config.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d sources from %s", catalog.Len(), cfg.SourcesFile)

	// ===== Record stores =====
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// ===== Document index =====
	index, indexPing, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// ===== Metrics =====
	registry := prometheus.NewRegistry()
	metrics := prometheus.NewRecorder(registry)

	// ===== Resilience =====
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		ResetTimeout:     cfg.Circuit.ResetTimeout,
		OnStateChange: func(key string, from, to resilience.State) {
			logger.Info("circuit state changed", "circuit_key", key, "from", from.String(), "to", to.String())
			metrics.SetCircuitState(key, to.String())
		},
	})
	policy := resilience.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Retry.MaxAttempts
	policy.BaseDelay = cfg.Retry.BaseDelay
	policy.MaxDelay = cfg.Retry.MaxDelay
	executor := resilience.NewExecutor(policy, breaker, logger)

	// ===== Extraction =====
	var remote *extract.RemoteExtractor
	if cfg.ExtractorURL != "" {
		remote, err = extract.NewRemoteExtractor(extract.RemoteConfig{URL: cfg.ExtractorURL, Timeout: cfg.ExtractorTimeout})
		if err != nil {
			return fmt.Errorf("failed to configure remote extractor: %w", err)
		}
		log.Printf("Remote extractor enabled at %s", cfg.ExtractorURL)
	}
	extractor := extract.DefaultRegistry(remote)
	logger.Debug("extractors registered", "content_types", extractor.List())

	post := postprocessors.NewPipeline()
	post.Add(postprocessors.NewWhitespaceNormalizer())
	post.Add(postprocessors.NewDeduplicator(postprocessors.DefaultDeduplicatorConfig()))
	post.Add(postprocessors.NewTruncator(cfg.MaxContentLength))
	logger.Debug("post-processors registered", "processors", post.List())

	// ===== Blob store (optional) =====
	checks := []http.Check{
		{Name: "index", Pinger: http.PingFunc(indexPing)},
		{Name: "store", Pinger: http.PingFunc(st.ping)},
		{Name: "lock", Pinger: st.lock},
	}
	var uploads *services.UploadManager
	if cfg.Minio.Enabled() {
		blobs, err := minio.NewBlobStore(minio.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to configure blob store: %w", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure bucket: %w", err)
		}
		uploads = services.NewUploadManager(services.UploadManagerConfig{
			Store:         blobs,
			Concurrency:   cfg.Upload.Concurrency,
			BatchSize:     cfg.Upload.BatchSize,
			DispatchDelay: cfg.Upload.DispatchDelay,
			Breaker:       breaker,
			Metrics:       metrics,
			Logger:        logger,
		})
		checks = append(checks, http.Check{Name: "blob_store", Pinger: blobs})
		log.Printf("Blob store connected (bucket=%s, archive=%t)", cfg.Minio.Bucket, cfg.ArchivePayloads)
	}

	// ===== Services =====
	versions := services.NewVersionTracker(services.VersionTrackerConfig{
		Store:   st.versions,
		Records: st.records,
		Logger:  logger,
	})
	transactions := services.NewTransactionManager(services.TransactionManagerConfig{
		Index:    index,
		Executor: executor,
		Metrics:  metrics,
		Logger:   logger,
	})
	httpFetcher := fetcher.New(fetcher.Config{UserAgent: "sercha-sync/" + cfg.Version})

	discovery := services.NewDiscoveryProcessor(services.DiscoveryProcessorConfig{
		Fetcher:        httpFetcher,
		Links:          listing.New(),
		Extractor:      extractor,
		Records:        st.records,
		Versions:       versions,
		Transactions:   transactions,
		Executor:       executor,
		Metrics:        metrics,
		DefaultIndex:   cfg.DefaultIndex(),
		Archive:        cfg.ArchivePayloads,
		Logger:         logger,
		PostProcessors: post,
	})
	documents := services.NewDocumentProcessor(services.DocumentProcessorConfig{
		Fetcher:        httpFetcher,
		Extractor:      extractor,
		Versions:       versions,
		Transactions:   transactions,
		Executor:       executor,
		Metrics:        metrics,
		DefaultIndex:   cfg.DefaultIndex(),
		Archive:        cfg.ArchivePayloads,
		Logger:         logger,
		PostProcessors: post,
	})

	orchestrator := services.NewSyncOrchestrator(services.SyncOrchestratorConfig{
		SourceStore:  catalog,
		SyncStore:    st.states,
		Versions:     versions,
		Records:      st.records,
		Transactions: transactions,
		Discovery:    discovery,
		Documents:    documents,
		Uploads:      uploads,
		Lock:         st.lock,
		Breaker:      breaker,
		Metrics:      metrics,
		Logger:       logger,
		DefaultIndex: cfg.DefaultIndex(),
		Interval:     cfg.SyncInterval,
		LockTTL:      cfg.LockTTL,
	})

	if cfg.Mode == config.ModeSync {
		return runOnce(ctx, orchestrator)
	}

	// ===== Async tasks (optional) =====
	var taskWorker *worker.Worker
	if st.queue != nil {
		taskWorker = worker.NewWorker(worker.WorkerConfig{
			TaskQueue:      st.queue,
			Syncer:         orchestrator,
			Logger:         logger,
			Concurrency:    cfg.Worker.Concurrency,
			DequeueTimeout: cfg.Worker.DequeueTimeout,
		})
		checks = append(checks, http.Check{Name: "worker", Pinger: taskWorker})
	}

	docs.SwaggerInfo.Version = cfg.Version
	server := http.NewServer(http.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Version: cfg.Version,
		Logger:  logger,
	}, orchestrator, prometheus.Handler(registry), checks...)
	if cfg.Auth.Enabled() {
		server.EnableAuth(services.NewAuthService(auth.NewAdapter(cfg.Auth.JWTSecret), cfg.Auth.APIKeyHash))
		log.Println("API authentication enabled for sync endpoints")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runServer(gctx, server, cfg)
	})

	if taskWorker != nil {
		server.EnableTasks(services.NewTaskService(services.TaskServiceConfig{
			Queue:       st.queue,
			Sources:     catalog,
			Logger:      logger,
			MaxAttempts: cfg.Worker.MaxAttempts,
		}))
		g.Go(func() error {
			if err := taskWorker.Start(gctx); err != nil {
				return fmt.Errorf("failed to start worker: %w", err)
			}
			<-gctx.Done()
			log.Println("Stopping worker...")
			taskWorker.Stop()
			return nil
		})
		log.Printf("Async sync enabled (%d workers)", cfg.Worker.Concurrency)
	}

	if cfg.Mode == config.ModeAll {
		scheduler := services.NewScheduler(services.SchedulerConfig{
			Sources:      catalog,
			Syncer:       orchestrator,
			Lock:         st.lock,
			Logger:       logger,
			PollInterval: cfg.SchedulerInterval,
			LockRequired: true,
		})
		g.Go(func() error {
			if err := scheduler.Start(gctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gctx.Done()
			log.Println("Stopping scheduler...")
			scheduler.Stop()
			return nil
		})
	}

	return g.Wait()
}

// runCredentialCommand prints a signed API token ("token <subject>") or the
// bcrypt hash of an API key ("hash-key <key>") for API_KEY_HASH.
func runCredentialCommand(cfg *config.Config, command string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sercha-sync %s <value>", command)
	}
	adapter := auth.NewAdapter(cfg.Auth.JWTSecret)
	var (
		out string
		err error
	)
	if command == "token" {
		out, err = adapter.GenerateToken(args[0], cfg.Auth.TokenTTL)
	} else {
		out, err = adapter.HashAPIKey(args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// runOnce performs a single SyncAll and prints the summary as JSON.
func runOnce(ctx context.Context, orchestrator *services.SyncOrchestrator) error {
	summary, err := orchestrator.SyncAll(ctx)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			return fmt.Errorf("failed to write summary: %w", encErr)
		}
		log.Printf("Sync finished: %d succeeded, %d failed, %d skipped, %d documents",
			summary.SourcesSucceeded, summary.SourcesFailed, summary.SourcesSkipped, summary.DocumentsProcessed)
	}
	if err != nil {
		return err
	}
	if summary != nil && summary.SourcesFailed > 0 {
		return fmt.Errorf("%d sources failed", summary.SourcesFailed)
	}
	return nil
}

func runServer(ctx context.Context, server *http.Server, cfg *config.Config) error {
	log.Printf("API server starting on %s:%d", cfg.Host, cfg.Port)
	return server.Start(ctx)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		log.Println("Connecting to Redis...")
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Println("Using Redis record stores and lock")
		records := redisadapter.NewProcessingStore(client)
		st := &stores{
			versions: redisadapter.NewVersionStore(client),
			records:  records,
			states:   redisadapter.NewSyncStateStore(client),
			lock:     redisadapter.NewLock(client),
			ping:     records.Ping,
			close:    client.Close,
		}
		if tasksEnabled(cfg) {
			queue, err := redisqueue.NewQueue(ctx, client, consumerName())
			if err != nil {
				client.Close()
				return nil, err
			}
			st.queue = queue
		}
		return st, nil

	default:
		log.Println("Connecting to PostgreSQL...")
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		log.Println("PostgreSQL connected and schema initialized")
		st := &stores{
			versions: postgres.NewVersionStore(db),
			records:  postgres.NewProcessingStore(db),
			states:   postgres.NewSyncStateStore(db),
			lock:     postgres.NewAdvisoryLock(db),
			ping:     db.Ping,
			close:    db.Close,
		}
		if tasksEnabled(cfg) {
			st.queue = pgqueue.NewQueue(db.DB)
		}
		return st, nil
	}
}

// tasksEnabled reports whether a task queue backs the async endpoints.
func tasksEnabled(cfg *config.Config) bool {
	return cfg.Worker.Enabled && cfg.Mode != config.ModeSync
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (driven.DocumentIndex, func(context.Context) error, error) {
	if cfg.IndexBackend == config.IndexVespa {
		log.Println("Connecting to Vespa...")
		vcfg := vespa.DefaultConfig(cfg.VespaURL)
		vcfg.Namespace = cfg.VespaNamespace
		index, err := vespa.NewDocumentIndex(vcfg)
		if err != nil {
			return nil, nil, err
		}
		if err := index.HealthCheck(ctx); err != nil {
			log.Printf("Warning: Vespa health check failed: %v (indexing may fail)", err)
		} else {
			log.Println("Vespa connected")
		}
		return index, index.HealthCheck, nil
	}

	log.Println("Connecting to Elasticsearch...")
	client, err := elasticsearch.NewClient(ctx, elasticsearch.Config{
		Addresses:    cfg.ESAddresses,
		Username:     cfg.ESUsername,
		Password:     cfg.ESPassword,
		APIKey:       cfg.ESAPIKey,
		PingAttempts: 5,
		PingDelay:    2 * time.Second,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	index := elasticsearch.NewDocumentIndex(client, true, logger)
	if err := index.EnsureIndex(ctx, cfg.ESIndex); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure index %s: %w", cfg.ESIndex, err)
	}
	log.Printf("Elasticsearch connected (index=%s)", cfg.ESIndex)
	return index, index.HealthCheck, nil
}
