// Package app builds the service graph from configuration and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/api"
	"github.com/JakeFAU/websearch/internal/clock/system"
	"github.com/JakeFAU/websearch/internal/config"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/websearch/internal/fetcher/colly"
	"github.com/JakeFAU/websearch/internal/frontier"
	"github.com/JakeFAU/websearch/internal/hash/sha256"
	"github.com/JakeFAU/websearch/internal/id/uuid"
	"github.com/JakeFAU/websearch/internal/metrics"
	memorypublisher "github.com/JakeFAU/websearch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/websearch/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/websearch/internal/queue/memory"
	"github.com/JakeFAU/websearch/internal/search"
	"github.com/JakeFAU/websearch/internal/session"
	gcsstorage "github.com/JakeFAU/websearch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/websearch/internal/storage/local"
	memoryStorage "github.com/JakeFAU/websearch/internal/storage/memory"
	mongostore "github.com/JakeFAU/websearch/internal/storage/mongo"
	pgstore "github.com/JakeFAU/websearch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/websearch/internal/storage/sqlite"
	"github.com/JakeFAU/websearch/internal/worker"
)

const readyProbeSession = "__readyz__"

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       crawler.Store
	blobs       crawler.BlobStore
	gcsClient   *storage.Client
	publisher   crawler.Publisher
	pubsub      *gcppublisher.Publisher
	queue       *queueMemory.Queue
	dispatch    *dispatcher.Dispatcher
	manager     *frontier.Manager
	coordinator *session.Coordinator
	engine      *search.Engine
	apiServer   *api.Server

	closeOnce sync.Once
	closeErr  error
}

// Build creates the application's dependencies. Anything opened before a
// failure is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
		}
	}()

	a.logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("search_mode", cfg.Search.Mode),
	)

	if a.store, err = openStore(ctx, cfg.Storage, a.logger); err != nil {
		return nil, err
	}
	if err = a.setupArchive(ctx); err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}

	mode, err := search.ParseMode(cfg.Search.Mode)
	if err != nil {
		return nil, fmt.Errorf("search mode: %w", err)
	}

	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	}, nil)
	a.manager = frontier.NewManager(a.store, fetcher, a.blobs, sha256.New(), clock, frontier.Config{
		Workers:       cfg.Crawler.FetchWorkers,
		ArchivePrefix: cfg.Archive.Prefix,
		ContentType:   cfg.Archive.ContentType,
	}, a.logger)
	a.coordinator = session.NewCoordinator(a.store, uuid.New(), clock, cfg.Crawler.DefaultPageLimit, a.logger)
	a.engine = search.NewEngine(a.store, search.Config{Mode: mode, PreviewRunes: cfg.Search.PreviewRunes}, a.logger)

	a.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	workerCfg := worker.Config{Topic: cfg.PubSub.TopicName}
	runners := make([]dispatcher.Runner, 0, cfg.Crawler.Concurrency)
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		runners = append(runners, worker.New(
			a.queue,
			a.manager,
			a.publisher,
			clock,
			workerCfg,
			a.logger.With(zap.Int("index", i)),
		))
	}
	a.dispatch = dispatcher.New(a.queue, runners)

	a.apiServer = api.NewServer(a.coordinator, a.engine, a.dispatch, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Ready:       a.ready,
	}, a.logger)

	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (crawler.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		logger.Info("using sqlite store", zap.String("path", cfg.SQLite.Path))
		st, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		return st, nil
	case config.BackendPostgres:
		logger.Info("using postgres store", zap.String("pages_table", cfg.Postgres.PagesTable))
		st, err := pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.Postgres.DSN,
			PagesTable:      cfg.Postgres.PagesTable,
			SessionsTable:   cfg.Postgres.SessionsTable,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: time.Duration(cfg.Postgres.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return st, nil
	case config.BackendMongo:
		logger.Info("using mongo store", zap.String("database", cfg.Mongo.Database))
		st, err := mongostore.New(ctx, mongostore.Config{
			URI:                cfg.Mongo.URI,
			Database:           cfg.Mongo.Database,
			PagesCollection:    cfg.Mongo.PagesCollection,
			SessionsCollection: cfg.Mongo.SessionsCollection,
			ConnectTimeout:     time.Duration(cfg.Mongo.ConnectTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("mongo store init failed: %w", err)
		}
		return st, nil
	case "", config.BackendMemory:
		logger.Info("using in-memory store")
		return memoryStorage.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case config.ArchiveLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.LocalDir))
	case config.ArchiveMemory:
		a.blobs = memoryStorage.NewBlobStore()
		a.logger.Info("archiving pages in memory")
	default:
		a.logger.Info("page archiving disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		a.logger.Info("Pub/Sub disabled, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

// ready probes the store with a lookup that is expected to miss.
func (a *App) ready(ctx context.Context) error {
	_, err := a.store.GetSession(ctx, readyProbeSession)
	if err == nil || errors.Is(err, crawler.ErrSessionNotFound) {
		return nil
	}
	return fmt.Errorf("store not ready: %w", err)
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Publisher returns the completion-event publisher.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// StartWorkers runs the dispatcher in the background until ctx ends or the
// queue is closed. The returned channel closes once every worker has stopped.
func (a *App) StartWorkers(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Concurrency))
		a.dispatch.Run(ctx)
		a.logger.Info("dispatcher stopped")
	}()
	return done
}

// Run serves HTTP and processes queued crawls until SIGINT/SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := a.StartWorkers(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown timeout")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.ShutdownTimeout(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// Crawl registers a session and runs it synchronously in the caller's goroutine.
func (a *App) Crawl(ctx context.Context, req session.StartRequest) (frontier.Report, error) {
	sess, err := a.coordinator.Start(ctx, req)
	if err != nil {
		return frontier.Report{}, err
	}
	w := worker.New(a.queue, a.manager, a.publisher, system.New(),
		worker.Config{Topic: a.cfg.PubSub.TopicName}, a.logger)
	return w.Process(ctx, crawler.QueueItem{Session: sess, Attempt: 1, Submitted: time.Now().Unix()})
}

// Search runs a query against the stored corpus.
func (a *App) Search(ctx context.Context, query string) ([]search.Result, error) {
	return a.engine.Search(ctx, query)
}

// Clear deletes every page and session.
func (a *App) Clear(ctx context.Context) error {
	return a.coordinator.Clear(ctx)
}

// Close releases every opened resource. It is safe on a partially built App
// and only the first call does any work.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { a.closeErr = a.close(ctx) })
	return a.closeErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.queue != nil {
		a.queue.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
