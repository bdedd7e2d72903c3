package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/ledger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	searchhandler "github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search server", "port", cfg.Server.Port, "index", cfg.Index.Path)

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("search server stopped")
}

func run(cfg *config.Config) error {
	idx, err := openIndex(cfg.Index)
	if err != nil {
		return err
	}
	defer idx.Close()
	slog.Info("index ready",
		"path", idx.Path(),
		"generation", idx.Generation(),
		"fields", idx.Schema().Len(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	m.SetGeneration(idx.Generation())

	manager, err := searcher.NewManager(idx, searcher.WithMaxExpansions(cfg.Search.MaxFuzzyExpansions))
	if err != nil {
		return fmt.Errorf("opening reader: %w", err)
	}
	defer manager.Close()

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if _, err := idx.DocCount(); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d", manager.Current().Generation()),
		}
	})

	var queryCache *cache.QueryCache
	var redisPing func(context.Context) error
	if cfg.Search.CacheEnabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			redisPing = redisClient.Ping
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	checker.Register("redis", health.Ping(redisPing, true))

	var db *postgres.Client
	if (cfg.Ingest.KafkaEnabled && cfg.Ingest.LedgerEnabled) || (cfg.Analytics.Enabled && cfg.Analytics.SnapshotEnabled) {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		checker.Register("postgres", health.Ping(db.Ping, true))
	}

	committer := ingestion.NewCommitter(idx, m)
	committer.OnCommit(func(ctx context.Context, ev ingestion.IndexCommitted) {
		gen, err := manager.Refresh()
		if err != nil {
			slog.Error("reader refresh failed", "generation", ev.Generation, "error", err)
			return
		}
		if queryCache == nil {
			return
		}
		// Keys carry the generation, so this only reclaims space early.
		if _, err := queryCache.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation failed", "generation", gen, "error", err)
		}
	})

	var pub *publisher.Publisher
	g, gctx := errgroup.WithContext(ctx)

	var collector *analytics.Collector
	var analyticsStore *analytics.Store
	if cfg.Analytics.Enabled {
		var export analytics.Producer
		if cfg.Analytics.ExportEnabled {
			events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
			defer events.Close()
			export = events
		}
		agg := analytics.NewAggregator()
		collector = analytics.NewCollector(agg, export, cfg.Analytics.BufferSize)
		collector.Start(gctx)
		g.Go(func() error {
			collector.Wait()
			return nil
		})
		committer.OnCommit(collector.TrackCommit)

		if cfg.Analytics.SnapshotEnabled {
			analyticsStore = analytics.NewStore(db)
			if err := analyticsStore.EnsureSchema(ctx); err != nil {
				return err
			}
			g.Go(func() error { return analyticsStore.RunPeriodicSave(gctx, agg, cfg.Analytics.SnapshotInterval) })
		}
	}
	if cfg.Ingest.KafkaEnabled {
		docs := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer docs.Close()
		commits := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer commits.Close()
		pub = publisher.New(docs, commits)
		committer.OnCommit(pub.NotifyCommit)

		var l consumer.Ledger
		if cfg.Ingest.LedgerEnabled {
			pgLedger := ledger.New(db)
			if err := pgLedger.EnsureSchema(ctx); err != nil {
				return err
			}
			if _, err := pgLedger.AbandonBuffered(ctx); err != nil {
				return err
			}
			l = pgLedger
		}

		pipeline := consumer.New(committer, l, m, cfg.Ingest)
		ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, pipeline.HandleMessage)
		g.Go(func() error { return ingest.Start(gctx) })
		g.Go(func() error { return pipeline.Run(gctx) })
		slog.Info("stream ingestion enabled",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
			"commit_interval", cfg.Ingest.CommitInterval,
			"commit_batch_size", cfg.Ingest.CommitBatchSize,
			"ledger", cfg.Ingest.LedgerEnabled,
		)
	}

	mux := http.NewServeMux()
	search := searchhandler.New(manager, queryCache, m, cfg.Search)
	if collector != nil {
		search.WithTracker(collector)
		analytics.NewHandler(collector.Aggregator(), analyticsStore).Register(mux)
	}
	search.Register(mux)
	ingesthandler.New(committer, pub, cfg.Ingest.MaxBatchDocuments).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		limiter = middleware.NewLimiter(rl.RequestsPerSecond, rl.Burst)
		cleanup := rl.CleanupInterval
		if cleanup <= 0 {
			cleanup = time.Minute
		}
		g.Go(func() error { return limiter.Run(gctx, cleanup) })
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownWithTimeout(shutdownMetrics, cfg.Server.ShutdownTimeout)
	}

	g.Go(func() error {
		slog.Info("search server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		return shutdownWithTimeout(server.Shutdown, cfg.Server.ShutdownTimeout)
	})
	return g.Wait()
}

// openIndex opens the configured index, creating it from the configured
// schema when it does not exist and creation is allowed.
func openIndex(cfg config.IndexConfig) (*indexer.Index, error) {
	idx, err := indexer.Open(cfg.Path)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, apperrors.ErrIndexNotFound) || !cfg.CreateIfMissing {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	s, err := schema.FromConfig(cfg.Fields)
	if err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}
	idx, err = indexer.Create(cfg.Path, s)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return idx, nil
}

func shutdownWithTimeout(shutdown func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	return nil
}
