package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ria/config"
	"github.com/dshills/ria/jobs"
	"github.com/dshills/ria/llm/provider"
	"github.com/dshills/ria/objectstore"
	"github.com/dshills/ria/pipeline"
	"github.com/dshills/ria/pipeline/emit"
	"github.com/dshills/ria/pipeline/store"
	"github.com/dshills/ria/queue"
	"github.com/dshills/ria/repository/postgres"
	"github.com/dshills/ria/scrape"
	"github.com/dshills/ria/stream"
)

func runWorker(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	pool, err := openPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	model, err := provider.New(cfg)
	if err != nil {
		return err
	}

	runStore, closeStore, err := openRunStore(cfg, pool)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := jobs.Deps{
		Resumes: postgres.NewResumes(pool, cfg.DBSchema),
		Model:   model,
		Scraper: scrape.NewCache(
			scrape.NewFetcher(),
			scrape.DefaultRegistry(),
			postgres.NewScrapedJobs(pool, cfg.DBSchema),
		),
		Publisher: stream.NewPublisher(rdb, stream.WithTTL(*workerStreamTTL)),
		Store:     runStore,
		Log:       log,
		Metrics:   pipeline.NewPrometheusMetrics(prometheus.DefaultRegisterer),
	}

	if cfg.AWSBucket != "" {
		uploader, err := objectstore.NewS3Uploader(ctx, objectstore.Options{
			Bucket:    cfg.AWSBucket,
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return err
		}
		deps.Uploader = uploader
	} else {
		log.Warn("AWS_BUCKET is not set; upload_resume jobs will fail")
	}

	if cfg.OTelEnabled {
		// TODO: register an OTLP exporter once the collector endpoint is configurable.
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		deps.Emitter = emit.NewOTelEmitter(tp.Tracer("github.com/dshills/ria/jobs"))
	}

	handlers, err := jobs.New(deps)
	if err != nil {
		return err
	}

	worker := queue.NewWorker(queue.New(rdb), log,
		queue.WithConcurrency(cfg.WorkerConcurrency),
		queue.WithRegisterer(prometheus.DefaultRegisterer),
	)
	handlers.Register(worker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	if *workerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *workerMetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error { return serveUntilDone(gctx, srv, log) })
	}
	return g.Wait()
}

func openRunStore(cfg *config.Config, pool *pgxpool.Pool) (store.Store[jobs.AnalysisState], func(), error) {
	switch strings.ToLower(cfg.RunStore) {
	case "", "postgres":
		return store.NewPostgresStore[jobs.AnalysisState](pool, cfg.DBSchema), func() {}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore[jobs.AnalysisState](cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "memory":
		return store.NewMemStore[jobs.AnalysisState](), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown RUN_STORE %q (want postgres, sqlite or memory)", cfg.RunStore)
	}
}
