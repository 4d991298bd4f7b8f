// Command ria runs the resume analyzer: schema provisioning, migrations, the
// HTTP API and the background worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dshills/ria/config"
	"github.com/dshills/ria/logging"
	"github.com/dshills/ria/provision"
	"github.com/dshills/ria/repository/postgres"
)

var (
	app     = kingpin.New("ria", "Resume analyzer service.")
	envFile = app.Flag("env-file", "Optional .env file read before the environment.").Default(".env").String()

	provisionCmd  = app.Command("provision", "Create the application schema and grant POSTGRES_USER all privileges on it.")
	provisionWait = provisionCmd.Flag("wait", "How long to wait for Postgres to accept connections.").Default("30s").Duration()

	migrateCmd = app.Command("migrate", "Create the application tables.")

	serveCmd = app.Command("serve", "Serve the HTTP API.")

	workerCmd         = app.Command("worker", "Process queued jobs.")
	workerMetricsAddr = workerCmd.Flag("metrics-addr", "Address serving /metrics; empty disables it.").Default(":9100").String()
	workerStreamTTL   = workerCmd.Flag("stream-ttl", "Expiry of analysis event streams; 0 keeps them.").Default("24h").Duration()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat).WithField("app", cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case provisionCmd.FullCommand():
		err = provision.Run(ctx, cfg.ProvisionURL(), cfg.DBSchema, cfg.PostgresUser,
			provision.WithLogger(log),
			provision.WithMaxWait(*provisionWait),
		)
	case migrateCmd.FullCommand():
		err = runMigrate(ctx, cfg, log)
	case serveCmd.FullCommand():
		err = runServe(ctx, cfg, log)
	case workerCmd.FullCommand():
		err = runWorker(ctx, cfg, log)
	}

	if err != nil {
		log.WithError(err).WithField("command", cmd).Error("command failed")
		stop()
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL(), postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := provision.Migrate(ctx, pool, cfg.DBSchema); err != nil {
		return err
	}
	log.WithField("schema", cfg.DBSchema).Info("migrations applied")
	return nil
}

func openPool(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL(), postgres.PoolOptions{})
	if err != nil {
		return nil, err
	}
	if err := provision.Migrate(ctx, pool, cfg.DBSchema); err != nil {
		pool.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"host":   cfg.DBHost,
		"schema": cfg.DBSchema,
	}).Info("database ready")
	return pool, nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr(), err)
	}
	return rdb, nil
}
