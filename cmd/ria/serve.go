package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/ria/config"
	"github.com/dshills/ria/httpapi"
	"github.com/dshills/ria/queue"
	"github.com/dshills/ria/repository/postgres"
	"github.com/dshills/ria/scrape"
	"github.com/dshills/ria/stream"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
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

	if err := os.MkdirAll(cfg.ResumeUploadDir, 0o750); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	api := httpapi.NewServer(httpapi.Deps{
		Resumes:   postgres.NewResumes(pool, cfg.DBSchema),
		Queue:     queue.New(rdb),
		Events:    stream.NewReader(rdb),
		Scrapers:  scrape.DefaultRegistry(),
		DB:        pool,
		UploadDir: cfg.ResumeUploadDir,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveUntilDone(ctx, srv, log)
}

// serveUntilDone runs srv until ctx is cancelled, then drains in-flight
// requests.
func serveUntilDone(ctx context.Context, srv *http.Server, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return serve(ctx, srv, ln, log)
}

// serve runs srv on ln. Request contexts derive from ctx, so long-lived
// requests such as analysis streams end with it instead of holding up
// Shutdown.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, log logrus.FieldLogger) error {
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", ln.Addr().String()).Info("http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
