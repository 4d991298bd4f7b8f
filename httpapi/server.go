// Package httpapi exposes the resume upload, analysis and event stream
// endpoints over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dshills/ria/repository"
	"github.com/dshills/ria/scrape"
	"github.com/dshills/ria/stream"
)

// Upload limits.
const (
	MaxUploadSize = 2 << 20
	ChunkSize     = 1 << 20
)

// Enqueuer schedules background jobs. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType, requestID string, payload any) (string, error)
}

// EventListener relays the events of a job. *stream.Reader implements it.
type EventListener interface {
	Listen(ctx context.Context, jobID string, fn func(stream.Event) error) error
}

// DB is the slice of *pgxpool.Pool used by the health check.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Deps are the collaborators of a Server. Gatherer and Registerer default to
// the prometheus default registry.
type Deps struct {
	Resumes   repository.Resumes
	Queue     Enqueuer
	Events    EventListener
	Scrapers  *scrape.Registry
	DB        DB
	UploadDir string
	Log       logrus.FieldLogger

	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer
}

// Server holds the handlers.
type Server struct {
	resumes   repository.Resumes
	queue     Enqueuer
	events    EventListener
	scrapers  *scrape.Registry
	db        DB
	uploadDir string
	log       logrus.FieldLogger
	gatherer  prometheus.Gatherer
	requests  *prometheus.CounterVec

	now func() time.Time
}

// NewServer returns a Server.
func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Scrapers == nil {
		deps.Scrapers = scrape.DefaultRegistry()
	}

	return &Server{
		resumes:   deps.Resumes,
		queue:     deps.Queue,
		events:    deps.Events,
		scrapers:  deps.Scrapers,
		db:        deps.DB,
		uploadDir: deps.UploadDir,
		log:       deps.Log,
		gatherer:  deps.Gatherer,
		requests:  newRequestCounter(deps.Registerer),
		now:       time.Now,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Post("/resumes/upload", s.uploadResume)
	r.Post("/resumes/{resume_id}/analyze", s.analyzeResume)
	r.Get("/analysis/{job_id}", s.streamAnalysis)

	return r
}
