// Package jobs implements the background work behind the API: parsing an
// uploaded resume with the model, archiving the file to S3 and streaming a
// review of a resume against a job ad.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/ria/llm"
	"github.com/dshills/ria/logging"
	"github.com/dshills/ria/objectstore"
	"github.com/dshills/ria/pipeline"
	"github.com/dshills/ria/pipeline/emit"
	"github.com/dshills/ria/pipeline/store"
	"github.com/dshills/ria/prompts"
	"github.com/dshills/ria/queue"
	"github.com/dshills/ria/repository"
	"github.com/dshills/ria/scrape"
	"github.com/dshills/ria/stream"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty model response")

// JobScraper returns the structured data of a job ad. *scrape.Cache
// implements it.
type JobScraper interface {
	Scrape(ctx context.Context, url string) (scrape.Result, error)
}

// Deps are the collaborators of the handlers. Emitter, Metrics and Policies
// are optional.
type Deps struct {
	Resumes   repository.Resumes
	Model     llm.StreamingModel
	Scraper   JobScraper
	Uploader  objectstore.Uploader
	Publisher stream.EventPublisher
	Store     store.Store[AnalysisState]
	Log       logrus.FieldLogger

	// Emitter receives pipeline events in addition to the log and the job
	// stream, e.g. an emit.OTelEmitter.
	Emitter  emit.Emitter
	Metrics  *pipeline.PrometheusMetrics
	Policies *Policies
}

// Handlers executes queued jobs.
type Handlers struct {
	resumes   repository.Resumes
	model     llm.StreamingModel
	scraper   JobScraper
	uploader  objectstore.Uploader
	publisher stream.EventPublisher
	log       logrus.FieldLogger

	analysis *pipeline.Engine[AnalysisState]
}

// New validates deps and builds the analysis pipeline.
func New(deps Deps) (*Handlers, error) {
	switch {
	case deps.Resumes == nil:
		return nil, errors.New("jobs: Resumes is required")
	case deps.Model == nil:
		return nil, errors.New("jobs: Model is required")
	case deps.Scraper == nil:
		return nil, errors.New("jobs: Scraper is required")
	case deps.Publisher == nil:
		return nil, errors.New("jobs: Publisher is required")
	case deps.Store == nil:
		return nil, errors.New("jobs: Store is required")
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}

	h := &Handlers{
		resumes:   deps.Resumes,
		model:     deps.Model,
		scraper:   deps.Scraper,
		uploader:  deps.Uploader,
		publisher: deps.Publisher,
		log:       deps.Log,
	}

	analysis, err := h.newAnalysisEngine(deps)
	if err != nil {
		return nil, err
	}
	h.analysis = analysis
	return h, nil
}

// ProcessResume extracts structured data from the resume's text and stores
// it as parsed_data.
func (h *Handlers) ProcessResume(ctx context.Context, resumeID uuid.UUID) error {
	log := logging.FromContext(ctx, h.log).WithField("resume_id", resumeID)

	resume, err := h.resumes.Get(ctx, resumeID)
	if err != nil {
		return fmt.Errorf("failed to load resume %s: %w", resumeID, err)
	}
	log = log.WithField("resume_filename", resume.Filename)
	log.Info("starting resume processing")

	out, err := h.model.Chat(ctx, llm.User(prompts.ExtractResume(resume.RawText)))
	if err != nil {
		return fmt.Errorf("failed to extract resume %s: %w", resumeID, err)
	}
	if out.Text == "" {
		return fmt.Errorf("resume %s: %w", resumeID, ErrEmptyResponse)
	}
	log.WithFields(logrus.Fields{
		"input_tokens":  out.Usage.InputTokens,
		"output_tokens": out.Usage.OutputTokens,
	}).Info("received model response")

	parsed, err := llm.ParseJSONObject(out.Text)
	if err != nil {
		return fmt.Errorf("resume %s: %w", resumeID, err)
	}
	if err := h.resumes.SetParsedData(ctx, resumeID, parsed); err != nil {
		return fmt.Errorf("failed to store parsed data for %s: %w", resumeID, err)
	}

	log.Info("updated resume with parsed data")
	return nil
}

// UploadResume archives the file at path to object storage, records its URL
// and removes the local copy. The local file is kept when the upload fails.
func (h *Handlers) UploadResume(ctx context.Context, resumeID uuid.UUID, path string) error {
	if h.uploader == nil {
		return errors.New("jobs: no uploader configured")
	}
	log := logging.FromContext(ctx, h.log).WithFields(logrus.Fields{
		"resume_id": resumeID,
		"file_path": path,
	})
	log.Info("starting S3 upload")

	url, err := h.uploader.Upload(ctx, objectstore.ObjectKey(resumeID, path), path)
	if err != nil {
		return err
	}
	log.WithField("s3_url", url).Info("uploaded to S3")

	if err := h.resumes.SetS3URL(ctx, resumeID, url); err != nil {
		return fmt.Errorf("failed to record S3 URL for %s: %w", resumeID, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete local file: %w", err)
	}
	log.Info("deleted local file after S3 upload")
	return nil
}

// AnalyzeResume runs the analysis pipeline for jobID. Progress, review
// chunks and the final done or error event are published to the job's
// stream.
func (h *Handlers) AnalyzeResume(ctx context.Context, jobID, resumeText, jobURL string) (AnalysisState, error) {
	logging.FromContext(ctx, h.log).WithFields(logrus.Fields{
		"job_id":  jobID,
		"job_url": jobURL,
	}).Info("starting resume analysis")

	return h.analysis.Run(ctx, jobID, AnalysisState{
		JobID:      jobID,
		JobURL:     jobURL,
		ResumeText: resumeText,
	})
}

// Queue payloads.
type (
	ProcessResumePayload struct {
		ResumeID uuid.UUID `json:"resume_id"`
	}

	UploadResumePayload struct {
		ResumeID uuid.UUID `json:"resume_id"`
		FilePath string    `json:"file_path"`
	}

	// AnalyzeResumePayload is streamed under the queue job's ID, which the
	// API hands back to the client as job_id.
	AnalyzeResumePayload struct {
		ResumeText string `json:"resume_text"`
		JobURL     string `json:"job_url"`
	}
)

// Register binds the handlers to their job types on w.
func (h *Handlers) Register(w *queue.Worker) {
	w.Handle(queue.TypeProcessResume, func(ctx context.Context, job queue.Job) error {
		var p ProcessResumePayload
		if err := job.Decode(&p); err != nil {
			return err
		}
		return h.ProcessResume(ctx, p.ResumeID)
	})

	w.Handle(queue.TypeUploadResume, func(ctx context.Context, job queue.Job) error {
		var p UploadResumePayload
		if err := job.Decode(&p); err != nil {
			return err
		}
		return h.UploadResume(ctx, p.ResumeID, p.FilePath)
	})

	w.Handle(queue.TypeAnalyzeResume, func(ctx context.Context, job queue.Job) error {
		var p AnalyzeResumePayload
		if err := job.Decode(&p); err != nil {
			h.publishError(ctx, job.ID, err)
			return err
		}
		_, err := h.AnalyzeResume(ctx, job.ID, p.ResumeText, p.JobURL)
		return err
	})
}

func (h *Handlers) publishError(ctx context.Context, jobID string, cause error) {
	if err := h.publisher.Publish(ctx, jobID, stream.EventError, map[string]string{"detail": cause.Error()}); err != nil {
		logging.FromContext(ctx, h.log).WithError(err).Error("failed to publish error event")
	}
}
