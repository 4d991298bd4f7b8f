package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/ria/llm"
	"github.com/dshills/ria/pipeline"
	"github.com/dshills/ria/pipeline/emit"
	"github.com/dshills/ria/prompts"
	"github.com/dshills/ria/scrape"
	"github.com/dshills/ria/stream"
)

// Analysis pipeline node IDs.
const (
	NodeScrape  = "scrape"
	NodeAnalyze = "analyze"
)

// AnalysisState is the state of one analysis run, persisted after every step.
type AnalysisState struct {
	JobID      string         `json:"job_id"`
	JobURL     string         `json:"job_url"`
	ResumeText string         `json:"resume_text"`
	Job        map[string]any `json:"job,omitempty"`
	JobCached  bool           `json:"job_cached,omitempty"`
	Review     string         `json:"review,omitempty"`
	Chunks     int            `json:"chunks,omitempty"`
}

func reduceAnalysis(prev, delta AnalysisState) AnalysisState {
	if delta.JobID != "" {
		prev.JobID = delta.JobID
	}
	if delta.JobURL != "" {
		prev.JobURL = delta.JobURL
	}
	if delta.ResumeText != "" {
		prev.ResumeText = delta.ResumeText
	}
	if delta.Job != nil {
		prev.Job = delta.Job
		prev.JobCached = delta.JobCached
	}
	if delta.Review != "" {
		prev.Review = delta.Review
		prev.Chunks = delta.Chunks
	}
	return prev
}

// Policies holds the execution policy of each analysis node.
type Policies struct {
	Scrape  pipeline.NodePolicy
	Analyze pipeline.NodePolicy
}

// DefaultPolicies retries scraping 3 times (2s to 10s apart) on timeouts,
// 429 and 5xx responses, and the model call 5 times (4s to 60s apart) on
// rate limits and server errors.
func DefaultPolicies() Policies {
	return Policies{
		Scrape: pipeline.NodePolicy{
			Timeout: time.Minute,
			RetryPolicy: &pipeline.RetryPolicy{
				MaxAttempts: 3,
				BaseDelay:   2 * time.Second,
				MaxDelay:    10 * time.Second,
				Retryable:   scrapeRetryable,
			},
		},
		Analyze: pipeline.NodePolicy{
			Timeout: 5 * time.Minute,
			RetryPolicy: &pipeline.RetryPolicy{
				MaxAttempts: 5,
				BaseDelay:   4 * time.Second,
				MaxDelay:    60 * time.Second,
				Retryable:   llm.IsRetryable,
			},
		},
	}
}

func scrapeRetryable(err error) bool {
	return pipeline.IsTimeout(err) || scrape.IsRetryable(err)
}

func (h *Handlers) newAnalysisEngine(deps Deps) (*pipeline.Engine[AnalysisState], error) {
	policies := DefaultPolicies()
	if deps.Policies != nil {
		policies = *deps.Policies
	}

	emitters := emit.Multi{
		emit.NewLogEmitter(deps.Log),
		stream.NewEmitter(deps.Publisher, deps.Log),
	}
	if deps.Emitter != nil {
		emitters = append(emitters, deps.Emitter)
	}

	opts := []pipeline.Option{pipeline.WithMaxSteps(10)}
	if deps.Metrics != nil {
		opts = append(opts, pipeline.WithMetrics(deps.Metrics))
	}

	engine := pipeline.New[AnalysisState](reduceAnalysis, deps.Store, emitters, opts...)
	if err := engine.AddWithPolicy(NodeScrape, pipeline.NodeFunc[AnalysisState](h.scrapeJob), policies.Scrape); err != nil {
		return nil, err
	}
	if err := engine.AddWithPolicy(NodeAnalyze, pipeline.NodeFunc[AnalysisState](h.analyzeResume), policies.Analyze); err != nil {
		return nil, err
	}
	if err := engine.StartAt(NodeScrape); err != nil {
		return nil, err
	}
	return engine, nil
}

func (h *Handlers) scrapeJob(ctx context.Context, s AnalysisState) pipeline.NodeResult[AnalysisState] {
	if pipeline.Attempt(ctx) == 0 {
		if err := h.publishStatus(ctx, s.JobID, "scraping", "Accessing job url..."); err != nil {
			return pipeline.NodeResult[AnalysisState]{Err: err}
		}
	}

	res, err := h.scraper.Scrape(ctx, s.JobURL)
	if err != nil {
		return pipeline.NodeResult[AnalysisState]{Err: err}
	}
	return pipeline.NodeResult[AnalysisState]{
		Delta: AnalysisState{Job: res.Data, JobCached: res.Cached},
		Route: pipeline.Goto(NodeAnalyze),
	}
}

func (h *Handlers) analyzeResume(ctx context.Context, s AnalysisState) pipeline.NodeResult[AnalysisState] {
	if pipeline.Attempt(ctx) == 0 {
		if err := h.publishStatus(ctx, s.JobID, "analyzing", "Reasoning with AI"); err != nil {
			return pipeline.NodeResult[AnalysisState]{Err: err}
		}
	}

	prompt, err := prompts.AnalyzeResumeAgainstJob(s.ResumeText, s.Job)
	if err != nil {
		return pipeline.NodeResult[AnalysisState]{Err: err}
	}

	var (
		review strings.Builder
		chunks int
	)
	err = h.model.Stream(ctx, llm.User(prompt), func(chunk string) error {
		if chunk == "" {
			return nil
		}
		review.WriteString(chunk)
		chunks++
		return h.publisher.Publish(ctx, s.JobID, stream.EventDelta, map[string]string{"text": chunk})
	})
	if err != nil {
		if chunks > 0 {
			err = fmt.Errorf("%w (%d chunks sent): %w", llm.ErrStreamInterrupted, chunks, err)
		}
		return pipeline.NodeResult[AnalysisState]{Err: err}
	}
	if review.Len() == 0 {
		return pipeline.NodeResult[AnalysisState]{Err: errors.New("model returned an empty review")}
	}

	return pipeline.NodeResult[AnalysisState]{
		Delta: AnalysisState{Review: review.String(), Chunks: chunks},
		Route: pipeline.Stop(),
	}
}

func (h *Handlers) publishStatus(ctx context.Context, jobID, status, message string) error {
	return h.publisher.Publish(ctx, jobID, stream.EventStatus, map[string]string{
		"status":  status,
		"message": message,
	})
}
