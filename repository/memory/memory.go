// Package memory provides map-backed repositories for tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/ria/repository"
	"github.com/google/uuid"
)

// Resumes is an in-memory repository.Resumes.
type Resumes struct {
	mu    sync.RWMutex
	items map[uuid.UUID]repository.Resume
	now   func() time.Time
}

// NewResumes returns an empty store.
func NewResumes() *Resumes {
	return &Resumes{items: make(map[uuid.UUID]repository.Resume), now: time.Now}
}

// Create implements repository.Resumes.
func (s *Resumes) Create(_ context.Context, r repository.Resume) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	r.CreatedAt, r.UpdatedAt = ts, ts
	if r.ParsedData == nil {
		r.ParsedData = map[string]any{}
	}
	s.items[r.ID] = r
	return nil
}

// Get implements repository.Resumes.
func (s *Resumes) Get(_ context.Context, id uuid.UUID) (repository.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.items[id]
	if !ok || r.DeletedAt != nil {
		return repository.Resume{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *Resumes) update(id uuid.UUID, fn func(*repository.Resume)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[id]
	if !ok || r.DeletedAt != nil {
		return repository.ErrNotFound
	}
	fn(&r)
	r.UpdatedAt = s.now().UTC()
	s.items[id] = r
	return nil
}

// SetParsedData implements repository.Resumes.
func (s *Resumes) SetParsedData(_ context.Context, id uuid.UUID, data map[string]any) error {
	return s.update(id, func(r *repository.Resume) { r.ParsedData = data })
}

// SetS3URL implements repository.Resumes.
func (s *Resumes) SetS3URL(_ context.Context, id uuid.UUID, url string) error {
	return s.update(id, func(r *repository.Resume) { r.S3URL = &url })
}

// SoftDelete implements repository.Resumes.
func (s *Resumes) SoftDelete(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(r *repository.Resume) {
		ts := s.now().UTC()
		r.DeletedAt = &ts
	})
}

// ScrapedJobs is an in-memory repository.ScrapedJobs.
type ScrapedJobs struct {
	mu     sync.RWMutex
	byHash map[string]repository.ScrapedJob
}

// NewScrapedJobs returns an empty store.
func NewScrapedJobs() *ScrapedJobs {
	return &ScrapedJobs{byHash: make(map[string]repository.ScrapedJob)}
}

// GetByURL implements repository.ScrapedJobs.
func (s *ScrapedJobs) GetByURL(_ context.Context, url string) (repository.ScrapedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.byHash[repository.HashURL(url)]
	if !ok || !j.IsActive {
		return repository.ScrapedJob{}, repository.ErrNotFound
	}
	return j, nil
}

// Upsert implements repository.ScrapedJobs.
func (s *ScrapedJobs) Upsert(_ context.Context, j repository.ScrapedJob) (repository.ScrapedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j.URLHash = repository.HashURL(j.URL)
	if prev, ok := s.byHash[j.URLHash]; ok {
		j.ID = prev.ID
	} else if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.ScrapedAt.IsZero() {
		j.ScrapedAt = time.Now().UTC()
	}
	j.IsActive = true
	s.byHash[j.URLHash] = j
	return j, nil
}

// Deactivate marks the entry for url inactive so the next lookup misses.
func (s *ScrapedJobs) Deactivate(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := repository.HashURL(url)
	if j, ok := s.byHash[h]; ok {
		j.IsActive = false
		s.byHash[h] = j
	}
}
