// Package repository defines the persisted resume and scraped-job records and
// the interfaces used to read and write them.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist or was soft deleted.
var ErrNotFound = errors.New("not found")

// Resume is an uploaded resume and what has been derived from it so far.
type Resume struct {
	ID         uuid.UUID
	Filename   string
	RawText    string
	ParsedData map[string]any
	S3URL      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// NewResume returns a Resume with a fresh ID and empty parsed data.
func NewResume(filename, rawText string) Resume {
	return Resume{
		ID:         uuid.New(),
		Filename:   filename,
		RawText:    rawText,
		ParsedData: map[string]any{},
	}
}

// ScrapedJob caches the fields extracted from a job advertisement.
type ScrapedJob struct {
	ID        uuid.UUID
	URL       string
	URLHash   string
	Data      map[string]any
	ScrapedAt time.Time
	IsActive  bool
}

// HashURL returns the hex SHA-256 of url, used as the scraped job cache key.
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Resumes stores resumes.
type Resumes interface {
	// Create inserts r. CreatedAt and UpdatedAt are set by the store.
	Create(ctx context.Context, r Resume) error

	// Get returns the resume with id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (Resume, error)

	// SetParsedData replaces the structured extraction result.
	SetParsedData(ctx context.Context, id uuid.UUID, data map[string]any) error

	// SetS3URL records where the original file was uploaded.
	SetS3URL(ctx context.Context, id uuid.UUID, url string) error

	// SoftDelete marks the resume deleted; later Gets return ErrNotFound.
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ScrapedJobs stores scraped job advertisements keyed by URL.
type ScrapedJobs interface {
	// GetByURL returns the active cached entry for url, or ErrNotFound.
	GetByURL(ctx context.Context, url string) (ScrapedJob, error)

	// Upsert inserts or refreshes the entry for j.URL and returns the stored row.
	Upsert(ctx context.Context, j ScrapedJob) (ScrapedJob, error)
}

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
