// Package contracttest holds behaviour tests shared by every repository
// implementation.
package contracttest

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/ria/repository"
	"github.com/google/uuid"
)

// RunResumes exercises a repository.Resumes implementation.
func RunResumes(t *testing.T, newRepo func(t *testing.T) repository.Resumes) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		r := repository.NewResume("cv.pdf", "go developer")
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := repo.Get(ctx, r.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != r.ID || got.Filename != "cv.pdf" || got.RawText != "go developer" {
			t.Errorf("got %+v", got)
		}
		if got.S3URL != nil {
			t.Errorf("S3URL = %v, want nil", *got.S3URL)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("Get = %v, want ErrNotFound", err)
		}
		if err := repo.SetS3URL(ctx, uuid.New(), "x"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("SetS3URL = %v, want ErrNotFound", err)
		}
	})

	t.Run("updates", func(t *testing.T) {
		repo := newRepo(t)
		r := repository.NewResume("cv.docx", "text")
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
		data := map[string]any{"summary": "backend engineer", "skills": map[string]any{"databases": []any{"postgres"}}}
		if err := repo.SetParsedData(ctx, r.ID, data); err != nil {
			t.Fatalf("SetParsedData: %v", err)
		}
		if err := repo.SetS3URL(ctx, r.ID, "https://bucket.s3.ap-southeast-2.amazonaws.com/k"); err != nil {
			t.Fatalf("SetS3URL: %v", err)
		}
		got, err := repo.Get(ctx, r.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ParsedData["summary"] != "backend engineer" {
			t.Errorf("ParsedData = %v", got.ParsedData)
		}
		if got.S3URL == nil || *got.S3URL != "https://bucket.s3.ap-southeast-2.amazonaws.com/k" {
			t.Errorf("S3URL = %v", got.S3URL)
		}
	})

	t.Run("soft delete", func(t *testing.T) {
		repo := newRepo(t)
		r := repository.NewResume("cv.pdf", "text")
		_ = repo.Create(ctx, r)
		if err := repo.SoftDelete(ctx, r.ID); err != nil {
			t.Fatalf("SoftDelete: %v", err)
		}
		if _, err := repo.Get(ctx, r.ID); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("Get after delete = %v", err)
		}
		if err := repo.SoftDelete(ctx, r.ID); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("second SoftDelete = %v", err)
		}
	})
}

// RunScrapedJobs exercises a repository.ScrapedJobs implementation.
func RunScrapedJobs(t *testing.T, newRepo func(t *testing.T) repository.ScrapedJobs) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		repo := newRepo(t)
		url := "https://www.seek.com.au/job/" + uuid.NewString()
		if _, err := repo.GetByURL(ctx, url); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("GetByURL = %v, want ErrNotFound", err)
		}
		stored, err := repo.Upsert(ctx, repository.ScrapedJob{URL: url, Data: map[string]any{"title": "Go Engineer"}})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		got, err := repo.GetByURL(ctx, url)
		if err != nil {
			t.Fatalf("GetByURL: %v", err)
		}
		if got.ID != stored.ID || got.Data["title"] != "Go Engineer" || !got.IsActive {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("upsert refreshes", func(t *testing.T) {
		repo := newRepo(t)
		url := "https://www.seek.com.au/job/" + uuid.NewString()
		first, _ := repo.Upsert(ctx, repository.ScrapedJob{URL: url, Data: map[string]any{"title": "a"}})
		second, err := repo.Upsert(ctx, repository.ScrapedJob{URL: url, Data: map[string]any{"title": "b"}})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if first.ID != second.ID {
			t.Error("id changed on upsert")
		}
		if second.Data["title"] != "b" {
			t.Errorf("Data = %v", second.Data)
		}
	})
}
