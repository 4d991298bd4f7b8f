package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/ria/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ScrapedJobs implements repository.ScrapedJobs over <schema>.scraped_jobs.
type ScrapedJobs struct {
	db    DB
	table string
}

// NewScrapedJobs returns a repository using db and the scraped_jobs table in schema.
func NewScrapedJobs(db DB, schema string) *ScrapedJobs {
	return &ScrapedJobs{db: db, table: table(schema, "scraped_jobs")}
}

func scanJob(row pgx.Row) (repository.ScrapedJob, error) {
	var (
		j    repository.ScrapedJob
		data []byte
	)
	if err := row.Scan(&j.ID, &j.URL, &j.URLHash, &data, &j.ScrapedAt, &j.IsActive); err != nil {
		return repository.ScrapedJob{}, err
	}
	if err := json.Unmarshal(data, &j.Data); err != nil {
		return repository.ScrapedJob{}, fmt.Errorf("unmarshal scraped data: %w", err)
	}
	return j, nil
}

// GetByURL implements repository.ScrapedJobs.
func (s *ScrapedJobs) GetByURL(ctx context.Context, url string) (repository.ScrapedJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `
		SELECT id, url, url_hash, scraped_data, scraped_at, is_active
		FROM `+s.table+`
		WHERE url_hash = $1 AND is_active`, repository.HashURL(url)))
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ScrapedJob{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.ScrapedJob{}, fmt.Errorf("select scraped job: %w", err)
	}
	return j, nil
}

// Upsert implements repository.ScrapedJobs.
func (s *ScrapedJobs) Upsert(ctx context.Context, j repository.ScrapedJob) (repository.ScrapedJob, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.ScrapedAt.IsZero() {
		j.ScrapedAt = time.Now().UTC()
	}
	data, err := json.Marshal(j.Data)
	if err != nil {
		return repository.ScrapedJob{}, fmt.Errorf("marshal scraped data: %w", err)
	}

	out, err := scanJob(s.db.QueryRow(ctx, `
		INSERT INTO `+s.table+` (id, url, url_hash, scraped_data, scraped_at, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (url_hash) DO UPDATE SET
			scraped_data = EXCLUDED.scraped_data,
			scraped_at = EXCLUDED.scraped_at,
			is_active = true
		RETURNING id, url, url_hash, scraped_data, scraped_at, is_active`,
		j.ID, j.URL, repository.HashURL(j.URL), data, j.ScrapedAt))
	if err != nil {
		return repository.ScrapedJob{}, fmt.Errorf("upsert scraped job: %w", err)
	}
	return out, nil
}
