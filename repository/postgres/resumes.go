package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dshills/ria/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Resumes implements repository.Resumes over <schema>.resumes.
type Resumes struct {
	db    DB
	table string
}

// NewResumes returns a repository using db and the resumes table in schema.
func NewResumes(db DB, schema string) *Resumes {
	return &Resumes{db: db, table: table(schema, "resumes")}
}

// Create implements repository.Resumes.
func (r *Resumes) Create(ctx context.Context, res repository.Resume) error {
	parsed := res.ParsedData
	if parsed == nil {
		parsed = map[string]any{}
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("marshal parsed data: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO `+r.table+` (id, filename, raw_text, parsed_data, s3_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		res.ID, res.Filename, res.RawText, data, res.S3URL)
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}
	return nil
}

// Get implements repository.Resumes.
func (r *Resumes) Get(ctx context.Context, id uuid.UUID) (repository.Resume, error) {
	var (
		res    repository.Resume
		raw    *string
		parsed []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, filename, raw_text, parsed_data, s3_url, created_at, updated_at, deleted_at
		FROM `+r.table+`
		WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&res.ID, &res.Filename, &raw, &parsed, &res.S3URL, &res.CreatedAt, &res.UpdatedAt, &res.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Resume{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Resume{}, fmt.Errorf("select resume: %w", err)
	}

	if raw != nil {
		res.RawText = *raw
	}
	res.ParsedData = map[string]any{}
	if len(parsed) > 0 {
		if err := json.Unmarshal(parsed, &res.ParsedData); err != nil {
			return repository.Resume{}, fmt.Errorf("unmarshal parsed data: %w", err)
		}
	}
	return res, nil
}

func (r *Resumes) update(ctx context.Context, id uuid.UUID, set string, arg any) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE `+r.table+`
		SET `+set+` = $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL`, arg, id)
	if err != nil {
		return fmt.Errorf("update resume %s: %w", set, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetParsedData implements repository.Resumes.
func (r *Resumes) SetParsedData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal parsed data: %w", err)
	}
	return r.update(ctx, id, "parsed_data", b)
}

// SetS3URL implements repository.Resumes.
func (r *Resumes) SetS3URL(ctx context.Context, id uuid.UUID, url string) error {
	return r.update(ctx, id, "s3_url", url)
}

// SoftDelete implements repository.Resumes.
func (r *Resumes) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE `+r.table+`
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete resume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
