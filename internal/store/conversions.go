package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"thirdcoast.systems/streamvault/internal/model"
)

const conversionCols = `id, download_id, source_path, output_path, title, status,
	progress, speed, fps, eta, error_message, started_at, updated_at`

func scanConversion(row pgx.Row) (*model.ConversionJob, error) {
	var j model.ConversionJob
	err := row.Scan(
		&j.ID, &j.DownloadID, &j.SourcePath, &j.OutputPath, &j.Title, &j.Status,
		&j.Progress, &j.Speed, &j.FPS, &j.ETA, &j.ErrorMessage, &j.StartedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (s *Store) GetConversion(ctx context.Context, id string) (*model.ConversionJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversionCols+` FROM conversion_jobs WHERE id = $1`, id)
	return scanConversion(row)
}

// GetConversionByDownload finds the conversion job for a download, if any.
// At most one exists at a time per download.
func (s *Store) GetConversionByDownload(ctx context.Context, downloadID string) (*model.ConversionJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversionCols+` FROM conversion_jobs WHERE download_id = $1`, downloadID)
	return scanConversion(row)
}

func (s *Store) ListConversions(ctx context.Context) ([]*model.ConversionJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversionCols+` FROM conversion_jobs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversions(rows)
}

func (s *Store) ListConversionsByStatus(ctx context.Context, statuses ...model.ConversionStatus) ([]*model.ConversionJob, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversionCols+` FROM conversion_jobs WHERE status = ANY($1) ORDER BY started_at`, vals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversions(rows)
}

func collectConversions(rows pgx.Rows) ([]*model.ConversionJob, error) {
	var jobs []*model.ConversionJob
	for rows.Next() {
		j, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) UpsertConversion(ctx context.Context, job *model.ConversionJob) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversion_jobs (`+conversionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO UPDATE SET
			download_id = EXCLUDED.download_id,
			source_path = EXCLUDED.source_path,
			output_path = EXCLUDED.output_path,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			speed = EXCLUDED.speed,
			fps = EXCLUDED.fps,
			eta = EXCLUDED.eta,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			updated_at = now()
		RETURNING updated_at`,
		job.ID, job.DownloadID, job.SourcePath, job.OutputPath, job.Title,
		job.Status, job.Progress, job.Speed, job.FPS, job.ETA,
		job.ErrorMessage, job.StartedAt,
	)
	if err := row.Scan(&job.UpdatedAt); err != nil {
		return fmt.Errorf("store: upsert conversion %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) DeleteConversion(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversion_jobs WHERE id = $1`, id)
	return err
}
