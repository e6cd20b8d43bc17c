package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"thirdcoast.systems/streamvault/internal/model"
)

const downloadCols = `id, url, title, resolution, status, progress, speed, eta, fps,
	output_path, converted_file_path, thumbnail, thumbnails, error_message,
	started_at, updated_at`

func scanDownload(row pgx.Row) (*model.DownloadJob, error) {
	var j model.DownloadJob
	err := row.Scan(
		&j.ID, &j.URL, &j.Title, &j.Resolution, &j.Status, &j.Progress,
		&j.Speed, &j.ETA, &j.FPS, &j.OutputPath, &j.ConvertedFilePath,
		&j.Thumbnail, &j.Thumbnails, &j.ErrorMessage, &j.StartedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (s *Store) GetDownload(ctx context.Context, id string) (*model.DownloadJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+downloadCols+` FROM download_jobs WHERE id = $1`, id)
	return scanDownload(row)
}

func (s *Store) ListDownloads(ctx context.Context) ([]*model.DownloadJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+downloadCols+` FROM download_jobs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDownloads(rows)
}

func (s *Store) ListDownloadsByStatus(ctx context.Context, statuses ...model.DownloadStatus) ([]*model.DownloadJob, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+downloadCols+` FROM download_jobs WHERE status = ANY($1) ORDER BY started_at`, vals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDownloads(rows)
}

func collectDownloads(rows pgx.Rows) ([]*model.DownloadJob, error) {
	var jobs []*model.DownloadJob
	for rows.Next() {
		j, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpsertDownload inserts or replaces the record, stamping updated_at
// server-side and reflecting the new value back into job.
func (s *Store) UpsertDownload(ctx context.Context, job *model.DownloadJob) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO download_jobs (`+downloadCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			resolution = EXCLUDED.resolution,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			speed = EXCLUDED.speed,
			eta = EXCLUDED.eta,
			fps = EXCLUDED.fps,
			output_path = EXCLUDED.output_path,
			converted_file_path = EXCLUDED.converted_file_path,
			thumbnail = EXCLUDED.thumbnail,
			thumbnails = EXCLUDED.thumbnails,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			updated_at = now()
		RETURNING updated_at`,
		job.ID, job.URL, job.Title, job.Resolution, job.Status, job.Progress,
		job.Speed, job.ETA, job.FPS, job.OutputPath, job.ConvertedFilePath,
		job.Thumbnail, job.Thumbnails, job.ErrorMessage, job.StartedAt,
	)
	if err := row.Scan(&job.UpdatedAt); err != nil {
		return fmt.Errorf("store: upsert download %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) DeleteDownload(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM download_jobs WHERE id = $1`, id)
	return err
}
