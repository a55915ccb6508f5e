package repository

import (
	"context"
	"database/sql"
	"fmt"
	"mastery-tracker/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	BuildStatusRunning   = "running"
	BuildStatusSucceeded = "succeeded"
	BuildStatusFailed    = "failed"
)

// IndexBuildRepository keeps a history of mastery id index builds.
type IndexBuildRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewIndexBuildRepository(sqlDB *sql.DB, logger zerolog.Logger) *IndexBuildRepository {
	return &IndexBuildRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *IndexBuildRepository) Start(ctx context.Context) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO index_builds (id, status, started_at) VALUES (?, ?, ?)`,
		id, BuildStatusRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record index build: %w", err)
	}

	r.logger.Debug().Str("build_id", id).Msg("index build recorded")
	return id, nil
}

// Finish marks the build succeeded, or failed when buildErr is non-nil.
func (r *IndexBuildRepository) Finish(ctx context.Context, id string, idCount int, buildErr error) error {
	status := BuildStatusSucceeded
	msg := ""
	if buildErr != nil {
		status = BuildStatusFailed
		msg = buildErr.Error()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE index_builds SET status = ?, id_count = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, idCount, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish index build %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index build %s not found", id)
	}
	return nil
}

func (r *IndexBuildRepository) Latest(ctx context.Context) (*domain.IndexBuild, error) {
	builds, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, nil
	}
	return &builds[0], nil
}

func (r *IndexBuildRepository) List(ctx context.Context, limit int) ([]domain.IndexBuild, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, id_count, error, started_at, finished_at
		FROM index_builds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query index builds: %w", err)
	}
	defer rows.Close()

	var result []domain.IndexBuild
	for rows.Next() {
		var b domain.IndexBuild
		var finished sql.NullTime
		if err := rows.Scan(&b.ID, &b.Status, &b.IDCount, &b.Error, &b.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan index build: %w", err)
		}
		if finished.Valid {
			b.FinishedAt = finished.Time
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
