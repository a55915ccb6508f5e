package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

type AchievementCacheRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAchievementCacheRepository(sqlDB *sql.DB, logger zerolog.Logger) *AchievementCacheRepository {
	return &AchievementCacheRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// ReplaceAll swaps the cached catalog for achievements, keeping their order.
func (r *AchievementCacheRepository) ReplaceAll(ctx context.Context, achievements []domain.Achievement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM achievement_cache`); err != nil {
		return fmt.Errorf("failed to clear achievement cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO achievement_cache (id, position, data, cached_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET position = excluded.position, data = excluded.data, cached_at = excluded.cached_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := 0; i < len(achievements); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(achievements) {
			end = len(achievements)
		}

		for pos, a := range achievements[i:end] {
			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("failed to encode achievement %d: %w", a.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, a.ID, i+pos, string(data), now); err != nil {
				return fmt.Errorf("failed to cache achievement %d: %w", a.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit achievement cache: %w", err)
	}

	r.logger.Debug().Int("count", len(achievements)).Msg("achievement cache replaced")
	return nil
}

func (r *AchievementCacheRepository) GetAll(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data FROM achievement_cache ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievement cache: %w", err)
	}
	defer rows.Close()

	var result []domain.Achievement
	for rows.Next() {
		var id int
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan achievement cache row: %w", err)
		}
		var a domain.Achievement
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("failed to decode cached achievement %d: %w", id, err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate achievement cache: %w", err)
	}
	return result, nil
}
