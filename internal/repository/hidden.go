package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type HiddenRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewHiddenRepository(sqlDB *sql.DB, logger zerolog.Logger) *HiddenRepository {
	return &HiddenRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *HiddenRepository) List(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM hidden_achievements ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hidden achievements: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hidden achievement: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *HiddenRepository) Add(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hidden_achievements (id, hidden_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to hide achievement %d: %w", id, err)
	}
	return nil
}

func (r *HiddenRepository) Remove(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM hidden_achievements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to unhide achievement %d: %w", id, err)
	}
	return nil
}
