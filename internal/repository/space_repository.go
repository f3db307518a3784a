package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/bookspace/internal/model"
)

type SpaceRepository struct {
	pool *pgxpool.Pool
}

func NewSpaceRepository(pool *pgxpool.Pool) *SpaceRepository {
	return &SpaceRepository{pool: pool}
}

// GetByID получает ресурс по ID
func (r *SpaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Space, error) {
	query := `
		SELECT id, workspace_id, name, capacity,
		       price_per_hour, daily_rate, monthly_rate,
		       operating_hours, min_advance_seconds, max_advance_seconds, is_available
		FROM spaces
		WHERE id = $1
	`

	var (
		space      model.Space
		hoursJSON  []byte
		minAdvance int64
		maxAdvance int64
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&space.ID,
		&space.WorkspaceID,
		&space.Name,
		&space.Capacity,
		&space.PricePerHour,
		&space.DailyRate,
		&space.MonthlyRate,
		&hoursJSON,
		&minAdvance,
		&maxAdvance,
		&space.IsAvailable,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("space %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get space by id: %w", err)
	}

	if err := json.Unmarshal(hoursJSON, &space.OperatingHours); err != nil {
		return nil, fmt.Errorf("decode operating hours: %w", err)
	}
	space.MinAdvance = time.Duration(minAdvance) * time.Second
	space.MaxAdvance = time.Duration(maxAdvance) * time.Second

	return &space, nil
}

// Create создаёт ресурс (используется сидированием и тестовой обвязкой)
func (r *SpaceRepository) Create(ctx context.Context, space *model.Space) error {
	hoursJSON, err := json.Marshal(space.OperatingHours)
	if err != nil {
		return fmt.Errorf("encode operating hours: %w", err)
	}

	query := `
		INSERT INTO spaces (id, workspace_id, name, capacity,
		                    price_per_hour, daily_rate, monthly_rate,
		                    operating_hours, min_advance_seconds, max_advance_seconds, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.pool.Exec(ctx, query,
		space.ID,
		space.WorkspaceID,
		space.Name,
		space.Capacity,
		space.PricePerHour,
		space.DailyRate,
		space.MonthlyRate,
		hoursJSON,
		int64(space.MinAdvance/time.Second),
		int64(space.MaxAdvance/time.Second),
		space.IsAvailable,
	)
	if err != nil {
		return fmt.Errorf("create space: %w", err)
	}

	return nil
}
