package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/bookspace/internal/model"
)

type SlotRepository struct {
	pool *pgxpool.Pool
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// EnsureSlots вставляет слоты, пропуская уже существующие по уникальному
// ключу (space_id, booking_type, start_time). Возвращает число новых строк.
func (r *SlotRepository) EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error) {
	query := `
		INSERT INTO slots (id, space_id, slot_date, start_time, end_time, booking_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (space_id, booking_type, start_time) DO NOTHING
	`

	var created int64
	for _, slot := range slots {
		tag, err := r.pool.Exec(ctx, query,
			slot.ID,
			slot.SpaceID,
			slot.Date,
			slot.StartTime,
			slot.EndTime,
			slot.BookingType,
			slot.Status,
		)
		if err != nil {
			return created, fmt.Errorf("ensure slot: %w", err)
		}
		created += tag.RowsAffected()
	}

	return created, nil
}

// FindForWindow получает слоты ресурса, лежащие внутри окна, в порядке start_time
func (r *SlotRepository) FindForWindow(ctx context.Context, spaceID uuid.UUID, bt model.BookingType, start, end time.Time) ([]model.Slot, error) {
	query := `
		SELECT id, space_id, slot_date, start_time, end_time, booking_type, status, reservation_id, booking_id, created_at
		FROM slots
		WHERE space_id = $1
		  AND booking_type = $2
		  AND start_time >= $3
		  AND end_time <= $4
		ORDER BY start_time
	`

	rows, err := r.pool.Query(ctx, query, spaceID, bt, start, end)
	if err != nil {
		return nil, fmt.Errorf("find slots for window: %w", err)
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var slot model.Slot
		err := rows.Scan(
			&slot.ID,
			&slot.SpaceID,
			&slot.Date,
			&slot.StartTime,
			&slot.EndTime,
			&slot.BookingType,
			&slot.Status,
			&slot.ReservationID,
			&slot.BookingID,
			&slot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// ReleaseByReservation возвращает held-слоты холда в available. Слоты,
// уже ставшие booked, не трогает.
func (r *SlotRepository) ReleaseByReservation(ctx context.Context, reservationID uuid.UUID) (int64, error) {
	query := `
		UPDATE slots
		SET status = 'available', reservation_id = NULL
		WHERE reservation_id = $1 AND status = 'held'
	`

	tag, err := r.pool.Exec(ctx, query, reservationID)
	if err != nil {
		return 0, fmt.Errorf("release slots: %w", err)
	}

	return tag.RowsAffected(), nil
}

// SetStatusRange административно переводит статусы слотов окна
func (r *SlotRepository) SetStatusRange(ctx context.Context, spaceID uuid.UUID, bt model.BookingType, start, end time.Time, from []model.SlotStatus, to model.SlotStatus) (int64, error) {
	query := `
		UPDATE slots
		SET status = $1
		WHERE space_id = $2
		  AND booking_type = $3
		  AND start_time >= $4
		  AND end_time <= $5
		  AND status = ANY($6)
	`

	fromStr := make([]string, 0, len(from))
	for _, st := range from {
		fromStr = append(fromStr, string(st))
	}

	tag, err := r.pool.Exec(ctx, query, to, spaceID, bt, start, end, fromStr)
	if err != nil {
		return 0, fmt.Errorf("set slot status range: %w", err)
	}

	return tag.RowsAffected(), nil
}
