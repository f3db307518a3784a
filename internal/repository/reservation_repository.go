package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/bookspace/internal/model"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

const reservationColumns = `id, user_id, space_id, booking_type, start_at, end_at, status, expires_at, warned_at, created_at, updated_at`

// CreateHold атомарно захватывает слоты и создаёт холд одной транзакцией.
// Если хоть один слот уже не available, вся транзакция откатывается
// и возвращается ErrSlotConflict.
func (r *ReservationRepository) CreateHold(ctx context.Context, res *model.Reservation, slotIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	claim := `
		UPDATE slots
		SET status = 'held', reservation_id = $1
		WHERE id = ANY($2) AND status = 'available'
	`
	tag, err := tx.Exec(ctx, claim, res.ID, slotIDs)
	if err != nil {
		return fmt.Errorf("claim slots: %w", err)
	}
	if tag.RowsAffected() != int64(len(slotIDs)) {
		return fmt.Errorf("claimed %d of %d slots: %w", tag.RowsAffected(), len(slotIDs), ErrSlotConflict)
	}

	insert := `
		INSERT INTO reservations (id, user_id, space_id, booking_type, start_at, end_at, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = tx.Exec(ctx, insert,
		res.ID,
		res.UserID,
		res.SpaceID,
		res.BookingType,
		res.Start,
		res.End,
		res.Status,
		res.ExpiresAt,
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID получает холд по ID
func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get reservation by id: %w", err)
	}

	return res, nil
}

// SetStatus условный переход статуса. false без ошибки, если строка
// уже не в статусе from.
func (r *ReservationRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to model.ReservationStatus) (bool, error) {
	query := `
		UPDATE reservations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`

	tag, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("set reservation status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListExpired получает активные холды с истёкшим TTL
func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListExpiring получает активные холды, истекающие в пределах window
// и ещё не получившие предупреждение
func (r *ReservationRepository) ListExpiring(ctx context.Context, now time.Time, window time.Duration) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'active'
		  AND warned_at IS NULL
		  AND expires_at > $1
		  AND expires_at <= $2
		ORDER BY expires_at
	`

	rows, err := r.pool.Query(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("list expiring reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// MarkWarned фиксирует отправку предупреждения об истечении
func (r *ReservationRepository) MarkWarned(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE reservations
		SET warned_at = $1, updated_at = now()
		WHERE id = $2 AND warned_at IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark reservation warned: %w", err)
	}

	return nil
}

// DeleteTerminalBefore удаляет терминальные холды старше cutoff
func (r *ReservationRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM reservations
		WHERE status IN ('expired', 'cancelled') AND updated_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal reservations: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.SpaceID,
		&res.BookingType,
		&res.Start,
		&res.End,
		&res.Status,
		&res.ExpiresAt,
		&res.WarnedAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func collectReservations(rows pgx.Rows) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
