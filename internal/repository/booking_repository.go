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

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

const bookingColumns = `id, workspace_id, space_id, user_id, booking_type, check_in, check_out,
	base_price, discount_amount, tax_amount, total_price, status, confirmed_at, cancelled_at, created_at, updated_at`

// ConvertReservation конвертирует холд в бронирование одной транзакцией:
// холд active -> confirmed, его слоты held -> booked, вставка брони.
// Проигрыш гонки (холд уже не active или слоты перехвачены) откатывает всё.
func (r *BookingRepository) ConvertReservation(ctx context.Context, res *model.Reservation, booking *model.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	confirm := `
		UPDATE reservations
		SET status = 'confirmed', updated_at = now()
		WHERE id = $1 AND status = 'active'
	`
	tag, err := tx.Exec(ctx, confirm, res.ID)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("reservation %s is not active: %w", res.ID, ErrStaleStatus)
	}

	book := `
		UPDATE slots
		SET status = 'booked', booking_id = $1
		WHERE reservation_id = $2 AND status = 'held'
	`
	tag, err = tx.Exec(ctx, book, booking.ID, res.ID)
	if err != nil {
		return fmt.Errorf("book slots: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no held slots for reservation %s: %w", res.ID, ErrSlotConflict)
	}

	insert := `
		INSERT INTO bookings (id, workspace_id, space_id, user_id, booking_type, check_in, check_out,
		                      base_price, discount_amount, tax_amount, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`
	_, err = tx.Exec(ctx, insert,
		booking.ID,
		booking.WorkspaceID,
		booking.SpaceID,
		booking.UserID,
		booking.BookingType,
		booking.CheckIn,
		booking.CheckOut,
		booking.BasePrice,
		booking.Discount,
		booking.Tax,
		booking.TotalPrice,
		booking.Status,
		booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// SetStatus обновляет статус бронирования
func (r *BookingRepository) SetStatus(ctx context.Context, id uuid.UUID, to model.BookingStatus, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = $1,
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN $2 ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN $2 ELSE cancelled_at END,
		    updated_at = $2
		WHERE id = $3
	`

	tag, err := r.pool.Exec(ctx, query, to, at, id)
	if err != nil {
		return fmt.Errorf("set booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}

	return nil
}

// ConfirmByOrder подтверждает pending-бронирования заказа и возвращает
// все подтверждённые строки заказа, включая подтверждённые ранее. Это
// позволяет безопасно повторять начисления после частичного сбоя.
func (r *BookingRepository) ConfirmByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) ([]*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'confirmed', confirmed_at = COALESCE(confirmed_at, $1), updated_at = $1
		WHERE status IN ('pending', 'confirmed')
		  AND id IN (SELECT unnest(booking_ids) FROM orders WHERE id = $2)
		RETURNING ` + bookingColumns

	rows, err := r.pool.Query(ctx, query, at, orderID)
	if err != nil {
		return nil, fmt.Errorf("confirm bookings by order: %w", err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, booking)
	}

	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.WorkspaceID,
		&b.SpaceID,
		&b.UserID,
		&b.BookingType,
		&b.CheckIn,
		&b.CheckOut,
		&b.BasePrice,
		&b.Discount,
		&b.Tax,
		&b.TotalPrice,
		&b.Status,
		&b.ConfirmedAt,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
