package model

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation временный эксклюзивный холд на слоты до оплаты
type Reservation struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	SpaceID     uuid.UUID         `json:"space_id"`
	BookingType BookingType       `json:"booking_type"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Status      ReservationStatus `json:"status"`
	ExpiresAt   time.Time         `json:"expires_at"`
	WarnedAt    *time.Time        `json:"warned_at"` // когда отправлено предупреждение об истечении
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsExpired проверяет истёк ли холд (ленивое применение TTL)
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusActive && !now.Before(r.ExpiresAt)
}
