package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusHeld        SlotStatus = "held"
	SlotStatusBooked      SlotStatus = "booked"
	SlotStatusBlocked     SlotStatus = "blocked"
	SlotStatusMaintenance SlotStatus = "maintenance"
)

// Slot ячейка календаря доступности. Уникальна по (space, date, start, type).
type Slot struct {
	ID            uuid.UUID   `json:"id"`
	SpaceID       uuid.UUID   `json:"space_id"`
	Date          time.Time   `json:"date"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       time.Time   `json:"end_time"`
	BookingType   BookingType `json:"booking_type"`
	Status        SlotStatus  `json:"status"`
	ReservationID *uuid.UUID  `json:"reservation_id"` // указатель - может быть nil
	BookingID     *uuid.UUID  `json:"booking_id"`
	CreatedAt     time.Time   `json:"created_at"`
}
