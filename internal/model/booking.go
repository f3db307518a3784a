package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"     // Создано, ожидает оплаты
	BookingStatusConfirmed  BookingStatus = "confirmed"   // Оплачено и подтверждено
	BookingStatusInProgress BookingStatus = "in_progress" // Идёт использование
	BookingStatusCompleted  BookingStatus = "completed"   // Завершено
	BookingStatusCancelled  BookingStatus = "cancelled"   // Отменено
)

// Booking подтверждённый (оплачиваемый) результат конвертации холда
type Booking struct {
	ID          uuid.UUID       `json:"id"`
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	SpaceID     uuid.UUID       `json:"space_id"`
	UserID      uuid.UUID       `json:"user_id"`
	BookingType BookingType     `json:"booking_type"`
	CheckIn     time.Time       `json:"check_in"`
	CheckOut    time.Time       `json:"check_out"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Discount    decimal.Decimal `json:"discount_amount"`
	Tax         decimal.Decimal `json:"tax_amount"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      BookingStatus   `json:"status"`
	ConfirmedAt *time.Time      `json:"confirmed_at"`
	CancelledAt *time.Time      `json:"cancelled_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
