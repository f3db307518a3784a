package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingType гранулярность бронирования
type BookingType string

const (
	BookingTypeHourly  BookingType = "hourly"
	BookingTypeDaily   BookingType = "daily"
	BookingTypeMonthly BookingType = "monthly"
)

// DayHours рабочие часы одного дня недели
type DayHours struct {
	Open  string `json:"open"`  // "09:00"
	Close string `json:"close"` // "18:00"
}

// OperatingHours рабочие часы по дням недели. Отсутствующий день = закрыто.
type OperatingHours map[time.Weekday]DayHours

// Space бронируемый ресурс из каталога (read-only для ядра)
type Space struct {
	ID             uuid.UUID       `json:"id"`
	WorkspaceID    uuid.UUID       `json:"workspace_id"`
	Name           string          `json:"name"`
	Capacity       int             `json:"capacity"`
	PricePerHour   decimal.Decimal `json:"price_per_hour"`
	DailyRate      decimal.Decimal `json:"daily_rate"`
	MonthlyRate    decimal.Decimal `json:"monthly_rate"`
	OperatingHours OperatingHours  `json:"operating_hours"`
	MinAdvance     time.Duration   `json:"min_advance"` // минимальный интервал до начала брони
	MaxAdvance     time.Duration   `json:"max_advance"` // максимальный горизонт бронирования
	IsAvailable    bool            `json:"is_available"`
}

// Rate возвращает ставку для типа бронирования
func (s *Space) Rate(bt BookingType) decimal.Decimal {
	switch bt {
	case BookingTypeHourly:
		return s.PricePerHour
	case BookingTypeMonthly:
		return s.MonthlyRate
	default:
		return s.DailyRate
	}
}
