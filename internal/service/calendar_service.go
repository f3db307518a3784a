package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/model"
)

// CalendarService материализует и выдаёт сетку доступности ресурса
type CalendarService struct {
	spaces SpaceStore
	slots  SlotStore
	logger *zap.Logger
}

func NewCalendarService(spaces SpaceStore, slots SlotStore, logger *zap.Logger) *CalendarService {
	return &CalendarService{
		spaces: spaces,
		slots:  slots,
		logger: logger,
	}
}

// GenerateSlots генерирует слоты для ресурса на диапазон дат. Идемпотентна:
// уже существующие слоты молча пропускаются. День недели без рабочих часов
// молча не даёт слотов - это не ошибка, администратор мог закрыть день.
func (s *CalendarService) GenerateSlots(ctx context.Context, spaceID uuid.UUID, from, to time.Time, bt model.BookingType) (int64, error) {
	space, err := s.spaces.GetByID(ctx, spaceID)
	if err != nil {
		return 0, fmt.Errorf("get space: %w", err)
	}

	var slots []model.Slot
	switch bt {
	case model.BookingTypeHourly:
		slots = hourlySlots(space, from, to)
	case model.BookingTypeDaily:
		slots = dailySlots(space, from, to)
	case model.BookingTypeMonthly:
		slots = monthlySlots(space, from, to)
	default:
		return 0, fmt.Errorf("%w: unknown booking type %q", ErrInvalidWindow, bt)
	}

	if len(slots) == 0 {
		return 0, nil
	}

	created, err := s.slots.EnsureSlots(ctx, slots)
	if err != nil {
		return 0, fmt.Errorf("ensure slots: %w", err)
	}

	s.logger.Info("Slots generated",
		zap.String("space_id", spaceID.String()),
		zap.String("booking_type", string(bt)),
		zap.Int64("created", created),
		zap.Int("candidates", len(slots)),
	)

	return created, nil
}

// GetStatus возвращает агрегированный статус слотов окна: available,
// только если каждый покрывающий слот available
func (s *CalendarService) GetStatus(ctx context.Context, spaceID uuid.UUID, start, end time.Time, bt model.BookingType) (model.SlotStatus, error) {
	slots, err := s.slots.FindForWindow(ctx, spaceID, bt, start, end)
	if err != nil {
		return "", fmt.Errorf("find slots: %w", err)
	}
	if len(slots) == 0 {
		return "", fmt.Errorf("%w: no slots generated for window", ErrInvalidWindow)
	}

	status := model.SlotStatusAvailable
	for _, slot := range slots {
		if slot.Status != model.SlotStatusAvailable {
			status = slot.Status
		}
	}
	return status, nil
}

// Block административно выводит слоты окна из оборота
// (available/held -> blocked|maintenance)
func (s *CalendarService) Block(ctx context.Context, spaceID uuid.UUID, start, end time.Time, bt model.BookingType, to model.SlotStatus) (int64, error) {
	if to != model.SlotStatusBlocked && to != model.SlotStatusMaintenance {
		return 0, fmt.Errorf("%w: %q is not an administrative status", ErrInvalidWindow, to)
	}
	from := []model.SlotStatus{model.SlotStatusAvailable, model.SlotStatusHeld}
	return s.slots.SetStatusRange(ctx, spaceID, bt, start, end, from, to)
}

// Unblock возвращает административно закрытые слоты в available
func (s *CalendarService) Unblock(ctx context.Context, spaceID uuid.UUID, start, end time.Time, bt model.BookingType) (int64, error) {
	from := []model.SlotStatus{model.SlotStatusBlocked, model.SlotStatusMaintenance}
	return s.slots.SetStatusRange(ctx, spaceID, bt, start, end, from, model.SlotStatusAvailable)
}

func hourlySlots(space *model.Space, from, to time.Time) []model.Slot {
	var slots []model.Slot
	for day := dateOf(from); !day.After(dateOf(to)); day = day.AddDate(0, 0, 1) {
		hours, open := space.OperatingHours[day.Weekday()]
		if !open {
			continue
		}
		openAt, err1 := clockOn(day, hours.Open)
		closeAt, err2 := clockOn(day, hours.Close)
		if err1 != nil || err2 != nil || !openAt.Before(closeAt) {
			continue
		}
		for t := openAt; t.Add(time.Hour).Compare(closeAt) <= 0; t = t.Add(time.Hour) {
			slots = append(slots, model.Slot{
				ID:          uuid.New(),
				SpaceID:     space.ID,
				Date:        day,
				StartTime:   t,
				EndTime:     t.Add(time.Hour),
				BookingType: model.BookingTypeHourly,
				Status:      model.SlotStatusAvailable,
			})
		}
	}
	return slots
}

func dailySlots(space *model.Space, from, to time.Time) []model.Slot {
	var slots []model.Slot
	for day := dateOf(from); !day.After(dateOf(to)); day = day.AddDate(0, 0, 1) {
		hours, open := space.OperatingHours[day.Weekday()]
		if !open {
			continue
		}
		openAt, err1 := clockOn(day, hours.Open)
		closeAt, err2 := clockOn(day, hours.Close)
		if err1 != nil || err2 != nil || !openAt.Before(closeAt) {
			continue
		}
		slots = append(slots, model.Slot{
			ID:          uuid.New(),
			SpaceID:     space.ID,
			Date:        day,
			StartTime:   openAt,
			EndTime:     closeAt,
			BookingType: model.BookingTypeDaily,
			Status:      model.SlotStatusAvailable,
		})
	}
	return slots
}

// monthlySlots один слот на каждый календарный месяц, пересекающий
// диапазон; месячная аренда не зависит от рабочих часов отдельных дней
func monthlySlots(space *model.Space, from, to time.Time) []model.Slot {
	var slots []model.Slot
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for month := first; !month.After(to); month = month.AddDate(0, 1, 0) {
		slots = append(slots, model.Slot{
			ID:          uuid.New(),
			SpaceID:     space.ID,
			Date:        month,
			StartTime:   month,
			EndTime:     month.AddDate(0, 1, 0),
			BookingType: model.BookingTypeMonthly,
			Status:      model.SlotStatusAvailable,
		})
	}
	return slots
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// clockOn собирает момент времени из даты и строки "HH:MM"
func clockOn(day time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed clock %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed clock %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed clock %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("clock out of range %q", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC), nil
}
