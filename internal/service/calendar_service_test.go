package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/model"
)

func newCalendarEnv(t *testing.T) (*memDB, *model.Space, *CalendarService) {
	t.Helper()

	db := newMemDB()
	space := testSpace()
	db.spaces[space.ID] = space

	svc := NewCalendarService(&memSpaces{db}, &memSlots{db}, zap.NewNop())
	return db, space, svc
}

func TestGenerateHourlySlots(t *testing.T) {
	db, space, svc := newCalendarEnv(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	created, err := svc.GenerateSlots(context.Background(), space.ID, day, day, model.BookingTypeHourly)
	require.NoError(t, err)
	require.EqualValues(t, 9, created) // 09:00-18:00 по часу
	require.Len(t, db.slots, 9)

	// повторная генерация идемпотентна
	created, err = svc.GenerateSlots(context.Background(), space.ID, day, day, model.BookingTypeHourly)
	require.NoError(t, err)
	require.Zero(t, created)
	require.Len(t, db.slots, 9)
}

func TestGenerateSkipsClosedDays(t *testing.T) {
	_, space, svc := newCalendarEnv(t)
	delete(space.OperatingHours, time.Sunday)

	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.GenerateSlots(context.Background(), space.ID, sunday, sunday, model.BookingTypeDaily)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestGenerateDailyAndMonthlySlots(t *testing.T) {
	db, space, svc := newCalendarEnv(t)
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

	created, err := svc.GenerateSlots(context.Background(), space.ID, from, to, model.BookingTypeDaily)
	require.NoError(t, err)
	require.EqualValues(t, 5, created)

	created, err = svc.GenerateSlots(context.Background(), space.ID, from, to, model.BookingTypeMonthly)
	require.NoError(t, err)
	require.EqualValues(t, 1, created)
	require.Len(t, db.slots, 6)
}

func TestGetStatusAggregatesWorstCase(t *testing.T) {
	db, space, svc := newCalendarEnv(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	_, err := svc.GenerateSlots(context.Background(), space.ID, day, day, model.BookingTypeHourly)
	require.NoError(t, err)

	start := day.Add(10 * time.Hour)
	end := day.Add(12 * time.Hour)

	status, err := svc.GetStatus(context.Background(), space.ID, start, end, model.BookingTypeHourly)
	require.NoError(t, err)
	require.Equal(t, model.SlotStatusAvailable, status)

	// один слот окна занят - окно целиком не available
	for _, s := range db.slots {
		if s.StartTime.Equal(day.Add(11 * time.Hour)) {
			s.Status = model.SlotStatusBooked
		}
	}
	status, err = svc.GetStatus(context.Background(), space.ID, start, end, model.BookingTypeHourly)
	require.NoError(t, err)
	require.Equal(t, model.SlotStatusBooked, status)

	// окно без слотов - ошибка
	_, err = svc.GetStatus(context.Background(), space.ID, day.Add(20*time.Hour), day.Add(22*time.Hour), model.BookingTypeHourly)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestBlockAndUnblockSlots(t *testing.T) {
	db, space, svc := newCalendarEnv(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	_, err := svc.GenerateSlots(context.Background(), space.ID, day, day, model.BookingTypeHourly)
	require.NoError(t, err)

	start := day.Add(9 * time.Hour)
	end := day.Add(12 * time.Hour)

	affected, err := svc.Block(context.Background(), space.ID, start, end, model.BookingTypeHourly, model.SlotStatusMaintenance)
	require.NoError(t, err)
	require.EqualValues(t, 3, affected)

	var blocked int
	for _, s := range db.slots {
		if s.Status == model.SlotStatusMaintenance {
			blocked++
		}
	}
	require.Equal(t, 3, blocked)

	// обычный статус в Block не принимается
	_, err = svc.Block(context.Background(), space.ID, start, end, model.BookingTypeHourly, model.SlotStatusBooked)
	require.Error(t, err)

	affected, err = svc.Unblock(context.Background(), space.ID, start, end, model.BookingTypeHourly)
	require.NoError(t, err)
	require.EqualValues(t, 3, affected)
}
