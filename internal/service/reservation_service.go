package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/metrics"
	"github.com/Freeeeeet/bookspace/internal/model"
)

// ReservationService управляет временными удержаниями слотов.
// Удержание атомарно захватывает все слоты окна и живёт не дольше TTL
type ReservationService struct {
	spaces       SpaceStore
	slots        SlotStore
	reservations ReservationStore
	events       eventbus.Publisher
	ttl          time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewReservationService(
	spaces SpaceStore,
	slots SlotStore,
	reservations ReservationStore,
	events eventbus.Publisher,
	ttl time.Duration,
	logger *zap.Logger,
) *ReservationService {
	return &ReservationService{
		spaces:       spaces,
		slots:        slots,
		reservations: reservations,
		events:       events,
		ttl:          ttl,
		logger:       logger,
		now:          time.Now,
	}
}

// Hold пытается удержать окно [start, end) для пользователя. Конкурирующие
// запросы на пересекающиеся окна разрешаются на уровне хранилища: побеждает
// ровно один, остальные получают ErrSlotUnavailable
func (s *ReservationService) Hold(ctx context.Context, userID, spaceID uuid.UUID, bt model.BookingType, start, end time.Time) (*model.Reservation, error) {
	now := s.now()

	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
	}
	if start.Before(now) {
		return nil, fmt.Errorf("%w: window starts in the past", ErrInvalidWindow)
	}

	space, err := s.spaces.GetByID(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	if !space.IsAvailable {
		return nil, fmt.Errorf("%w: space is not accepting bookings", ErrSlotUnavailable)
	}
	if space.MinAdvance > 0 && start.Sub(now) < space.MinAdvance {
		return nil, fmt.Errorf("%w: window starts sooner than allowed", ErrWindowOutOfPolicy)
	}
	if space.MaxAdvance > 0 && start.Sub(now) > space.MaxAdvance {
		return nil, fmt.Errorf("%w: window starts further ahead than allowed", ErrWindowOutOfPolicy)
	}

	slots, err := s.slots.FindForWindow(ctx, spaceID, bt, start, end)
	if err != nil {
		return nil, fmt.Errorf("find slots: %w", err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no slots generated for window", ErrInvalidWindow)
	}
	if missing := coverageGap(slots, start, end); missing {
		return nil, fmt.Errorf("%w: window is not fully covered by the calendar", ErrInvalidWindow)
	}

	slotIDs := make([]uuid.UUID, 0, len(slots))
	for _, slot := range slots {
		slotIDs = append(slotIDs, slot.ID)
	}

	reservation := &model.Reservation{
		ID:          uuid.New(),
		UserID:      userID,
		SpaceID:     spaceID,
		BookingType: bt,
		Start:       start,
		End:         end,
		Status:      model.ReservationStatusActive,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	if err := s.reservations.CreateHold(ctx, reservation, slotIDs); err != nil {
		err = mapStoreErr(err)
		if errors.Is(err, ErrSlotUnavailable) {
			metrics.SlotConflicts.Inc()
		}
		return nil, err
	}

	s.logger.Info("Reservation held",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("space_id", spaceID.String()),
		zap.Int("slots", len(slotIDs)),
		zap.Time("expires_at", reservation.ExpiresAt),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.ReservationCreated, "reservation", map[string]any{
		"reservation_id": reservation.ID.String(),
		"user_id":        userID.String(),
		"space_id":       spaceID.String(),
		"expires_at":     reservation.ExpiresAt.UTC().Format(time.RFC3339),
	}))

	return reservation, nil
}

// Get возвращает удержание, лениво переводя его в expired, если TTL уже
// вышел, а фоновая уборка ещё не добралась
func (s *ReservationService) Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	reservation, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if reservation.IsExpired(s.now()) {
		if err := s.expire(ctx, reservation); err != nil {
			return nil, err
		}
	}

	return reservation, nil
}

// Release снимает удержание по инициативе пользователя. Повторный вызов
// и вызов по уже истёкшему удержанию не являются ошибкой
func (s *ReservationService) Release(ctx context.Context, id uuid.UUID) error {
	reservation, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}

	if reservation.IsExpired(s.now()) {
		return s.expire(ctx, reservation)
	}

	// Сначала слоты, потом статус: если освобождение не прошло,
	// удержание остаётся active и отмену можно повторить.
	if _, err := s.slots.ReleaseByReservation(ctx, id); err != nil {
		return fmt.Errorf("release slots: %w", err)
	}

	moved, err := s.reservations.SetStatus(ctx, id, model.ReservationStatusActive, model.ReservationStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	if !moved {
		// кто-то успел подтвердить, отменить или просрочить раньше нас
		return nil
	}

	s.logger.Info("Reservation released", zap.String("reservation_id", id.String()))

	s.events.Publish(eventbus.NewEvent(eventbus.ReservationCancelled, "reservation", map[string]any{
		"reservation_id": id.String(),
		"user_id":        reservation.UserID.String(),
	}))

	return nil
}

// Expire переводит просроченное удержание в expired и освобождает слоты.
// Вызывается и лениво при чтении, и фоновой уборкой
func (s *ReservationService) Expire(ctx context.Context, id uuid.UUID) error {
	reservation, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	return s.expire(ctx, reservation)
}

func (s *ReservationService) expire(ctx context.Context, reservation *model.Reservation) error {
	// Сначала слоты, потом статус: после сбоя освобождения удержание
	// остаётся active и уборка вернётся к нему на следующем проходе.
	if _, err := s.slots.ReleaseByReservation(ctx, reservation.ID); err != nil {
		return fmt.Errorf("release slots: %w", err)
	}

	moved, err := s.reservations.SetStatus(ctx, reservation.ID, model.ReservationStatusActive, model.ReservationStatusExpired)
	if err != nil {
		return fmt.Errorf("expire reservation: %w", err)
	}
	if !moved {
		return nil
	}
	reservation.Status = model.ReservationStatusExpired

	s.logger.Info("Reservation expired",
		zap.String("reservation_id", reservation.ID.String()),
		zap.Time("expired_at", reservation.ExpiresAt),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.ReservationExpired, "reservation", map[string]any{
		"reservation_id": reservation.ID.String(),
		"user_id":        reservation.UserID.String(),
	}))

	return nil
}

// coverageGap проверяет, что слоты встык покрывают всё окно
func coverageGap(slots []model.Slot, start, end time.Time) bool {
	cursor := start
	for _, slot := range slots {
		if slot.StartTime.After(cursor) {
			return true
		}
		if slot.EndTime.After(cursor) {
			cursor = slot.EndTime
		}
	}
	return cursor.Before(end)
}
