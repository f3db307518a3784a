package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/metrics"
	"github.com/Freeeeeet/bookspace/internal/service"
)

const (
	expiredBatchSize  = 500
	retentionInterval = 24 * time.Hour
	retentionAge      = 24 * time.Hour
)

// Sweeper управляет фоновыми задачами жизненного цикла холдов:
// просрочка по TTL, предупреждения об истечении и удаление
// терминальных записей по сроку хранения
type Sweeper struct {
	reservations *service.ReservationService
	store        service.ReservationStore
	carts        service.CartStore
	events       eventbus.Publisher
	interval     time.Duration
	warnWindow   time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}
}

// NewSweeper создаёт новый свипер
func NewSweeper(
	reservations *service.ReservationService,
	store service.ReservationStore,
	carts service.CartStore,
	events eventbus.Publisher,
	interval, warnWindow time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		reservations: reservations,
		store:        store,
		carts:        carts,
		events:       events,
		interval:     interval,
		warnWindow:   warnWindow,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting background sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("warn_window", s.warnWindow),
	)

	go s.runExpirySweep(ctx)
	go s.runRetentionSweep(ctx)
}

// Stop останавливает фоновые задачи
func (s *Sweeper) Stop() {
	s.logger.Info("Stopping background sweeper")
	close(s.stopChan)
}

// runExpirySweep периодически просрочивает холды и рассылает
// предупреждения об истечении
func (s *Sweeper) runExpirySweep(ctx context.Context) {
	// Первый проход сразу при старте
	s.sweepExpired(ctx)
	s.sweepExpiring(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired(ctx)
			s.sweepExpiring(ctx)
		case <-s.stopChan:
			s.logger.Info("Expiry sweep stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Expiry sweep cancelled")
			return
		}
	}
}

// runRetentionSweep раз в сутки удаляет терминальные холды старше
// срока хранения
func (s *Sweeper) runRetentionSweep(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepRetention(ctx)
		case <-s.stopChan:
			s.logger.Info("Retention sweep stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Retention sweep cancelled")
			return
		}
	}
}

// sweepExpired переводит просроченные холды в expired и освобождает их слоты
func (s *Sweeper) sweepExpired(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	expired, err := s.store.ListExpired(ctx, time.Now(), expiredBatchSize)
	if err != nil {
		s.logger.Error("Failed to list expired reservations", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	var done int
	for _, res := range expired {
		if err := s.reservations.Expire(ctx, res.ID); err != nil {
			s.logger.Error("Failed to expire reservation",
				zap.String("reservation_id", res.ID.String()),
				zap.Error(err),
			)
			continue
		}
		// позиция корзины без холда больше не валидна
		if _, err := s.carts.DeleteItemsByReservation(ctx, res.ID); err != nil {
			s.logger.Error("Failed to prune cart items of expired reservation",
				zap.String("reservation_id", res.ID.String()),
				zap.Error(err),
			)
		}
		done++
		metrics.ReservationsExpired.Inc()
	}

	s.logger.Info("Expiry sweep finished",
		zap.Int("expired", done),
		zap.Int("candidates", len(expired)),
	)
}

// sweepExpiring шлёт событие-предупреждение по холдам, истекающим в
// пределах окна. Каждый холд предупреждается не больше одного раза.
func (s *Sweeper) sweepExpiring(ctx context.Context) {
	expiring, err := s.store.ListExpiring(ctx, time.Now(), s.warnWindow)
	if err != nil {
		s.logger.Error("Failed to list expiring reservations", zap.Error(err))
		return
	}

	for _, res := range expiring {
		if err := s.store.MarkWarned(ctx, res.ID, time.Now()); err != nil {
			s.logger.Error("Failed to mark reservation warned",
				zap.String("reservation_id", res.ID.String()),
				zap.Error(err),
			)
			continue
		}

		s.events.Publish(eventbus.NewEvent(eventbus.ReservationExpiring, "sweeper", map[string]any{
			"reservation_id": res.ID.String(),
			"user_id":        res.UserID.String(),
			"expires_at":     res.ExpiresAt.UTC().Format(time.RFC3339),
		}))
	}

	if len(expiring) > 0 {
		s.logger.Info("Expiry warnings sent", zap.Int("warned", len(expiring)))
	}
}

// sweepRetention удаляет expired/cancelled холды старше срока хранения
func (s *Sweeper) sweepRetention(ctx context.Context) {
	deleted, err := s.store.DeleteTerminalBefore(ctx, time.Now().Add(-retentionAge))
	if err != nil {
		s.logger.Error("Failed to delete terminal reservations", zap.Error(err))
		return
	}

	if deleted > 0 {
		s.logger.Info("Retention sweep finished", zap.Int64("deleted", deleted))
	}
}
