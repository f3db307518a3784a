package eventbus

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Топики событий ядра
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"

	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
	ReservationExpired   = "reservation.expired"
	ReservationExpiring  = "reservation.expiring"

	WalletCredited = "wallet.credited"
	WalletDebited  = "wallet.debited"

	DepositInitiated = "deposit.initiated"
	DepositCompleted = "deposit.completed"

	WithdrawalRequested  = "withdrawal.requested"
	WithdrawalProcessing = "withdrawal.processing"
	WithdrawalCompleted  = "withdrawal.completed"
	WithdrawalFailed     = "withdrawal.failed"

	PaymentInitiated = "payment.initiated"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
)

// Event событие для межмодульной коммуникации
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"event_type"`
	Source     string         `json:"source_module"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// NewEvent создаёт событие со стабильным event_id
func NewEvent(eventType, source string, data map[string]any) Event {
	return Event{
		ID:         fmt.Sprintf("%s:%s", eventType, uuid.NewString()),
		Type:       eventType,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher инжектируемый издатель. Сервисы зависят от интерфейса,
// а не от глобального реестра.
type Publisher interface {
	Publish(event Event)
}

// Handler обработчик события
type Handler func(event Event)

type subscriber struct {
	group   string
	handler Handler
	seen    *lru.Cache[string, struct{}] // дедупликация по event_id, доставка at-least-once
}

// Bus процессная шина pub/sub. Доставка синхронная; подписчики обязаны
// быть идемпотентными, шина дополнительно режет дубликаты по event_id
// в ограниченном окне недавних событий.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	logger *zap.Logger
}

const recentEventsCap = 10000

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]*subscriber),
		logger: logger,
	}
}

// Subscribe регистрирует обработчик для типа события. group определяет
// окно дедупликации: один group - одно "уже видел".
func (b *Bus) Subscribe(eventType, group string, handler Handler) {
	seen, err := lru.New[string, struct{}](recentEventsCap)
	if err != nil {
		// lru.New ошибается только при неположительном размере
		panic(fmt.Sprintf("event bus: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[eventType] = append(b.subs[eventType], &subscriber{
		group:   group,
		handler: handler,
		seen:    seen,
	})

	b.logger.Info("Subscribed to event",
		zap.String("event_type", eventType),
		zap.String("group", group),
	)
}

// Publish доставляет событие всем подписчикам типа. Паника обработчика
// логируется и не прерывает ни издателя, ни остальных подписчиков.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := b.subs[event.Type]
	b.mu.RUnlock()

	for _, sub := range subs {
		if _, dup := sub.seen.Get(event.ID); dup {
			b.logger.Debug("Skipping duplicate event",
				zap.String("event_id", event.ID),
				zap.String("group", sub.group),
			)
			continue
		}
		sub.seen.Add(event.ID, struct{}{})

		b.dispatch(sub, event)
	}

	b.logger.Debug("Event published",
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID),
		zap.String("source", event.Source),
	)
}

func (b *Bus) dispatch(sub *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event_type", event.Type),
				zap.String("group", sub.group),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(event)
}
