package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Freeeeeet/bookspace/internal/model"
)

// Интерфейсы хранилищ, которые потребляют сервисы. Реализации на pgx
// живут в internal/repository; операции, требующие атомарности,
// выполняются там одной транзакцией и сигналят конфликты
// сентинелами repository.Err*.

// SpaceStore каталог ресурсов (read-only для ядра)
type SpaceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Space, error)
}

// SlotStore операции над ячейками календаря
type SlotStore interface {
	// EnsureSlots вставляет слоты, молча пропуская уже существующие
	// (идемпотентная генерация)
	EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error)

	// FindForWindow возвращает слоты, покрывающие окно, в порядке start_time
	FindForWindow(ctx context.Context, spaceID uuid.UUID, bt model.BookingType, start, end time.Time) ([]model.Slot, error)

	// ReleaseByReservation возвращает held-слоты холда в available.
	// Слоты, уже сконвертированные в booked, не трогает.
	ReleaseByReservation(ctx context.Context, reservationID uuid.UUID) (int64, error)

	// SetStatusRange административный перевод статусов
	// (block/maintenance/unblock)
	SetStatusRange(ctx context.Context, spaceID uuid.UUID, bt model.BookingType, start, end time.Time, from []model.SlotStatus, to model.SlotStatus) (int64, error)
}

// ReservationStore холды и их жизненный цикл
type ReservationStore interface {
	// CreateHold атомарно захватывает все слоты (available -> held) и
	// вставляет Reservation. Если хоть один слот не захвачен -
	// ErrSlotConflict, ничего не записано.
	CreateHold(ctx context.Context, res *model.Reservation, slotIDs []uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)

	// SetStatus условный переход статуса; false если строка уже не в from
	SetStatus(ctx context.Context, id uuid.UUID, from, to model.ReservationStatus) (bool, error)

	// ListExpired активные холды с истёкшим TTL
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error)

	// ListExpiring активные холды, истекающие в пределах window и ещё
	// не получившие предупреждение
	ListExpiring(ctx context.Context, now time.Time, window time.Duration) ([]*model.Reservation, error)

	MarkWarned(ctx context.Context, id uuid.UUID, at time.Time) error

	// DeleteTerminalBefore удаляет expired/cancelled старше cutoff
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BookingStore бронирования и конвертация холдов
type BookingStore interface {
	// ConvertReservation одна единица работы: слоты held -> booked с
	// перепроверкой принадлежности, Reservation -> confirmed, вставка
	// Booking. ErrSlotConflict / ErrStaleStatus при гонке.
	ConvertReservation(ctx context.Context, res *model.Reservation, booking *model.Booking) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)

	SetStatus(ctx context.Context, id uuid.UUID, to model.BookingStatus, at time.Time) error

	// ConfirmByOrder подтверждает pending-бронирования заказа и
	// возвращает все его подтверждённые строки, включая прежние
	ConfirmByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) ([]*model.Booking, error)
}

// CartStore корзина и её позиции
type CartStore interface {
	GetOrCreateByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	AddItem(ctx context.Context, item *model.CartItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*model.CartItem, error)
	ItemsByCart(ctx context.Context, cartID uuid.UUID) ([]*model.CartItem, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
	DeleteItemsByReservation(ctx context.Context, reservationID uuid.UUID) (int64, error)
	UpdateTotals(ctx context.Context, cart *model.Cart) error
}

// WalletStore кошельки и леджер
type WalletStore interface {
	GetByOwner(ctx context.Context, owner model.Owner) (*model.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Wallet, error)
	Create(ctx context.Context, w *model.Wallet) error

	FindTransaction(ctx context.Context, reference string) (*model.Transaction, error)

	// Apply атомарно: блокировка кошелька, повторная проверка reference
	// и баланса, вставка Transaction со снапшотом balance_before/after,
	// обновление баланса. При дубле reference возвращает существующую
	// запись и existing=true, баланс не трогает.
	Apply(ctx context.Context, tx *model.Transaction) (applied *model.Transaction, existing bool, err error)

	TransactionsByWallet(ctx context.Context, walletID uuid.UUID) ([]*model.Transaction, error)
}

// WithdrawalStore заявки на вывод и банковские счета
type WithdrawalStore interface {
	Create(ctx context.Context, w *model.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error)
	GetByReference(ctx context.Context, reference string) (*model.WithdrawalRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, from []model.WithdrawalStatus, to model.WithdrawalStatus, at time.Time) (bool, error)
	SetGatewayRef(ctx context.Context, id uuid.UUID, gatewayRef string) error
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	SetFailureReason(ctx context.Context, id uuid.UUID, reason string) error

	GetBankAccount(ctx context.Context, id uuid.UUID) (*model.BankAccount, error)
	SetRecipientRef(ctx context.Context, bankAccountID uuid.UUID, recipientRef string) error
}

// PaymentStore платежи, депозиты и заказы
type PaymentStore interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	CreatePayment(ctx context.Context, p *model.Payment) error
	PaymentByReference(ctx context.Context, reference string) (*model.Payment, error)
	// CompletePayment условный переход в completed; false если платёж
	// уже завершён (идемпотентный вебхук)
	CompletePayment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	FailPayment(ctx context.Context, id uuid.UUID) error

	CreateDeposit(ctx context.Context, d *model.Deposit) error
	DepositByReference(ctx context.Context, reference string) (*model.Deposit, error)
	CompleteDeposit(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	FailDeposit(ctx context.Context, id uuid.UUID) error
}
