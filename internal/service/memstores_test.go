package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Freeeeeet/bookspace/internal/gateway"
	"github.com/Freeeeeet/bookspace/internal/model"
	"github.com/Freeeeeet/bookspace/internal/repository"
)

// memDB общее состояние in-memory фейков. Все мутации идут под одним
// мьютексом, так что атомарные операции хранилищ ведут себя как
// транзакции реальной базы.
type memDB struct {
	mu           sync.Mutex
	spaces       map[uuid.UUID]*model.Space
	slots        map[uuid.UUID]*model.Slot
	reservations map[uuid.UUID]*model.Reservation
	bookings     map[uuid.UUID]*model.Booking
	carts        map[uuid.UUID]*model.Cart
	items        map[uuid.UUID]*model.CartItem
	wallets      map[uuid.UUID]*model.Wallet
	txByRef      map[string]*model.Transaction
	withdrawals  map[uuid.UUID]*model.WithdrawalRequest
	banks        map[uuid.UUID]*model.BankAccount
	orders       map[uuid.UUID]*model.Order
	payments     map[uuid.UUID]*model.Payment
	deposits     map[uuid.UUID]*model.Deposit
}

func newMemDB() *memDB {
	return &memDB{
		spaces:       make(map[uuid.UUID]*model.Space),
		slots:        make(map[uuid.UUID]*model.Slot),
		reservations: make(map[uuid.UUID]*model.Reservation),
		bookings:     make(map[uuid.UUID]*model.Booking),
		carts:        make(map[uuid.UUID]*model.Cart),
		items:        make(map[uuid.UUID]*model.CartItem),
		wallets:      make(map[uuid.UUID]*model.Wallet),
		txByRef:      make(map[string]*model.Transaction),
		withdrawals:  make(map[uuid.UUID]*model.WithdrawalRequest),
		banks:        make(map[uuid.UUID]*model.BankAccount),
		orders:       make(map[uuid.UUID]*model.Order),
		payments:     make(map[uuid.UUID]*model.Payment),
		deposits:     make(map[uuid.UUID]*model.Deposit),
	}
}

type memSpaces struct{ db *memDB }

func (m *memSpaces) GetByID(_ context.Context, id uuid.UUID) (*model.Space, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	space, ok := m.db.spaces[id]
	if !ok {
		return nil, fmt.Errorf("space %s: %w", id, repository.ErrNotFound)
	}
	cp := *space
	return &cp, nil
}

type memSlots struct{ db *memDB }

func (m *memSlots) EnsureSlots(_ context.Context, slots []model.Slot) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var created int64
	for _, slot := range slots {
		if m.findSlotLocked(slot.SpaceID, slot.BookingType, slot.StartTime) != nil {
			continue
		}
		cp := slot
		m.db.slots[slot.ID] = &cp
		created++
	}
	return created, nil
}

func (m *memSlots) findSlotLocked(spaceID uuid.UUID, bt model.BookingType, start time.Time) *model.Slot {
	for _, s := range m.db.slots {
		if s.SpaceID == spaceID && s.BookingType == bt && s.StartTime.Equal(start) {
			return s
		}
	}
	return nil
}

func (m *memSlots) FindForWindow(_ context.Context, spaceID uuid.UUID, bt model.BookingType, start, end time.Time) ([]model.Slot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Slot
	for _, s := range m.db.slots {
		if s.SpaceID == spaceID && s.BookingType == bt &&
			!s.StartTime.Before(start) && !s.EndTime.After(end) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memSlots) ReleaseByReservation(_ context.Context, reservationID uuid.UUID) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var released int64
	for _, s := range m.db.slots {
		if s.ReservationID != nil && *s.ReservationID == reservationID && s.Status == model.SlotStatusHeld {
			s.Status = model.SlotStatusAvailable
			s.ReservationID = nil
			released++
		}
	}
	return released, nil
}

func (m *memSlots) SetStatusRange(_ context.Context, spaceID uuid.UUID, bt model.BookingType, start, end time.Time, from []model.SlotStatus, to model.SlotStatus) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var affected int64
	for _, s := range m.db.slots {
		if s.SpaceID != spaceID || s.BookingType != bt ||
			s.StartTime.Before(start) || s.EndTime.After(end) {
			continue
		}
		for _, st := range from {
			if s.Status == st {
				s.Status = to
				affected++
				break
			}
		}
	}
	return affected, nil
}

type memReservations struct{ db *memDB }

func (m *memReservations) CreateHold(_ context.Context, res *model.Reservation, slotIDs []uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, id := range slotIDs {
		slot, ok := m.db.slots[id]
		if !ok || slot.Status != model.SlotStatusAvailable {
			return fmt.Errorf("slot %s: %w", id, repository.ErrSlotConflict)
		}
	}
	for _, id := range slotIDs {
		slot := m.db.slots[id]
		slot.Status = model.SlotStatusHeld
		rid := res.ID
		slot.ReservationID = &rid
	}
	cp := *res
	m.db.reservations[res.ID] = &cp
	return nil
}

func (m *memReservations) GetByID(_ context.Context, id uuid.UUID) (*model.Reservation, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	res, ok := m.db.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, repository.ErrNotFound)
	}
	cp := *res
	return &cp, nil
}

func (m *memReservations) SetStatus(_ context.Context, id uuid.UUID, from, to model.ReservationStatus) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	res, ok := m.db.reservations[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = time.Now()
	return true, nil
}

func (m *memReservations) ListExpired(_ context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.Reservation
	for _, res := range m.db.reservations {
		if res.Status == model.ReservationStatusActive && !now.Before(res.ExpiresAt) {
			cp := *res
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memReservations) ListExpiring(_ context.Context, now time.Time, window time.Duration) ([]*model.Reservation, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.Reservation
	for _, res := range m.db.reservations {
		if res.Status == model.ReservationStatusActive && res.WarnedAt == nil &&
			res.ExpiresAt.After(now) && !res.ExpiresAt.After(now.Add(window)) {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memReservations) MarkWarned(_ context.Context, id uuid.UUID, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if res, ok := m.db.reservations[id]; ok && res.WarnedAt == nil {
		res.WarnedAt = &at
	}
	return nil
}

func (m *memReservations) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var deleted int64
	for id, res := range m.db.reservations {
		terminal := res.Status == model.ReservationStatusExpired || res.Status == model.ReservationStatusCancelled
		if terminal && res.UpdatedAt.Before(cutoff) {
			delete(m.db.reservations, id)
			deleted++
		}
	}
	return deleted, nil
}

type memBookings struct{ db *memDB }

func (m *memBookings) ConvertReservation(_ context.Context, res *model.Reservation, booking *model.Booking) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	stored, ok := m.db.reservations[res.ID]
	if !ok || stored.Status != model.ReservationStatusActive {
		return fmt.Errorf("reservation %s: %w", res.ID, repository.ErrStaleStatus)
	}
	var booked int
	for _, s := range m.db.slots {
		if s.ReservationID != nil && *s.ReservationID == res.ID && s.Status == model.SlotStatusHeld {
			s.Status = model.SlotStatusBooked
			bid := booking.ID
			s.BookingID = &bid
			booked++
		}
	}
	if booked == 0 {
		return fmt.Errorf("reservation %s: %w", res.ID, repository.ErrSlotConflict)
	}
	stored.Status = model.ReservationStatusConfirmed
	stored.UpdatedAt = time.Now()
	cp := *booking
	m.db.bookings[booking.ID] = &cp
	return nil
}

func (m *memBookings) GetByID(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) SetStatus(_ context.Context, id uuid.UUID, to model.BookingStatus, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, repository.ErrNotFound)
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}

func (m *memBookings) ConfirmByOrder(_ context.Context, orderID uuid.UUID, at time.Time) ([]*model.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	order, ok := m.db.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, repository.ErrNotFound)
	}
	var out []*model.Booking
	for _, id := range order.BookingIDs {
		b, ok := m.db.bookings[id]
		if !ok || (b.Status != model.BookingStatusPending && b.Status != model.BookingStatusConfirmed) {
			continue
		}
		b.Status = model.BookingStatusConfirmed
		if b.ConfirmedAt == nil {
			confirmedAt := at
			b.ConfirmedAt = &confirmedAt
		}
		b.UpdatedAt = at
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

type memCarts struct{ db *memDB }

func (m *memCarts) GetOrCreateByUser(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, c := range m.db.carts {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	cart := &model.Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	m.db.carts[cart.ID] = cart
	cp := *cart
	return &cp, nil
}

func (m *memCarts) AddItem(_ context.Context, item *model.CartItem) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *item
	m.db.items[item.ID] = &cp
	return nil
}

func (m *memCarts) GetItem(_ context.Context, id uuid.UUID) (*model.CartItem, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	item, ok := m.db.items[id]
	if !ok {
		return nil, fmt.Errorf("cart item %s: %w", id, repository.ErrNotFound)
	}
	cp := *item
	return &cp, nil
}

func (m *memCarts) ItemsByCart(_ context.Context, cartID uuid.UUID) ([]*model.CartItem, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.CartItem
	for _, item := range m.db.items {
		if item.CartID == cartID {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *memCarts) DeleteItem(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.items, id)
	return nil
}

func (m *memCarts) DeleteItemsByReservation(_ context.Context, reservationID uuid.UUID) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var deleted int64
	for id, item := range m.db.items {
		if item.ReservationID == reservationID {
			delete(m.db.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memCarts) UpdateTotals(_ context.Context, cart *model.Cart) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	stored, ok := m.db.carts[cart.ID]
	if !ok {
		return fmt.Errorf("cart %s: %w", cart.ID, repository.ErrNotFound)
	}
	stored.Subtotal = cart.Subtotal
	stored.DiscountTotal = cart.DiscountTotal
	stored.TaxTotal = cart.TaxTotal
	stored.Total = cart.Total
	stored.ItemCount = cart.ItemCount
	stored.UpdatedAt = time.Now()
	return nil
}

type memWallets struct{ db *memDB }

func (m *memWallets) GetByOwner(_ context.Context, owner model.Owner) (*model.Wallet, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, w := range m.db.wallets {
		if w.Owner == owner {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("wallet of %s %s: %w", owner.Kind, owner.ID, repository.ErrNotFound)
}

func (m *memWallets) GetByID(_ context.Context, id uuid.UUID) (*model.Wallet, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", id, repository.ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) Create(_ context.Context, w *model.Wallet) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.wallets {
		if existing.Owner == w.Owner {
			return fmt.Errorf("wallet of %s %s: %w", w.Owner.Kind, w.Owner.ID, repository.ErrDuplicateReference)
		}
	}
	cp := *w
	m.db.wallets[w.ID] = &cp
	return nil
}

func (m *memWallets) FindTransaction(_ context.Context, reference string) (*model.Transaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	tx, ok := m.db.txByRef[reference]
	if !ok {
		return nil, fmt.Errorf("transaction %q: %w", reference, repository.ErrNotFound)
	}
	cp := *tx
	return &cp, nil
}

func (m *memWallets) Apply(_ context.Context, entry *model.Transaction) (*model.Transaction, bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	wallet, ok := m.db.wallets[entry.WalletID]
	if !ok {
		return nil, false, fmt.Errorf("wallet %s: %w", entry.WalletID, repository.ErrNotFound)
	}
	if existing, ok := m.db.txByRef[entry.Reference]; ok {
		cp := *existing
		return &cp, true, nil
	}
	if !wallet.IsActive || wallet.IsLocked {
		return nil, false, fmt.Errorf("wallet %s: %w", wallet.ID, repository.ErrWalletInactive)
	}

	entry.BalanceBefore = wallet.Balance
	switch entry.Type {
	case model.TransactionDebit:
		if wallet.Balance.LessThan(entry.Amount) {
			return nil, false, fmt.Errorf("wallet %s: %w", wallet.ID, repository.ErrInsufficientBalance)
		}
		entry.BalanceAfter = wallet.Balance.Sub(entry.Amount)
		if entry.Category == model.CategoryWithdrawal {
			wallet.TotalWithdrawn = wallet.TotalWithdrawn.Add(entry.Amount)
		}
	default:
		entry.BalanceAfter = wallet.Balance.Add(entry.Amount)
		if entry.Category == model.CategoryBookingEarning {
			wallet.TotalEarnings = wallet.TotalEarnings.Add(entry.Amount)
		}
	}
	if entry.Currency == "" {
		entry.Currency = wallet.Currency
	}
	wallet.Balance = entry.BalanceAfter
	wallet.UpdatedAt = time.Now()

	cp := *entry
	m.db.txByRef[entry.Reference] = &cp
	return entry, false, nil
}

func (m *memWallets) TransactionsByWallet(_ context.Context, walletID uuid.UUID) ([]*model.Transaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range m.db.txByRef {
		if tx.WalletID == walletID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memWithdrawals struct{ db *memDB }

func (m *memWithdrawals) Create(_ context.Context, w *model.WithdrawalRequest) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *w
	m.db.withdrawals[w.ID] = &cp
	return nil
}

func (m *memWithdrawals) GetByID(_ context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, repository.ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (m *memWithdrawals) GetByReference(_ context.Context, reference string) (*model.WithdrawalRequest, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, w := range m.db.withdrawals {
		if w.Reference == reference {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("withdrawal %q: %w", reference, repository.ErrNotFound)
}

func (m *memWithdrawals) SetStatus(_ context.Context, id uuid.UUID, from []model.WithdrawalStatus, to model.WithdrawalStatus, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.withdrawals[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range from {
		if w.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	w.Status = to
	switch to {
	case model.WithdrawalStatusApproved:
		w.ApprovedAt = &at
	case model.WithdrawalStatusProcessing:
		w.ProcessedAt = &at
	case model.WithdrawalStatusCompleted:
		w.CompletedAt = &at
	case model.WithdrawalStatusFailed:
		w.FailedAt = &at
	}
	w.UpdatedAt = at
	return true, nil
}

func (m *memWithdrawals) SetGatewayRef(_ context.Context, id uuid.UUID, gatewayRef string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal %s: %w", id, repository.ErrNotFound)
	}
	w.GatewayRef = &gatewayRef
	return nil
}

func (m *memWithdrawals) IncrementRetry(_ context.Context, id uuid.UUID) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.withdrawals[id]
	if !ok {
		return 0, fmt.Errorf("withdrawal %s: %w", id, repository.ErrNotFound)
	}
	w.RetryCount++
	return w.RetryCount, nil
}

func (m *memWithdrawals) SetFailureReason(_ context.Context, id uuid.UUID, reason string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if w, ok := m.db.withdrawals[id]; ok {
		w.FailureReason = &reason
	}
	return nil
}

func (m *memWithdrawals) GetBankAccount(_ context.Context, id uuid.UUID) (*model.BankAccount, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.banks[id]
	if !ok {
		return nil, fmt.Errorf("bank account %s: %w", id, repository.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memWithdrawals) SetRecipientRef(_ context.Context, bankAccountID uuid.UUID, recipientRef string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.banks[bankAccountID]
	if !ok {
		return fmt.Errorf("bank account %s: %w", bankAccountID, repository.ErrNotFound)
	}
	b.RecipientRef = &recipientRef
	return nil
}

type memPayments struct{ db *memDB }

func (m *memPayments) CreateOrder(_ context.Context, o *model.Order) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *o
	m.db.orders[o.ID] = &cp
	return nil
}

func (m *memPayments) GetOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, repository.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memPayments) MarkOrderPaid(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[id]
	if !ok || o.Status != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusPaid
	paidAt := at
	o.PaidAt = &paidAt
	o.UpdatedAt = at
	return true, nil
}

func (m *memPayments) CreatePayment(_ context.Context, p *model.Payment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *p
	m.db.payments[p.ID] = &cp
	return nil
}

func (m *memPayments) PaymentByReference(_ context.Context, reference string) (*model.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.payments {
		if p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment %q: %w", reference, repository.ErrNotFound)
}

func (m *memPayments) CompletePayment(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusCompleted
	completedAt := at
	p.CompletedAt = &completedAt
	return true, nil
}

func (m *memPayments) FailPayment(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if p, ok := m.db.payments[id]; ok && p.Status == model.PaymentStatusPending {
		p.Status = model.PaymentStatusFailed
	}
	return nil
}

func (m *memPayments) CreateDeposit(_ context.Context, d *model.Deposit) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *d
	m.db.deposits[d.ID] = &cp
	return nil
}

func (m *memPayments) DepositByReference(_ context.Context, reference string) (*model.Deposit, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, d := range m.db.deposits {
		if d.Reference == reference {
			cp := *d
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("deposit %q: %w", reference, repository.ErrNotFound)
}

func (m *memPayments) CompleteDeposit(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.deposits[id]
	if !ok || d.Status != model.DepositStatusPending {
		return false, nil
	}
	d.Status = model.DepositStatusCompleted
	completedAt := at
	d.CompletedAt = &completedAt
	return true, nil
}

func (m *memPayments) FailDeposit(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if d, ok := m.db.deposits[id]; ok && d.Status == model.DepositStatusPending {
		d.Status = model.DepositStatusFailed
	}
	return nil
}

// fakeGateway управляемый шлюз для тестов. transientLeft задаёт число
// первых вызовов InitiateTransfer, падающих транзиентно.
type fakeGateway struct {
	mu             sync.Mutex
	chargeStatuses map[string]*gateway.ChargeStatus
	transientLeft  int
	rejectTransfer bool
	recipientCalls int
	transferCalls  int
	verifyCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{chargeStatuses: make(map[string]*gateway.ChargeStatus)}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) InitializeCharge(_ context.Context, _ string, amount decimal.Decimal, reference string) (*gateway.ChargeInit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeStatuses[reference] = &gateway.ChargeStatus{
		Status:    "pending",
		Amount:    amount,
		Reference: reference,
	}
	return &gateway.ChargeInit{
		RedirectURL: "https://checkout.example/" + reference,
		AccessCode:  "ac_" + reference,
		Reference:   reference,
	}, nil
}

func (g *fakeGateway) VerifyCharge(_ context.Context, reference string) (*gateway.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	status, ok := g.chargeStatuses[reference]
	if !ok {
		return nil, fmt.Errorf("unknown reference %q: %w", reference, gateway.ErrRejected)
	}
	cp := *status
	return &cp, nil
}

func (g *fakeGateway) CreatePayoutRecipient(_ context.Context, _ gateway.BankDetails) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recipientCalls++
	return fmt.Sprintf("RCP_%d", g.recipientCalls), nil
}

func (g *fakeGateway) InitiateTransfer(_ context.Context, _ string, _ decimal.Decimal, reference, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transferCalls++
	if g.transientLeft > 0 {
		g.transientLeft--
		return "", fmt.Errorf("gateway unreachable: %w", gateway.ErrTransient)
	}
	if g.rejectTransfer {
		return "", fmt.Errorf("recipient blacklisted: %w", gateway.ErrRejected)
	}
	return "TRF_" + reference, nil
}

// setCharge выставляет статус, который шлюз вернёт при верификации
func (g *fakeGateway) setCharge(reference, status string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeStatuses[reference] = &gateway.ChargeStatus{
		Status:    status,
		Amount:    amount,
		Reference: reference,
	}
}

// testSpace ресурс с часами 09:00-18:00 на все дни недели
func testSpace() *model.Space {
	hours := model.OperatingHours{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours[d] = model.DayHours{Open: "09:00", Close: "18:00"}
	}
	return &model.Space{
		ID:           uuid.New(),
		WorkspaceID:  uuid.New(),
		Name:         "Meeting Room A",
		Capacity:     8,
		PricePerHour: decimal.NewFromInt(1000),
		DailyRate:    decimal.NewFromInt(7000),
		MonthlyRate:  decimal.NewFromInt(150000),
		OperatingHours: hours,
		IsAvailable:  true,
	}
}
