package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/metrics"
	"github.com/Freeeeeet/bookspace/internal/model"
)

// CartService корзина и checkout. Позиция корзины всегда привязана к
// активному холду; checkout конвертирует холды в бронирования поштучно
type CartService struct {
	carts        CartStore
	spaces       SpaceStore
	bookings     BookingStore
	payments     PaymentStore
	reservations *ReservationService
	events       eventbus.Publisher
	logger       *zap.Logger
	now          func() time.Time
}

func NewCartService(
	carts CartStore,
	spaces SpaceStore,
	bookings BookingStore,
	payments PaymentStore,
	reservations *ReservationService,
	events eventbus.Publisher,
	logger *zap.Logger,
) *CartService {
	return &CartService{
		carts:        carts,
		spaces:       spaces,
		bookings:     bookings,
		payments:     payments,
		reservations: reservations,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

// SkippedItem позиция, не прошедшая checkout, с причиной
type SkippedItem struct {
	ItemID        uuid.UUID
	ReservationID uuid.UUID
	Reason        error
}

// CheckoutResult итог checkout: заказ по успешным позициям плюс
// пропущенные позиции
type CheckoutResult struct {
	Order    *model.Order
	Bookings []*model.Booking
	Skipped  []SkippedItem
}

// Get возвращает корзину пользователя с позициями, лениво просрочивая
// позиции с истёкшими холдами
func (s *CartService) Get(ctx context.Context, userID uuid.UUID) (*model.Cart, []*model.CartItem, error) {
	cart, err := s.carts.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := s.carts.ItemsByCart(ctx, cart.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list cart items: %w", err)
	}

	kept := items[:0]
	pruned := false
	for _, item := range items {
		res, err := s.reservations.Get(ctx, item.ReservationID)
		if err == nil && res.Status == model.ReservationStatusActive {
			kept = append(kept, item)
			continue
		}
		if err := s.carts.DeleteItem(ctx, item.ID); err != nil {
			return nil, nil, fmt.Errorf("prune cart item: %w", err)
		}
		pruned = true
	}

	if pruned {
		if err := s.refreshTotals(ctx, cart, kept); err != nil {
			return nil, nil, err
		}
	}

	return cart, kept, nil
}

// AddItem удерживает окно и кладёт позицию в корзину одним вызовом.
// Цена фиксируется в момент добавления.
func (s *CartService) AddItem(ctx context.Context, userID, spaceID uuid.UUID, bt model.BookingType, start, end time.Time) (*model.CartItem, error) {
	space, err := s.spaces.GetByID(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}

	reservation, err := s.reservations.Hold(ctx, userID, spaceID, bt, start, end)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	item := &model.CartItem{
		ID:            uuid.New(),
		CartID:        cart.ID,
		SpaceID:       spaceID,
		ReservationID: reservation.ID,
		BookingType:   bt,
		CheckIn:       start,
		CheckOut:      end,
		Price:         windowPrice(space, bt, start, end),
		Discount:      decimal.Zero,
		Tax:           decimal.Zero,
		AddedAt:       s.now(),
	}

	if err := s.carts.AddItem(ctx, item); err != nil {
		// холд уже взят, позицию записать не смогли: возвращаем слоты
		if relErr := s.reservations.Release(ctx, reservation.ID); relErr != nil {
			s.logger.Error("Failed to release orphaned reservation",
				zap.String("reservation_id", reservation.ID.String()),
				zap.Error(relErr),
			)
		}
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	items, err := s.carts.ItemsByCart(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	if err := s.refreshTotals(ctx, cart, items); err != nil {
		return nil, err
	}

	s.logger.Info("Cart item added",
		zap.String("cart_id", cart.ID.String()),
		zap.String("item_id", item.ID.String()),
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("price", item.Price.String()),
	)

	return item, nil
}

// RemoveItem удаляет позицию и снимает её холд
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil {
		return mapStoreErr(err)
	}

	if err := s.carts.DeleteItem(ctx, item.ID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if err := s.reservations.Release(ctx, item.ReservationID); err != nil {
		return err
	}

	cart, err := s.carts.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	items, err := s.carts.ItemsByCart(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("list cart items: %w", err)
	}
	return s.refreshTotals(ctx, cart, items)
}

// Clear опустошает корзину, снимая все холды
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.carts.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	items, err := s.carts.ItemsByCart(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("list cart items: %w", err)
	}

	for _, item := range items {
		if err := s.carts.DeleteItem(ctx, item.ID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		if err := s.reservations.Release(ctx, item.ReservationID); err != nil {
			return err
		}
	}

	return s.refreshTotals(ctx, cart, nil)
}

// Checkout конвертирует позиции корзины в бронирования. Атомарность
// поштучная: гонка или истёкший холд выбивают только свою позицию,
// остальные проходят. Успешные бронирования группируются в заказ.
func (s *CartService) Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, error) {
	cart, err := s.carts.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	items, err := s.carts.ItemsByCart(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidWindow)
	}

	now := s.now()
	result := &CheckoutResult{}

	for _, item := range items {
		booking, err := s.convertItem(ctx, userID, item, now)
		if err != nil {
			s.logger.Warn("Cart item skipped at checkout",
				zap.String("item_id", item.ID.String()),
				zap.String("reservation_id", item.ReservationID.String()),
				zap.Error(err),
			)
			metrics.CheckoutSkipped.Inc()
			result.Skipped = append(result.Skipped, SkippedItem{
				ItemID:        item.ID,
				ReservationID: item.ReservationID,
				Reason:        err,
			})
			// из корзины уходят только окончательно потерянные холды;
			// позиция со сбоем хранилища остаётся и пройдёт при повторе
			if errors.Is(err, ErrReservationExpired) || errors.Is(err, ErrSlotUnavailable) {
				if delErr := s.carts.DeleteItem(ctx, item.ID); delErr != nil {
					return nil, fmt.Errorf("delete cart item: %w", delErr)
				}
			}
			continue
		}
		if delErr := s.carts.DeleteItem(ctx, item.ID); delErr != nil {
			return nil, fmt.Errorf("delete cart item: %w", delErr)
		}
		result.Bookings = append(result.Bookings, booking)
	}

	if len(result.Bookings) == 0 {
		return result, fmt.Errorf("%w: no cart item survived checkout", ErrReservationExpired)
	}

	order := &model.Order{
		ID:          uuid.New(),
		OrderNumber: newOrderNumber(now),
		UserID:      userID,
		Status:      model.OrderStatusPending,
		Subtotal:    decimal.Zero,
		Discount:    decimal.Zero,
		Tax:         decimal.Zero,
		Total:       decimal.Zero,
		CreatedAt:   now,
	}
	for _, b := range result.Bookings {
		order.BookingIDs = append(order.BookingIDs, b.ID)
		order.Subtotal = order.Subtotal.Add(b.BasePrice)
		order.Discount = order.Discount.Add(b.Discount)
		order.Tax = order.Tax.Add(b.Tax)
		order.Total = order.Total.Add(b.TotalPrice)
	}
	if err := s.payments.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	result.Order = order

	for _, b := range result.Bookings {
		s.events.Publish(eventbus.NewEvent(eventbus.BookingCreated, "cart", map[string]any{
			"booking_id": b.ID.String(),
			"order_id":   order.ID.String(),
			"user_id":    userID.String(),
			"space_id":   b.SpaceID.String(),
			"total":      b.TotalPrice.String(),
		}))
	}

	remaining, err := s.carts.ItemsByCart(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	if err := s.refreshTotals(ctx, cart, remaining); err != nil {
		return nil, err
	}

	s.logger.Info("Checkout finished",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("bookings", len(result.Bookings)),
		zap.Int("skipped", len(result.Skipped)),
		zap.String("total", order.Total.String()),
	)

	return result, nil
}

// convertItem конвертирует один холд в бронирование. Хранилище делает
// это одной транзакцией, так что проигрыш гонки не оставляет следов.
func (s *CartService) convertItem(ctx context.Context, userID uuid.UUID, item *model.CartItem, now time.Time) (*model.Booking, error) {
	reservation, err := s.reservations.Get(ctx, item.ReservationID)
	if err != nil {
		return nil, err
	}
	if reservation.Status != model.ReservationStatusActive {
		return nil, fmt.Errorf("%w: reservation is %s", ErrReservationExpired, reservation.Status)
	}

	space, err := s.spaces.GetByID(ctx, item.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}

	booking := &model.Booking{
		ID:          uuid.New(),
		WorkspaceID: space.WorkspaceID,
		SpaceID:     item.SpaceID,
		UserID:      userID,
		BookingType: item.BookingType,
		CheckIn:     item.CheckIn,
		CheckOut:    item.CheckOut,
		BasePrice:   item.Price,
		Discount:    item.Discount,
		Tax:         item.Tax,
		TotalPrice:  item.Price.Sub(item.Discount).Add(item.Tax),
		Status:      model.BookingStatusPending,
		CreatedAt:   now,
	}

	if err := s.bookings.ConvertReservation(ctx, reservation, booking); err != nil {
		return nil, mapStoreErr(err)
	}

	return booking, nil
}

func (s *CartService) refreshTotals(ctx context.Context, cart *model.Cart, items []*model.CartItem) error {
	cart.Subtotal = decimal.Zero
	cart.DiscountTotal = decimal.Zero
	cart.TaxTotal = decimal.Zero
	cart.Total = decimal.Zero
	cart.ItemCount = len(items)
	for _, item := range items {
		cart.Subtotal = cart.Subtotal.Add(item.Price)
		cart.DiscountTotal = cart.DiscountTotal.Add(item.Discount)
		cart.TaxTotal = cart.TaxTotal.Add(item.Tax)
		cart.Total = cart.Total.Add(item.Price.Sub(item.Discount).Add(item.Tax))
	}
	if err := s.carts.UpdateTotals(ctx, cart); err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}
	return nil
}

// windowPrice считает цену окна по ставке ресурса
func windowPrice(space *model.Space, bt model.BookingType, start, end time.Time) decimal.Decimal {
	rate := space.Rate(bt)
	switch bt {
	case model.BookingTypeHourly:
		hours := decimal.NewFromFloat(end.Sub(start).Hours())
		return rate.Mul(hours)
	case model.BookingTypeDaily:
		days := int(end.Sub(start).Hours()/24) + 1
		if end.Sub(start).Hours() < 24 {
			days = 1
		}
		return rate.Mul(decimal.NewFromInt(int64(days)))
	case model.BookingTypeMonthly:
		months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
		if months < 1 {
			months = 1
		}
		return rate.Mul(decimal.NewFromInt(int64(months)))
	default:
		return rate
	}
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

