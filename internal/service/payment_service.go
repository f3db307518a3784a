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
	"github.com/Freeeeeet/bookspace/internal/gateway"
	"github.com/Freeeeeet/bookspace/internal/model"
)

// PaymentService платежи по заказам и пополнения кошелька через внешний
// шлюз. Вебхук шлюза никогда не является источником истины: по каждому
// уведомлению статус перепроверяется отдельным запросом к шлюзу.
type PaymentService struct {
	payments    PaymentStore
	bookings    BookingStore
	wallets     *WalletService
	withdrawals *WithdrawalService
	wdStore     WithdrawalStore
	gw          gateway.Gateway
	retry       RetryPolicy
	events      eventbus.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewPaymentService(
	payments PaymentStore,
	bookings BookingStore,
	wallets *WalletService,
	withdrawals *WithdrawalService,
	wdStore WithdrawalStore,
	gw gateway.Gateway,
	retry RetryPolicy,
	events eventbus.Publisher,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		payments:    payments,
		bookings:    bookings,
		wallets:     wallets,
		withdrawals: withdrawals,
		wdStore:     wdStore,
		gw:          gw,
		retry:       retry,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// InitiateCharge начинает оплату заказа: создаёт pending-платёж и
// возвращает его с redirect-ссылкой шлюза
func (s *PaymentService) InitiateCharge(ctx context.Context, userID, orderID uuid.UUID, email, currency string) (*model.Payment, error) {
	order, err := s.payments.GetOrder(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if order.Status != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: order is %s", ErrGatewayRejected, order.Status)
	}

	reference := fmt.Sprintf("PAY-%s", uuid.NewString())

	var init *gateway.ChargeInit
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		res, chargeErr := s.gw.InitializeCharge(ctx, email, order.Total, reference)
		if chargeErr != nil {
			return chargeErr
		}
		init = res
		return nil
	})
	if err != nil {
		return nil, mapGatewayErr(err)
	}

	payment := &model.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		UserID:      userID,
		Amount:      order.Total,
		Currency:    currency,
		Provider:    s.gw.Name(),
		Reference:   reference,
		RedirectURL: &init.RedirectURL,
		Status:      model.PaymentStatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.logger.Info("Payment initiated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("reference", reference),
		zap.String("amount", order.Total.String()),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.PaymentInitiated, "payment", map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   order.ID.String(),
		"reference":  reference,
	}))

	return payment, nil
}

// InitiateDeposit начинает пополнение кошелька пользователя
func (s *PaymentService) InitiateDeposit(ctx context.Context, userID uuid.UUID, email, currency string, amount decimal.Decimal) (*model.Deposit, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	wallet, err := s.wallets.GetOrCreate(ctx, model.UserOwner(userID), currency)
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("DEP-%s", uuid.NewString())

	var init *gateway.ChargeInit
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		res, chargeErr := s.gw.InitializeCharge(ctx, email, amount, reference)
		if chargeErr != nil {
			return chargeErr
		}
		init = res
		return nil
	})
	if err != nil {
		return nil, mapGatewayErr(err)
	}

	deposit := &model.Deposit{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Amount:      amount,
		Currency:    wallet.Currency,
		Provider:    s.gw.Name(),
		Reference:   reference,
		RedirectURL: &init.RedirectURL,
		Status:      model.DepositStatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.payments.CreateDeposit(ctx, deposit); err != nil {
		return nil, fmt.Errorf("create deposit: %w", err)
	}

	s.logger.Info("Deposit initiated",
		zap.String("deposit_id", deposit.ID.String()),
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("reference", reference),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.DepositInitiated, "payment", map[string]any{
		"deposit_id": deposit.ID.String(),
		"wallet_id":  wallet.ID.String(),
		"reference":  reference,
	}))

	return deposit, nil
}

// ProcessChargeEvent обрабатывает вебхук об оплате. Тело вебхука уже
// верифицировано по подписи, но суммам и статусам из него не верим:
// статус перезапрашивается у шлюза, сумма сверяется с нашей записью.
func (s *PaymentService) ProcessChargeEvent(ctx context.Context, reference string) error {
	switch {
	case strings.HasPrefix(reference, "PAY-"):
		return s.settlePayment(ctx, reference)
	case strings.HasPrefix(reference, "DEP-"):
		return s.settleDeposit(ctx, reference)
	default:
		return fmt.Errorf("%w: unknown reference %q", ErrNotFound, reference)
	}
}

// ProcessTransferEvent обрабатывает вебхук о выплате. Статус как и для
// платежей определяется стоп-словом из шлюза, а не телом вебхука.
func (s *PaymentService) ProcessTransferEvent(ctx context.Context, reference string, succeeded bool) error {
	w, err := s.wdStore.GetByReference(ctx, reference)
	if err != nil {
		return mapStoreErr(err)
	}
	if succeeded {
		return s.withdrawals.Complete(ctx, w.ID)
	}
	return s.withdrawals.Fail(ctx, w.ID, "transfer failed at gateway")
}

func (s *PaymentService) settlePayment(ctx context.Context, reference string) error {
	payment, err := s.payments.PaymentByReference(ctx, reference)
	if err != nil {
		return mapStoreErr(err)
	}
	if payment.Status == model.PaymentStatusCompleted {
		// повторная доставка: сам платёж уже завершён, но подтверждение
		// заказа могло оборваться на полпути, доводим его до конца
		s.logger.Info("Payment already completed, finishing settlement",
			zap.String("reference", reference))
		_, err := s.finalizeOrder(ctx, payment.OrderID, payment.Currency, s.now())
		return err
	}

	status, err := s.verify(ctx, reference)
	if err != nil {
		return err
	}

	switch status.Status {
	case "success":
	case "failed":
		if err := s.payments.FailPayment(ctx, payment.ID); err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
		s.events.Publish(eventbus.NewEvent(eventbus.PaymentFailed, "payment", map[string]any{
			"payment_id": payment.ID.String(),
			"reference":  reference,
		}))
		return nil
	default:
		// pending на стороне шлюза, ждём следующего вебхука
		return nil
	}

	if !status.Amount.Equal(payment.Amount) {
		return fmt.Errorf("%w: gateway says %s, payment recorded %s",
			ErrAmountMismatch, status.Amount, payment.Amount)
	}

	now := s.now()
	first, err := s.payments.CompletePayment(ctx, payment.ID, now)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}

	confirmed, err := s.finalizeOrder(ctx, payment.OrderID, payment.Currency, now)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	s.logger.Info("Payment completed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", payment.OrderID.String()),
		zap.String("reference", reference),
		zap.Int("bookings_confirmed", confirmed),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.PaymentCompleted, "payment", map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   payment.OrderID.String(),
		"reference":  reference,
	}))

	return nil
}

// PayWithWallet оплачивает заказ из кошелька пользователя, минуя шлюз.
// Reference выводится из id заказа, так что повторный вызов не спишет
// деньги второй раз.
func (s *PaymentService) PayWithWallet(ctx context.Context, userID, orderID uuid.UUID, currency string) error {
	order, err := s.payments.GetOrder(ctx, orderID)
	if err != nil {
		return mapStoreErr(err)
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}

	reference := fmt.Sprintf("WPY-%s", orderID)
	switch order.Status {
	case model.OrderStatusPending:
	case model.OrderStatusPaid:
		// оплаченный заказ дотягиваем до конца только если платили именно
		// этим способом: иначе это двойная оплата
		if _, err := s.wallets.Transaction(ctx, reference); err != nil {
			return fmt.Errorf("%w: order is already paid", ErrGatewayRejected)
		}
	default:
		return fmt.Errorf("%w: order is %s", ErrGatewayRejected, order.Status)
	}

	wallet, err := s.wallets.GetOrCreate(ctx, model.UserOwner(userID), currency)
	if err != nil {
		return err
	}

	if _, err := s.wallets.Debit(ctx, wallet.ID, order.Total, model.CategoryBookingPayment,
		reference, "Order paid from wallet", LedgerLink{OrderID: &order.ID}); err != nil {
		return err
	}

	confirmed, err := s.finalizeOrder(ctx, orderID, wallet.Currency, s.now())
	if err != nil {
		return err
	}

	s.logger.Info("Order paid from wallet",
		zap.String("order_id", orderID.String()),
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("amount", order.Total.String()),
		zap.Int("bookings_confirmed", confirmed),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.PaymentCompleted, "payment", map[string]any{
		"order_id":  orderID.String(),
		"reference": reference,
		"method":    "wallet",
	}))

	return nil
}

// finalizeOrder помечает заказ оплаченным и подтверждает его
// бронирования. Безопасен к повторному вызову: переход заказа,
// подтверждение бронирований и начисления идемпотентны.
func (s *PaymentService) finalizeOrder(ctx context.Context, orderID uuid.UUID, currency string, now time.Time) (int, error) {
	if _, err := s.payments.MarkOrderPaid(ctx, orderID, now); err != nil {
		return 0, fmt.Errorf("mark order paid: %w", err)
	}
	return s.confirmOrder(ctx, orderID, currency, now)
}

// confirmOrder подтверждает бронирования оплаченного заказа и начисляет
// выручку workspace-кошелькам
func (s *PaymentService) confirmOrder(ctx context.Context, orderID uuid.UUID, currency string, now time.Time) (int, error) {
	bookings, err := s.bookings.ConfirmByOrder(ctx, orderID, now)
	if err != nil {
		return 0, fmt.Errorf("confirm bookings: %w", err)
	}

	for _, b := range bookings {
		wallet, err := s.wallets.GetOrCreate(ctx, model.WorkspaceOwner(b.WorkspaceID), currency)
		if err != nil {
			return 0, err
		}
		earnRef := fmt.Sprintf("ERN-%s", b.ID)
		if _, err := s.wallets.Credit(ctx, wallet.ID, b.TotalPrice, model.CategoryBookingEarning,
			earnRef, "Booking earning", LedgerLink{BookingID: &b.ID, OrderID: &orderID}); err != nil {
			return 0, err
		}
		s.events.Publish(eventbus.NewEvent(eventbus.BookingConfirmed, "payment", map[string]any{
			"booking_id": b.ID.String(),
			"order_id":   orderID.String(),
		}))
	}

	return len(bookings), nil
}

func (s *PaymentService) settleDeposit(ctx context.Context, reference string) error {
	deposit, err := s.payments.DepositByReference(ctx, reference)
	if err != nil {
		return mapStoreErr(err)
	}
	if deposit.Status == model.DepositStatusCompleted {
		// повторная доставка: зачисление могло не пройти после отметки о
		// завершении, дубликат по reference кошелёк не задвоит
		s.logger.Info("Deposit already completed, finishing settlement",
			zap.String("reference", reference))
		_, err := s.wallets.Credit(ctx, deposit.WalletID, deposit.Amount, model.CategoryDeposit,
			deposit.Reference, "Wallet deposit", LedgerLink{})
		return err
	}

	status, err := s.verify(ctx, reference)
	if err != nil {
		return err
	}

	switch status.Status {
	case "success":
	case "failed":
		if err := s.payments.FailDeposit(ctx, deposit.ID); err != nil {
			return fmt.Errorf("fail deposit: %w", err)
		}
		return nil
	default:
		return nil
	}

	if !status.Amount.Equal(deposit.Amount) {
		return fmt.Errorf("%w: gateway says %s, deposit recorded %s",
			ErrAmountMismatch, status.Amount, deposit.Amount)
	}

	now := s.now()
	first, err := s.payments.CompleteDeposit(ctx, deposit.ID, now)
	if err != nil {
		return fmt.Errorf("complete deposit: %w", err)
	}

	if _, err := s.wallets.Credit(ctx, deposit.WalletID, deposit.Amount, model.CategoryDeposit,
		deposit.Reference, "Wallet deposit", LedgerLink{}); err != nil {
		return err
	}
	if !first {
		return nil
	}

	s.logger.Info("Deposit completed",
		zap.String("deposit_id", deposit.ID.String()),
		zap.String("wallet_id", deposit.WalletID.String()),
		zap.String("reference", reference),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.DepositCompleted, "payment", map[string]any{
		"deposit_id": deposit.ID.String(),
		"wallet_id":  deposit.WalletID.String(),
		"reference":  reference,
	}))

	return nil
}

func (s *PaymentService) verify(ctx context.Context, reference string) (*gateway.ChargeStatus, error) {
	var status *gateway.ChargeStatus
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		res, verifyErr := s.gw.VerifyCharge(ctx, reference)
		if verifyErr != nil {
			return verifyErr
		}
		status = res
		return nil
	})
	if err != nil {
		return nil, mapGatewayErr(err)
	}
	return status, nil
}

// mapGatewayErr переводит сентинели шлюза в сервисную таксономию
func mapGatewayErr(err error) error {
	switch {
	case errors.Is(err, gateway.ErrTransient):
		return fmt.Errorf("%w: %v", ErrGatewayTransient, err)
	case errors.Is(err, gateway.ErrRejected):
		return fmt.Errorf("%w: %v", ErrGatewayRejected, err)
	default:
		return err
	}
}
