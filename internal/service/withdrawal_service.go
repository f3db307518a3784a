package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/gateway"
	"github.com/Freeeeeet/bookspace/internal/model"
)

var (
	withdrawalFeeRate = decimal.NewFromFloat(0.02)
	withdrawalFeeMin  = decimal.NewFromInt(100)
)

// WithdrawalFee комиссия за вывод: процент от суммы, но не меньше минимума
func WithdrawalFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(withdrawalFeeRate)
	if fee.LessThan(withdrawalFeeMin) {
		return withdrawalFeeMin
	}
	return fee
}

// WithdrawalService заявки на вывод средств. Кошелёк списывается один
// раз и только при подтверждении выплаты шлюзом; до этого средства лишь
// проверяются на достаточность.
type WithdrawalService struct {
	withdrawals WithdrawalStore
	wallets     *WalletService
	gw          gateway.Gateway
	retry       RetryPolicy
	approveOver decimal.Decimal
	events      eventbus.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewWithdrawalService создаёт сервис выводов. Заявки на сумму свыше
// approveOver требуют ручного Approve, остальные одобряются сразу.
func NewWithdrawalService(
	withdrawals WithdrawalStore,
	wallets *WalletService,
	gw gateway.Gateway,
	retry RetryPolicy,
	approveOver decimal.Decimal,
	events eventbus.Publisher,
	logger *zap.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		withdrawals: withdrawals,
		wallets:     wallets,
		gw:          gw,
		retry:       retry,
		approveOver: approveOver,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// Request создаёт заявку на вывод. Баланс проверяется на момент заявки,
// но не резервируется.
func (s *WithdrawalService) Request(ctx context.Context, requestedBy, walletID, bankAccountID uuid.UUID, amount decimal.Decimal) (*model.WithdrawalRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	wallet, err := s.wallets.Balance(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive || wallet.IsLocked {
		return nil, fmt.Errorf("%w: wallet %s", ErrWalletLocked, walletID)
	}
	if !wallet.CanDebit(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, wallet.Balance, amount)
	}

	bank, err := s.withdrawals.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !bank.IsVerified || !bank.IsActive {
		return nil, fmt.Errorf("%w: bank account is not usable for payouts", ErrGatewayRejected)
	}

	fee := WithdrawalFee(amount)
	if amount.LessThanOrEqual(fee) {
		return nil, fmt.Errorf("%w: amount does not cover the fee %s", ErrInvalidAmount, fee)
	}

	now := s.now()
	w := &model.WithdrawalRequest{
		ID:            uuid.New(),
		WalletID:      walletID,
		BankAccountID: bankAccountID,
		RequestedBy:   requestedBy,
		Amount:        amount,
		Fee:           fee,
		NetAmount:     amount.Sub(fee),
		Currency:      wallet.Currency,
		Status:        model.WithdrawalStatusPending,
		Reference:     fmt.Sprintf("WTH-%s", uuid.NewString()),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if amount.LessThanOrEqual(s.approveOver) {
		w.Status = model.WithdrawalStatusApproved
		w.ApprovedAt = &now
	}
	if err := s.withdrawals.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}

	s.logger.Info("Withdrawal requested",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("wallet_id", walletID.String()),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()),
		zap.String("status", string(w.Status)),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.WithdrawalRequested, "withdrawal", map[string]any{
		"withdrawal_id": w.ID.String(),
		"wallet_id":     walletID.String(),
		"amount":        amount.String(),
		"net_amount":    w.NetAmount.String(),
	}))

	return w, nil
}

// Approve административное одобрение заявки
func (s *WithdrawalService) Approve(ctx context.Context, id uuid.UUID) error {
	moved, err := s.withdrawals.SetStatus(ctx, id,
		[]model.WithdrawalStatus{model.WithdrawalStatusPending},
		model.WithdrawalStatusApproved, s.now())
	if err != nil {
		return mapStoreErr(err)
	}
	if !moved {
		return fmt.Errorf("%w: withdrawal is not pending", ErrNotFound)
	}
	s.logger.Info("Withdrawal approved", zap.String("withdrawal_id", id.String()))
	return nil
}

// Cancel отменяет неисполненную заявку
func (s *WithdrawalService) Cancel(ctx context.Context, id uuid.UUID) error {
	moved, err := s.withdrawals.SetStatus(ctx, id,
		[]model.WithdrawalStatus{model.WithdrawalStatusPending, model.WithdrawalStatusApproved},
		model.WithdrawalStatusCancelled, s.now())
	if err != nil {
		return mapStoreErr(err)
	}
	if !moved {
		return fmt.Errorf("%w: withdrawal cannot be cancelled", ErrNotFound)
	}
	s.logger.Info("Withdrawal cancelled", zap.String("withdrawal_id", id.String()))
	return nil
}

// Process отправляет одобренную заявку в платёжный шлюз. Транзиентные
// ошибки шлюза ретраятся с экспоненциальной задержкой; после исчерпания
// попыток заявка помечается failed, кошелёк не тронут.
func (s *WithdrawalService) Process(ctx context.Context, id uuid.UUID) error {
	moved, err := s.withdrawals.SetStatus(ctx, id,
		[]model.WithdrawalStatus{model.WithdrawalStatusApproved},
		model.WithdrawalStatusProcessing, s.now())
	if err != nil {
		return mapStoreErr(err)
	}
	if !moved {
		return fmt.Errorf("%w: withdrawal is not approved", ErrNotFound)
	}

	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}

	bank, err := s.withdrawals.GetBankAccount(ctx, w.BankAccountID)
	if err != nil {
		return mapStoreErr(err)
	}

	recipientRef, err := s.ensureRecipient(ctx, bank)
	if err != nil {
		return s.fail(ctx, w, fmt.Errorf("create payout recipient: %w", err))
	}

	var gatewayRef string
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		ref, transferErr := s.gw.InitiateTransfer(ctx, recipientRef, w.NetAmount, w.Reference, "Wallet withdrawal")
		if transferErr != nil {
			if n, incErr := s.withdrawals.IncrementRetry(ctx, w.ID); incErr == nil {
				s.logger.Warn("Transfer attempt failed",
					zap.String("withdrawal_id", w.ID.String()),
					zap.Int("attempt", n),
					zap.Error(transferErr),
				)
			}
			return transferErr
		}
		gatewayRef = ref
		return nil
	})
	if err != nil {
		return s.fail(ctx, w, fmt.Errorf("initiate transfer: %w", err))
	}

	if err := s.withdrawals.SetGatewayRef(ctx, w.ID, gatewayRef); err != nil {
		return fmt.Errorf("store gateway ref: %w", err)
	}

	s.logger.Info("Withdrawal sent to gateway",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("gateway_ref", gatewayRef),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.WithdrawalProcessing, "withdrawal", map[string]any{
		"withdrawal_id": w.ID.String(),
		"gateway_ref":   gatewayRef,
	}))

	return nil
}

// Complete финализирует заявку после подтверждения шлюза. Именно здесь,
// и только здесь, кошелёк списывается. Идемпотентен: списание не
// применяется повторно благодаря reference заявки.
func (s *WithdrawalService) Complete(ctx context.Context, id uuid.UUID) error {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	switch w.Status {
	case model.WithdrawalStatusProcessing, model.WithdrawalStatusCompleted:
	default:
		s.logger.Info("Withdrawal is not awaiting confirmation, skipping",
			zap.String("withdrawal_id", id.String()),
			zap.String("status", string(w.Status)))
		return nil
	}

	// Сначала списание, потом переход статуса. Если списание не прошло,
	// заявка остаётся processing и подтверждение можно повторить.
	if _, err := s.wallets.Debit(ctx, w.WalletID, w.Amount, model.CategoryWithdrawal,
		w.Reference, "Withdrawal to bank account", LedgerLink{WithdrawalID: &w.ID}); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}

	moved, err := s.withdrawals.SetStatus(ctx, id,
		[]model.WithdrawalStatus{model.WithdrawalStatusProcessing},
		model.WithdrawalStatusCompleted, s.now())
	if err != nil {
		return mapStoreErr(err)
	}
	if !moved {
		s.logger.Info("Withdrawal already finalized, skipping",
			zap.String("withdrawal_id", id.String()))
		return nil
	}

	s.logger.Info("Withdrawal completed",
		zap.String("withdrawal_id", id.String()),
		zap.String("amount", w.Amount.String()),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.WithdrawalCompleted, "withdrawal", map[string]any{
		"withdrawal_id": w.ID.String(),
		"wallet_id":     w.WalletID.String(),
		"amount":        w.Amount.String(),
	}))

	return nil
}

// Fail помечает заявку неуспешной после отказа шлюза. Кошелёк не тронут,
// компенсация не нужна.
func (s *WithdrawalService) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	return s.fail(ctx, w, fmt.Errorf("%s", reason))
}

func (s *WithdrawalService) fail(ctx context.Context, w *model.WithdrawalRequest, cause error) error {
	moved, err := s.withdrawals.SetStatus(ctx, w.ID,
		[]model.WithdrawalStatus{model.WithdrawalStatusProcessing, model.WithdrawalStatusApproved},
		model.WithdrawalStatusFailed, s.now())
	if err != nil {
		return mapStoreErr(err)
	}
	if !moved {
		return nil
	}
	if err := s.withdrawals.SetFailureReason(ctx, w.ID, cause.Error()); err != nil {
		return fmt.Errorf("store failure reason: %w", err)
	}

	s.logger.Error("Withdrawal failed",
		zap.String("withdrawal_id", w.ID.String()),
		zap.Error(cause),
	)

	s.events.Publish(eventbus.NewEvent(eventbus.WithdrawalFailed, "withdrawal", map[string]any{
		"withdrawal_id": w.ID.String(),
		"wallet_id":     w.WalletID.String(),
		"reason":        cause.Error(),
	}))

	return cause
}

// ensureRecipient возвращает код получателя на стороне шлюза, создавая
// и кэшируя его при первом выводе на этот счёт
func (s *WithdrawalService) ensureRecipient(ctx context.Context, bank *model.BankAccount) (string, error) {
	if bank.RecipientRef != nil && *bank.RecipientRef != "" {
		return *bank.RecipientRef, nil
	}

	var ref string
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		created, err := s.gw.CreatePayoutRecipient(ctx, gateway.BankDetails{
			AccountNumber: bank.AccountNumber,
			AccountName:   bank.AccountName,
			BankCode:      bank.BankCode,
		})
		if err != nil {
			return err
		}
		ref = created
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := s.withdrawals.SetRecipientRef(ctx, bank.ID, ref); err != nil {
		return "", fmt.Errorf("cache recipient ref: %w", err)
	}
	return ref, nil
}
