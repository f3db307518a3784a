package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/model"
	"github.com/Freeeeeet/bookspace/internal/repository"
)

// WalletService леджер кошельков. Каждая мутация баланса проходит через
// Apply с уникальным reference и применяется ровно один раз.
type WalletService struct {
	wallets WalletStore
	events  eventbus.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

func NewWalletService(wallets WalletStore, events eventbus.Publisher, logger *zap.Logger) *WalletService {
	return &WalletService{
		wallets: wallets,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// GetOrCreate возвращает кошелёк владельца, создавая при первом обращении
func (s *WalletService) GetOrCreate(ctx context.Context, owner model.Owner, currency string) (*model.Wallet, error) {
	wallet, err := s.wallets.GetByOwner(ctx, owner)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	now := s.now()
	wallet = &model.Wallet{
		ID:             uuid.New(),
		Owner:          owner,
		Balance:        decimal.Zero,
		Currency:       currency,
		IsActive:       true,
		TotalEarnings:  decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.wallets.Create(ctx, wallet); err != nil {
		// гонка на первом обращении: кошелёк уже создан параллельно
		if errors.Is(err, repository.ErrDuplicateReference) {
			return s.wallets.GetByOwner(ctx, owner)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	s.logger.Info("Wallet created",
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("owner_kind", string(owner.Kind)),
		zap.String("owner_id", owner.ID.String()),
	)
	return wallet, nil
}

// Credit зачисляет средства. Повторный вызов с тем же reference
// возвращает уже применённую транзакцию, баланс не меняется.
func (s *WalletService) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, category model.TransactionCategory, reference, description string, link LedgerLink) (*model.Transaction, error) {
	return s.apply(ctx, walletID, model.TransactionCredit, amount, category, reference, description, link)
}

// Debit списывает средства. При нехватке баланса ErrInsufficientBalance,
// при выключенном или заблокированном кошельке ErrWalletLocked.
func (s *WalletService) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, category model.TransactionCategory, reference, description string, link LedgerLink) (*model.Transaction, error) {
	return s.apply(ctx, walletID, model.TransactionDebit, amount, category, reference, description, link)
}

// Reverse компенсирует применённую транзакцию обратной записью.
// Идемпотентен: reference реверса выводится из reference оригинала.
func (s *WalletService) Reverse(ctx context.Context, reference, description string) (*model.Transaction, error) {
	original, err := s.wallets.FindTransaction(ctx, reference)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	opposite := model.TransactionCredit
	if original.Type == model.TransactionCredit {
		opposite = model.TransactionDebit
	}

	link := LedgerLink{
		BookingID:    original.BookingID,
		OrderID:      original.OrderID,
		WithdrawalID: original.WithdrawalID,
	}
	return s.apply(ctx, original.WalletID, opposite, original.Amount, original.Category, reference+":reversal", description, link)
}

// Transaction возвращает применённую транзакцию по reference
func (s *WalletService) Transaction(ctx context.Context, reference string) (*model.Transaction, error) {
	tx, err := s.wallets.FindTransaction(ctx, reference)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return tx, nil
}

// Balance возвращает кошелёк по id
func (s *WalletService) Balance(ctx context.Context, walletID uuid.UUID) (*model.Wallet, error) {
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return wallet, nil
}

// History возвращает транзакции кошелька от новых к старым
func (s *WalletService) History(ctx context.Context, walletID uuid.UUID) ([]*model.Transaction, error) {
	txs, err := s.wallets.TransactionsByWallet(ctx, walletID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return txs, nil
}

// LedgerLink связи транзакции с доменными сущностями
type LedgerLink struct {
	BookingID    *uuid.UUID
	OrderID      *uuid.UUID
	WithdrawalID *uuid.UUID
}

func (s *WalletService) apply(ctx context.Context, walletID uuid.UUID, txType model.TransactionType, amount decimal.Decimal, category model.TransactionCategory, reference, description string, link LedgerLink) (*model.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	now := s.now()
	tx := &model.Transaction{
		ID:           uuid.New(),
		Reference:    reference,
		Type:         txType,
		Category:     category,
		Amount:       amount,
		WalletID:     walletID,
		Status:       model.TransactionStatusCompleted,
		Description:  description,
		BookingID:    link.BookingID,
		OrderID:      link.OrderID,
		WithdrawalID: link.WithdrawalID,
		ProcessedAt:  &now,
		CreatedAt:    now,
	}

	applied, existing, err := s.wallets.Apply(ctx, tx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if existing {
		s.logger.Info("Ledger reference already applied, skipping",
			zap.String("reference", reference),
			zap.String("wallet_id", walletID.String()),
		)
		return applied, nil
	}

	s.logger.Info("Ledger entry applied",
		zap.String("reference", reference),
		zap.String("wallet_id", walletID.String()),
		zap.String("type", string(txType)),
		zap.String("category", string(category)),
		zap.String("amount", amount.String()),
		zap.String("balance_after", applied.BalanceAfter.String()),
	)

	topic := eventbus.WalletCredited
	if txType == model.TransactionDebit {
		topic = eventbus.WalletDebited
	}
	s.events.Publish(eventbus.NewEvent(topic, "wallet", map[string]any{
		"wallet_id": walletID.String(),
		"reference": reference,
		"amount":    amount.String(),
		"category":  string(category),
	}))

	return applied, nil
}
