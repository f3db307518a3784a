package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

type TransactionCategory string

const (
	CategoryDeposit        TransactionCategory = "deposit"
	CategoryWithdrawal     TransactionCategory = "withdrawal"
	CategoryRefund         TransactionCategory = "refund"
	CategoryBookingPayment TransactionCategory = "booking_payment"
	CategoryBookingEarning TransactionCategory = "booking_earning"
	CategoryFee            TransactionCategory = "fee"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusReversed   TransactionStatus = "reversed"
)

// Transaction append-only запись леджера. Reference глобально уникален -
// это ключ идемпотентности мутации баланса.
type Transaction struct {
	ID            uuid.UUID           `json:"id"`
	Reference     string              `json:"reference"`
	Type          TransactionType     `json:"transaction_type"`
	Category      TransactionCategory `json:"category"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	WalletID      uuid.UUID           `json:"wallet_id"`
	BalanceBefore decimal.Decimal     `json:"balance_before"`
	BalanceAfter  decimal.Decimal     `json:"balance_after"`
	Status        TransactionStatus   `json:"status"`
	Description   string              `json:"description"`

	// Связанные сущности
	BookingID    *uuid.UUID `json:"booking_id"`
	OrderID      *uuid.UUID `json:"order_id"`
	WithdrawalID *uuid.UUID `json:"withdrawal_id"`

	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SignedAmount знаковая сумма для сверки баланса
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
