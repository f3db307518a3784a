package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankAccount верифицированный счёт для выплат
type BankAccount struct {
	ID            uuid.UUID `json:"id"`
	Owner         Owner     `json:"owner"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `json:"bank_code"`
	RecipientRef  *string   `json:"recipient_ref"` // код получателя на стороне шлюза, кэшируется после первого создания
	IsVerified    bool      `json:"is_verified"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

// WithdrawalRequest заявка на вывод средств из кошелька на банковский счёт.
// Списание с кошелька происходит только на completed.
type WithdrawalRequest struct {
	ID            uuid.UUID        `json:"id"`
	WalletID      uuid.UUID        `json:"wallet_id"`
	BankAccountID uuid.UUID        `json:"bank_account_id"`
	RequestedBy   uuid.UUID        `json:"requested_by"`
	Amount        decimal.Decimal  `json:"amount"`
	Fee           decimal.Decimal  `json:"fee"`
	NetAmount     decimal.Decimal  `json:"net_amount"`
	Currency      string           `json:"currency"`
	Status        WithdrawalStatus `json:"status"`
	Reference     string           `json:"reference"`
	GatewayRef    *string          `json:"gateway_reference"`
	RetryCount    int              `json:"retry_count"`
	FailureReason *string          `json:"failure_reason"`
	ApprovedAt    *time.Time       `json:"approved_at"`
	ProcessedAt   *time.Time       `json:"processed_at"`
	CompletedAt   *time.Time       `json:"completed_at"`
	FailedAt      *time.Time       `json:"failed_at"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
