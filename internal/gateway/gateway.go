package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Freeeeeet/bookspace/internal/metrics"
)

var (
	// ErrTransient сетевые/временные ошибки шлюза, ретраятся вызывающим
	ErrTransient = errors.New("gateway transient failure")
	// ErrRejected терминальный отказ шлюза, не ретраится
	ErrRejected = errors.New("gateway rejected request")
)

// observeRequest фиксирует исход исходящего вызова шлюза
func observeRequest(op string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTransient):
		outcome = "transient"
	case err != nil:
		outcome = "rejected"
	}
	metrics.GatewayRequests.WithLabelValues(op, outcome).Inc()
}

// ChargeInit результат инициализации платежа: пользователь уходит на redirect
type ChargeInit struct {
	RedirectURL string
	AccessCode  string
	Reference   string
}

// ChargeStatus результат верификации платежа через query API шлюза
type ChargeStatus struct {
	Status    string // "success" / "failed" / "pending"
	Amount    decimal.Decimal
	Method    string
	Reference string
}

// BankDetails реквизиты получателя выплаты
type BankDetails struct {
	AccountNumber string
	AccountName   string
	BankCode      string
}

// Gateway абстракция платёжного провайдера. Два конкретных провайдера
// (paystack, flutterwave) реализуют этот контракт; ядро не знает про
// формы их ответов сверх этого.
type Gateway interface {
	Name() string
	InitializeCharge(ctx context.Context, email string, amount decimal.Decimal, reference string) (*ChargeInit, error)
	VerifyCharge(ctx context.Context, reference string) (*ChargeStatus, error)
	CreatePayoutRecipient(ctx context.Context, bank BankDetails) (recipientRef string, err error)
	InitiateTransfer(ctx context.Context, recipientRef string, amount decimal.Decimal, reference, reason string) (gatewayRef string, err error)
}
