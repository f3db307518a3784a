package service

import (
	"errors"
	"fmt"

	"github.com/Freeeeeet/bookspace/internal/repository"
)

// Ошибки, возвращаемые сервисным слоем наружу. Исправимые вызывающим
// отличаются от терминальных по спискам в обработчиках.
var (
	ErrSlotUnavailable    = errors.New("slot unavailable")
	ErrWindowOutOfPolicy  = errors.New("window violates advance booking policy")
	ErrInvalidWindow      = errors.New("invalid booking window")
	ErrReservationExpired = errors.New("reservation expired")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrWalletLocked        = errors.New("wallet locked or inactive")

	ErrGatewayTransient = errors.New("gateway temporarily unavailable")
	ErrGatewayRejected  = errors.New("gateway rejected operation")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrAmountMismatch   = errors.New("gateway amount mismatch")

	ErrNotFound = errors.New("not found")
)

// mapStoreErr переводит сентинели слоя хранения в ошибки сервисной
// таксономии. Неизвестные ошибки возвращаются как есть.
func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrSlotConflict):
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	case errors.Is(err, repository.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, repository.ErrWalletInactive):
		return fmt.Errorf("%w: %v", ErrWalletLocked, err)
	default:
		return err
	}
}
