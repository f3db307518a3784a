package repository

import "errors"

// Сентинельные ошибки слоя хранения. Сервисный слой мапит их
// в ошибки своей таксономии через errors.Is.
var (
	ErrNotFound = errors.New("not found")

	// ErrSlotConflict проигрыш гонки за слот: условный UPDATE затронул
	// меньше строк, чем требовалось
	ErrSlotConflict = errors.New("slot conflict")

	// ErrStaleStatus переход статуса не применился - строка уже не в
	// ожидаемом исходном статусе
	ErrStaleStatus = errors.New("stale status")

	// ErrInsufficientBalance баланс меньше суммы списания на момент
	// захвата блокировки кошелька
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWalletInactive кошелёк выключен или заблокирован
	ErrWalletInactive = errors.New("wallet inactive or locked")

	// ErrDuplicateReference транзакция с таким reference уже применена;
	// вызывающий получает существующую запись
	ErrDuplicateReference = errors.New("duplicate reference")
)
