package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/bookspace/internal/model"
)

type WalletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

const walletColumns = `id, owner_kind, owner_id, balance, currency, is_active, is_locked, total_earnings, total_withdrawn, created_at, updated_at`

// GetByOwner получает кошелёк владельца
func (r *WalletRepository) GetByOwner(ctx context.Context, owner model.Owner) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_kind = $1 AND owner_id = $2`

	wallet, err := scanWallet(r.pool.QueryRow(ctx, query, owner.Kind, owner.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet of %s %s: %w", owner.Kind, owner.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("get wallet by owner: %w", err)
	}

	return wallet, nil
}

// GetByID получает кошелёк по ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	wallet, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}

	return wallet, nil
}

// Create создаёт кошелёк. Повторное создание для того же владельца
// возвращает ErrDuplicateReference.
func (r *WalletRepository) Create(ctx context.Context, w *model.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_kind, owner_id, balance, currency, is_active, is_locked,
		                     total_earnings, total_withdrawn, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		w.ID,
		w.Owner.Kind,
		w.Owner.ID,
		w.Balance,
		w.Currency,
		w.IsActive,
		w.IsLocked,
		w.TotalEarnings,
		w.TotalWithdrawn,
		w.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("wallet of %s %s: %w", w.Owner.Kind, w.Owner.ID, ErrDuplicateReference)
		}
		return fmt.Errorf("create wallet: %w", err)
	}

	return nil
}

const transactionColumns = `id, reference, transaction_type, category, amount, currency, wallet_id,
	balance_before, balance_after, status, description, booking_id, order_id, withdrawal_id, processed_at, created_at`

// FindTransaction получает транзакцию по reference
func (r *WalletRepository) FindTransaction(ctx context.Context, reference string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %q: %w", reference, ErrNotFound)
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}

	return tx, nil
}

// Apply применяет запись леджера одной транзакцией: блокировка кошелька,
// повторная проверка reference под блокировкой, запись со снапшотами
// баланса, обновление баланса и lifetime-счётчиков. Дубликат reference
// возвращает уже применённую запись с existing=true, баланс не меняется.
func (r *WalletRepository) Apply(ctx context.Context, entry *model.Transaction) (*model.Transaction, bool, error) {
	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx)

	lock := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	wallet, err := scanWallet(dbtx.QueryRow(ctx, lock, entry.WalletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("wallet %s: %w", entry.WalletID, ErrNotFound)
		}
		return nil, false, fmt.Errorf("lock wallet: %w", err)
	}

	existing, err := scanTransaction(dbtx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, entry.Reference))
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("check reference: %w", err)
	}

	if !wallet.IsActive || wallet.IsLocked {
		return nil, false, fmt.Errorf("wallet %s: %w", wallet.ID, ErrWalletInactive)
	}

	entry.BalanceBefore = wallet.Balance
	switch entry.Type {
	case model.TransactionDebit:
		if wallet.Balance.LessThan(entry.Amount) {
			return nil, false, fmt.Errorf("wallet %s holds %s, need %s: %w",
				wallet.ID, wallet.Balance, entry.Amount, ErrInsufficientBalance)
		}
		entry.BalanceAfter = wallet.Balance.Sub(entry.Amount)
	default:
		entry.BalanceAfter = wallet.Balance.Add(entry.Amount)
	}
	if entry.Currency == "" {
		entry.Currency = wallet.Currency
	}

	insert := `
		INSERT INTO transactions (id, reference, transaction_type, category, amount, currency, wallet_id,
		                          balance_before, balance_after, status, description,
		                          booking_id, order_id, withdrawal_id, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = dbtx.Exec(ctx, insert,
		entry.ID,
		entry.Reference,
		entry.Type,
		entry.Category,
		entry.Amount,
		entry.Currency,
		entry.WalletID,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.Status,
		entry.Description,
		entry.BookingID,
		entry.OrderID,
		entry.WithdrawalID,
		entry.ProcessedAt,
		entry.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert transaction: %w", err)
	}

	update := `
		UPDATE wallets
		SET balance = $1,
		    total_earnings = total_earnings + CASE WHEN $2 = 'booking_earning' AND $3 = 'credit' THEN $4 ELSE 0 END,
		    total_withdrawn = total_withdrawn + CASE WHEN $2 = 'withdrawal' AND $3 = 'debit' THEN $4 ELSE 0 END,
		    updated_at = now()
		WHERE id = $5
	`
	_, err = dbtx.Exec(ctx, update,
		entry.BalanceAfter,
		entry.Category,
		entry.Type,
		entry.Amount,
		entry.WalletID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update wallet balance: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	return entry, false, nil
}

// TransactionsByWallet получает транзакции кошелька от новых к старым
func (r *WalletRepository) TransactionsByWallet(ctx context.Context, walletID uuid.UUID) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}

	return out, rows.Err()
}

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(
		&w.ID,
		&w.Owner.Kind,
		&w.Owner.ID,
		&w.Balance,
		&w.Currency,
		&w.IsActive,
		&w.IsLocked,
		&w.TotalEarnings,
		&w.TotalWithdrawn,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(
		&t.ID,
		&t.Reference,
		&t.Type,
		&t.Category,
		&t.Amount,
		&t.Currency,
		&t.WalletID,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.Status,
		&t.Description,
		&t.BookingID,
		&t.OrderID,
		&t.WithdrawalID,
		&t.ProcessedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isUniqueViolation проверяет нарушение уникального ограничения
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
