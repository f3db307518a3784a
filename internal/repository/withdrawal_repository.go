package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/bookspace/internal/model"
)

type WithdrawalRepository struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepository(pool *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{pool: pool}
}

const withdrawalColumns = `id, wallet_id, bank_account_id, requested_by, amount, fee, net_amount, currency,
	status, reference, gateway_reference, retry_count, failure_reason,
	approved_at, processed_at, completed_at, failed_at, created_at, updated_at`

// Create создаёт заявку на вывод
func (r *WithdrawalRepository) Create(ctx context.Context, w *model.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (id, wallet_id, bank_account_id, requested_by, amount, fee, net_amount,
		                                 currency, status, reference, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		w.ID,
		w.WalletID,
		w.BankAccountID,
		w.RequestedBy,
		w.Amount,
		w.Fee,
		w.NetAmount,
		w.Currency,
		w.Status,
		w.Reference,
		w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create withdrawal: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get withdrawal by id: %w", err)
	}

	return w, nil
}

// GetByReference получает заявку по reference (используется вебхуком)
func (r *WithdrawalRepository) GetByReference(ctx context.Context, reference string) (*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE reference = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal %q: %w", reference, ErrNotFound)
		}
		return nil, fmt.Errorf("get withdrawal by reference: %w", err)
	}

	return w, nil
}

// SetStatus условный переход статуса из любого статуса списка from.
// false без ошибки, если заявка уже ушла из from.
func (r *WithdrawalRepository) SetStatus(ctx context.Context, id uuid.UUID, from []model.WithdrawalStatus, to model.WithdrawalStatus, at time.Time) (bool, error) {
	query := `
		UPDATE withdrawal_requests
		SET status = $1,
		    approved_at  = CASE WHEN $1 = 'approved'   THEN $2 ELSE approved_at END,
		    processed_at = CASE WHEN $1 = 'processing' THEN $2 ELSE processed_at END,
		    completed_at = CASE WHEN $1 = 'completed'  THEN $2 ELSE completed_at END,
		    failed_at    = CASE WHEN $1 = 'failed'     THEN $2 ELSE failed_at END,
		    updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`

	fromStr := make([]string, 0, len(from))
	for _, st := range from {
		fromStr = append(fromStr, string(st))
	}

	tag, err := r.pool.Exec(ctx, query, to, at, id, fromStr)
	if err != nil {
		return false, fmt.Errorf("set withdrawal status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// SetGatewayRef сохраняет reference, присвоенный шлюзом
func (r *WithdrawalRepository) SetGatewayRef(ctx context.Context, id uuid.UUID, gatewayRef string) error {
	query := `UPDATE withdrawal_requests SET gateway_reference = $1, updated_at = now() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, gatewayRef, id)
	if err != nil {
		return fmt.Errorf("set gateway ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s: %w", id, ErrNotFound)
	}

	return nil
}

// IncrementRetry увеличивает счётчик попыток и возвращает новое значение
func (r *WithdrawalRepository) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE withdrawal_requests
		SET retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING retry_count
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("withdrawal %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("increment retry: %w", err)
	}

	return count, nil
}

// SetFailureReason сохраняет причину отказа
func (r *WithdrawalRepository) SetFailureReason(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE withdrawal_requests SET failure_reason = $1, updated_at = now() WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, reason, id); err != nil {
		return fmt.Errorf("set failure reason: %w", err)
	}

	return nil
}

// GetBankAccount получает банковский счёт по ID
func (r *WithdrawalRepository) GetBankAccount(ctx context.Context, id uuid.UUID) (*model.BankAccount, error) {
	query := `
		SELECT id, owner_kind, owner_id, account_number, account_name, bank_name, bank_code,
		       recipient_ref, is_verified, is_active, created_at
		FROM bank_accounts
		WHERE id = $1
	`

	var b model.BankAccount
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.Owner.Kind,
		&b.Owner.ID,
		&b.AccountNumber,
		&b.AccountName,
		&b.BankName,
		&b.BankCode,
		&b.RecipientRef,
		&b.IsVerified,
		&b.IsActive,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bank account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get bank account: %w", err)
	}

	return &b, nil
}

// SetRecipientRef кэширует код получателя на стороне шлюза
func (r *WithdrawalRepository) SetRecipientRef(ctx context.Context, bankAccountID uuid.UUID, recipientRef string) error {
	query := `UPDATE bank_accounts SET recipient_ref = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, recipientRef, bankAccountID)
	if err != nil {
		return fmt.Errorf("set recipient ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank account %s: %w", bankAccountID, ErrNotFound)
	}

	return nil
}

// CreateBankAccount создаёт банковский счёт
func (r *WithdrawalRepository) CreateBankAccount(ctx context.Context, b *model.BankAccount) error {
	query := `
		INSERT INTO bank_accounts (id, owner_kind, owner_id, account_number, account_name,
		                           bank_name, bank_code, recipient_ref, is_verified, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		b.ID,
		b.Owner.Kind,
		b.Owner.ID,
		b.AccountNumber,
		b.AccountName,
		b.BankName,
		b.BankCode,
		b.RecipientRef,
		b.IsVerified,
		b.IsActive,
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create bank account: %w", err)
	}

	return nil
}

func scanWithdrawal(row pgx.Row) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	err := row.Scan(
		&w.ID,
		&w.WalletID,
		&w.BankAccountID,
		&w.RequestedBy,
		&w.Amount,
		&w.Fee,
		&w.NetAmount,
		&w.Currency,
		&w.Status,
		&w.Reference,
		&w.GatewayRef,
		&w.RetryCount,
		&w.FailureReason,
		&w.ApprovedAt,
		&w.ProcessedAt,
		&w.CompletedAt,
		&w.FailedAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
