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

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// CreateOrder создаёт заказ
func (r *PaymentRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	query := `
		INSERT INTO orders (id, order_number, user_id, booking_ids, subtotal, discount_amount,
		                    tax_amount, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.BookingIDs,
		o.Subtotal,
		o.Discount,
		o.Tax,
		o.Total,
		o.Status,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

// GetOrder получает заказ по ID
func (r *PaymentRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `
		SELECT id, order_number, user_id, booking_ids, subtotal, discount_amount,
		       tax_amount, total_amount, status, paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o model.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.BookingIDs,
		&o.Subtotal,
		&o.Discount,
		&o.Tax,
		&o.Total,
		&o.Status,
		&o.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	return &o, nil
}

// MarkOrderPaid условно переводит заказ pending -> paid
func (r *PaymentRepository) MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'paid', paid_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// CreatePayment создаёт платёж
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, user_id, amount, currency, provider, reference,
		                      gateway_reference, redirect_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.OrderID,
		p.UserID,
		p.Amount,
		p.Currency,
		p.Provider,
		p.Reference,
		p.GatewayRef,
		p.RedirectURL,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

const paymentColumns = `id, order_id, user_id, amount, currency, provider, reference, gateway_reference, redirect_url, status, completed_at, created_at`

// PaymentByReference получает платёж по нашему reference
func (r *PaymentRepository) PaymentByReference(ctx context.Context, reference string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`

	var p model.Payment
	err := r.pool.QueryRow(ctx, query, reference).Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.Currency,
		&p.Provider,
		&p.Reference,
		&p.GatewayRef,
		&p.RedirectURL,
		&p.Status,
		&p.CompletedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment %q: %w", reference, ErrNotFound)
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}

	return &p, nil
}

// CompletePayment условно переводит платёж pending -> completed.
// false, если платёж уже завершён (повторный вебхук).
func (r *PaymentRepository) CompletePayment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'completed', completed_at = $1
		WHERE id = $2 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// FailPayment помечает платёж неуспешным
func (r *PaymentRepository) FailPayment(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE payments SET status = 'failed' WHERE id = $1 AND status = 'pending'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}

	return nil
}

// CreateDeposit создаёт пополнение
func (r *PaymentRepository) CreateDeposit(ctx context.Context, d *model.Deposit) error {
	query := `
		INSERT INTO deposits (id, wallet_id, amount, currency, provider, reference,
		                      gateway_reference, redirect_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.WalletID,
		d.Amount,
		d.Currency,
		d.Provider,
		d.Reference,
		d.GatewayRef,
		d.RedirectURL,
		d.Status,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create deposit: %w", err)
	}

	return nil
}

// DepositByReference получает пополнение по нашему reference
func (r *PaymentRepository) DepositByReference(ctx context.Context, reference string) (*model.Deposit, error) {
	query := `
		SELECT id, wallet_id, amount, currency, provider, reference, gateway_reference,
		       redirect_url, status, completed_at, created_at
		FROM deposits
		WHERE reference = $1
	`

	var d model.Deposit
	err := r.pool.QueryRow(ctx, query, reference).Scan(
		&d.ID,
		&d.WalletID,
		&d.Amount,
		&d.Currency,
		&d.Provider,
		&d.Reference,
		&d.GatewayRef,
		&d.RedirectURL,
		&d.Status,
		&d.CompletedAt,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("deposit %q: %w", reference, ErrNotFound)
		}
		return nil, fmt.Errorf("get deposit by reference: %w", err)
	}

	return &d, nil
}

// CompleteDeposit условно переводит пополнение pending -> completed
func (r *PaymentRepository) CompleteDeposit(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE deposits
		SET status = 'completed', completed_at = $1
		WHERE id = $2 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("complete deposit: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// FailDeposit помечает пополнение неуспешным
func (r *PaymentRepository) FailDeposit(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE deposits SET status = 'failed' WHERE id = $1 AND status = 'pending'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("fail deposit: %w", err)
	}

	return nil
}
