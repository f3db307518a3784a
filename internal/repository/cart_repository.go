package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/bookspace/internal/model"
)

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreateByUser получает корзину пользователя, создавая при первом
// обращении. Гонка двух создателей разрешается через ON CONFLICT.
func (r *CartRepository) GetOrCreateByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	insert := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, uuid.New(), userID); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	query := `
		SELECT id, user_id, subtotal, discount_total, tax_total, total, item_count, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`

	var cart model.Cart
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.Subtotal,
		&cart.DiscountTotal,
		&cart.TaxTotal,
		&cart.Total,
		&cart.ItemCount,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart by user: %w", err)
	}

	return &cart, nil
}

// AddItem добавляет позицию в корзину
func (r *CartRepository) AddItem(ctx context.Context, item *model.CartItem) error {
	query := `
		INSERT INTO cart_items (id, cart_id, space_id, reservation_id, booking_type,
		                        check_in, check_out, price, discount_amount, tax_amount, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		item.ID,
		item.CartID,
		item.SpaceID,
		item.ReservationID,
		item.BookingType,
		item.CheckIn,
		item.CheckOut,
		item.Price,
		item.Discount,
		item.Tax,
		item.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}

	return nil
}

const cartItemColumns = `id, cart_id, space_id, reservation_id, booking_type, check_in, check_out, price, discount_amount, tax_amount, added_at`

// GetItem получает позицию корзины по ID
func (r *CartRepository) GetItem(ctx context.Context, id uuid.UUID) (*model.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE id = $1`

	item, err := scanCartItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cart item %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}

	return item, nil
}

// ItemsByCart получает позиции корзины в порядке добавления
func (r *CartRepository) ItemsByCart(ctx context.Context, cartID uuid.UUID) ([]*model.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 ORDER BY added_at`

	rows, err := r.pool.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []*model.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// DeleteItem удаляет позицию корзины
func (r *CartRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// DeleteItemsByReservation удаляет позиции, привязанные к холду
func (r *CartRepository) DeleteItemsByReservation(ctx context.Context, reservationID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE reservation_id = $1`, reservationID)
	if err != nil {
		return 0, fmt.Errorf("delete cart items by reservation: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateTotals сохраняет пересчитанные агрегаты корзины
func (r *CartRepository) UpdateTotals(ctx context.Context, cart *model.Cart) error {
	query := `
		UPDATE carts
		SET subtotal = $1, discount_total = $2, tax_total = $3, total = $4, item_count = $5, updated_at = now()
		WHERE id = $6
	`

	tag, err := r.pool.Exec(ctx, query,
		cart.Subtotal,
		cart.DiscountTotal,
		cart.TaxTotal,
		cart.Total,
		cart.ItemCount,
		cart.ID,
	)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart %s: %w", cart.ID, ErrNotFound)
	}

	return nil
}

func scanCartItem(row pgx.Row) (*model.CartItem, error) {
	var item model.CartItem
	err := row.Scan(
		&item.ID,
		&item.CartID,
		&item.SpaceID,
		&item.ReservationID,
		&item.BookingType,
		&item.CheckIn,
		&item.CheckOut,
		&item.Price,
		&item.Discount,
		&item.Tax,
		&item.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
