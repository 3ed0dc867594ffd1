package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tmeras/resellmart/internal/domain/models"
)

// CartStorage описывает методы для работы с корзиной.
type CartStorage interface {
	// GetItemsByUserID возвращает все позиции корзины пользователя.
	GetItemsByUserID(ctx context.Context, userID int64) ([]*models.CartItem, error)
	// UpsertItem добавляет товар в корзину; при повторном добавлении количество суммируется.
	UpsertItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error)
	// DeleteItemsByUserTx удаляет позиции корзины по списку товаров внутри транзакции.
	DeleteItemsByUserTx(ctx context.Context, tx *sql.Tx, userID int64, productIDs []int64) error
	// DeleteItemsByUser удаляет позиции корзины по списку товаров вне транзакции.
	DeleteItemsByUser(ctx context.Context, userID int64, productIDs []int64) error
	// DeleteItem удаляет одну позицию корзины.
	DeleteItem(ctx context.Context, userID, productID int64) error
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

func (r *cartRepository) GetItemsByUserID(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	query := `
		SELECT id, user_id, product_id, quantity, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item := &models.CartItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertItem опирается на уникальный индекс (user_id, product_id):
// в корзине не может быть двух строк на один и тот же товар.
func (r *cartRepository) UpsertItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, user_id, product_id, quantity, added_at`
	item := &models.CartItem{}
	err := r.db.QueryRowContext(ctx, query, userID, productID, quantity).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) DeleteItemsByUserTx(ctx context.Context, tx *sql.Tx, userID int64, productIDs []int64) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)",
		userID, pq.Array(productIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteItemsByUser(ctx context.Context, userID int64, productIDs []int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)",
		userID, pq.Array(productIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, userID, productID int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}
