package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/tmeras/resellmart/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами и их позициями.
// Позиции принадлежат заказу: создаются и читаются только вместе с ним.
type OrderStorage interface {
	// CreateOrderTx вставляет заказ вместе со всеми позициями в одной транзакции
	// и заполняет присвоенные базой идентификаторы и отметку времени.
	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Order, error)
	// GetOrderByID возвращает заказ с позициями.
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// GetOrdersByUserID возвращает заказы покупателя с позициями, новые первыми.
	GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error)
	// OrderExists проверяет наличие заказа.
	OrderExists(ctx context.Context, id int64) (bool, error)
	// UpdateStatus переводит заказ в новое состояние и, при наличии,
	// записывает идентификатор платёжной сессии.
	UpdateStatus(ctx context.Context, id int64, status models.OrderStatus, sessionID *string) error
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Order, error) {
	query := `INSERT INTO orders (user_id, payment_method, status, payment_session_id, billing_address, delivery_address, placed_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW())
	          RETURNING id, placed_at`
	err := tx.QueryRowContext(ctx, query,
		order.UserID, order.PaymentMethod, order.Status, order.PaymentSessionID,
		order.BillingAddress, order.DeliveryAddress,
	).Scan(&order.ID, &order.PlacedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, quantity, name, price, condition, image_path, seller_id, status)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	              RETURNING id`
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.QueryRowContext(ctx, itemQuery,
			item.OrderID, item.ProductID, item.Quantity, item.Name, item.Price,
			item.Condition, item.ImagePath, item.SellerID, item.Status,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return order, nil
}

const orderColumns = "id, user_id, payment_method, status, payment_session_id, billing_address, delivery_address, placed_at"

func scanOrder(row interface{ Scan(dest ...any) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.PaymentMethod,
		&order.Status,
		&order.PaymentSessionID,
		&order.BillingAddress,
		&order.DeliveryAddress,
		&order.PlacedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	itemsByOrder, err := r.getItemsByOrderIDs(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = itemsByOrder[order.ID]
	return order, nil
}

func (r *orderRepository) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE user_id = $1 ORDER BY placed_at DESC"
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	var orderIDs []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemsByOrder, err := r.getItemsByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		order.Items = itemsByOrder[order.ID]
	}
	return orders, nil
}

// getItemsByOrderIDs загружает позиции сразу для набора заказов одним запросом
func (r *orderRepository) getItemsByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, name, price, condition, image_path, seller_id, status
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	itemsByOrder := make(map[int64][]models.OrderItem)
	for rows.Next() {
		item := models.OrderItem{}
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Name,
			&item.Price, &item.Condition, &item.ImagePath, &item.SellerID, &item.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return itemsByOrder, nil
}

func (r *orderRepository) OrderExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, status models.OrderStatus, sessionID *string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_session_id = COALESCE($2, payment_session_id) WHERE id = $3",
		status, sessionID, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
