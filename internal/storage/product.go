package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/tmeras/resellmart/internal/domain/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrProductLocked возвращается, когда строка товара захвачена другой транзакцией
	ErrProductLocked = errors.New("product row is locked")
)

// ProductStorage описывает методы для работы с таблицей товаров.
// Подсистема заказов только уменьшает available_quantity, никогда не увеличивает.
type ProductStorage interface {
	// GetProductByID получает товар по идентификатору.
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// LockProductsByIDsTx захватывает строки товаров (FOR UPDATE NOWAIT) в порядке
	// возрастания id и возвращает их текущее состояние.
	LockProductsByIDsTx(ctx context.Context, tx *sql.Tx, ids []int64) ([]*models.Product, error)
	// UpdateAvailableQuantityTx записывает новый остаток товара внутри транзакции.
	UpdateAvailableQuantityTx(ctx context.Context, tx *sql.Tx, id int64, newQuantity int) error
	// EnsureAvailableQuantity идемпотентно приводит остаток к значению не выше указанного.
	// Повторный вызов с тем же значением ничего не меняет; поднять остаток вызов не может.
	EnsureAvailableQuantity(ctx context.Context, id int64, quantity int) error
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "id, seller_id, name, condition, image_path, price, available_quantity"

func scanProduct(row interface{ Scan(dest ...any) error }) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.SellerID,
		&product.Name,
		&product.Condition,
		&product.ImagePath,
		&product.Price,
		&product.AvailableQuantity,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

// LockProductsByIDsTx блокирует строки товаров до конца транзакции.
// ORDER BY id фиксирует порядок захвата: конкурирующие оформления берут
// блокировки в одном порядке и не взаимоблокируются.
func (r *productRepository) LockProductsByIDsTx(ctx context.Context, tx *sql.Tx, ids []int64) ([]*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE NOWAIT"
	rows, err := tx.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" { // lock_not_available
				return nil, fmt.Errorf("%w: %v", ErrProductLocked, err)
			}
		}
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "55P03" {
				return nil, fmt.Errorf("%w: %v", ErrProductLocked, err)
			}
		}
		return nil, err
	}
	return products, nil
}

func (r *productRepository) UpdateAvailableQuantityTx(ctx context.Context, tx *sql.Tx, id int64, newQuantity int) error {
	res, err := tx.ExecContext(ctx, "UPDATE products SET available_quantity = $1 WHERE id = $2", newQuantity, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// EnsureAvailableQuantity — идемпотентная запись остатка для воркера.
// Условие available_quantity > $1 делает повторный вызов no-op и не даёт
// затереть более поздний декремент, выполненный конкурирующим оформлением:
// подсистема заказов никогда не увеличивает остаток.
func (r *productRepository) EnsureAvailableQuantity(ctx context.Context, id int64, quantity int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE products SET available_quantity = $1 WHERE id = $2 AND available_quantity > $1",
		quantity, id,
	)
	return err
}
