package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmeras/resellmart/internal/domain/models"
)

// OrderStats — агрегат по заказам за период: число заказов,
// проданные единицы и выручка по оплаченным заказам.
type OrderStats struct {
	OrderCount int64
	UnitsSold  int64
	Revenue    decimal.Decimal
}

// StatsStorage описывает методы для построения отчётной статистики.
type StatsStorage interface {
	// GetOrderStats считает агрегат по заказам за полуинтервал [from, to).
	GetOrderStats(ctx context.Context, from, to time.Time) (*OrderStats, error)
}

type statsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) StatsStorage {
	return &statsRepository{db: db}
}

// GetOrderStats учитывает только оплаченные заказы.
// Выручка складывается из построчных сумм, округлённых до 2 знаков,
// так же, как считается итог заказа.
func (r *statsRepository) GetOrderStats(ctx context.Context, from, to time.Time) (*OrderStats, error) {
	query := `
		SELECT COUNT(DISTINCT o.id),
		       COALESCE(SUM(oi.quantity), 0),
		       COALESCE(SUM(ROUND(oi.price * oi.quantity, 2)), 0)
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status IN ($1, $2) AND o.placed_at >= $3 AND o.placed_at < $4`

	stats := &OrderStats{}
	err := r.db.QueryRowContext(ctx, query,
		models.OrderStatusPlacedPaid, models.OrderStatusPaid, from, to,
	).Scan(&stats.OrderCount, &stats.UnitsSold, &stats.Revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to query order stats: %w", err)
	}
	return stats, nil
}
