package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmeras/resellmart/internal/storage"
)

// StatsService определяет интерфейс отчётной статистики по заказам.
type StatsService interface {
	// GetMonthlyStats считает статистику за календарный месяц (UTC).
	GetMonthlyStats(ctx context.Context, year int, month time.Month) (*OrderStatsResponse, error)
}

// OrderStatsResponse — месячный агрегат по оплаченным заказам
type OrderStatsResponse struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	OrderCount int64           `json:"order_count"`
	UnitsSold  int64           `json:"units_sold"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type statsService struct {
	log       *slog.Logger
	statsRepo storage.StatsStorage
}

func NewStatsService(log *slog.Logger, statsRepo storage.StatsStorage) StatsService {
	return &statsService{
		log:       log,
		statsRepo: statsRepo,
	}
}

func (s *statsService) GetMonthlyStats(ctx context.Context, year int, month time.Month) (*OrderStatsResponse, error) {
	const op = "service.StatsService.GetMonthlyStats"
	logger := s.log.With(slog.String("op", op), slog.Int("year", year), slog.Int("month", int(month)))

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	stats, err := s.statsRepo.GetOrderStats(ctx, from, to)
	if err != nil {
		logger.Error("failed to get order stats", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &OrderStatsResponse{
		Year:       year,
		Month:      int(month),
		OrderCount: stats.OrderCount,
		UnitsSold:  stats.UnitsSold,
		Revenue:    stats.Revenue.Round(2),
	}, nil
}
