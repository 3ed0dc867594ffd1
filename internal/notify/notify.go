package notify

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tmeras/resellmart/internal/domain/models"
)

// Notifier описывает отправку уведомлений покупателю и продавцам.
// Вызывается только из фоновой обработки заказа: ошибки отправки —
// забота вызывающего, сам отправитель их не скрывает.
type Notifier interface {
	// SendBuyerConfirmation отправляет покупателю подтверждение всего заказа.
	SendBuyerConfirmation(ctx context.Context, buyer *models.User, order *models.Order) error
	// SendSellerConfirmation отправляет продавцу подтверждение продажи:
	// только его позиции и их суммарную стоимость.
	SendSellerConfirmation(ctx context.Context, seller *models.User, items []models.OrderItem, total decimal.Decimal) error
}

// LogNotifier пишет уведомления в структурированный лог.
// Боевое развёртывание подставляет сюда реализацию поверх почтового шлюза.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendBuyerConfirmation(ctx context.Context, buyer *models.User, order *models.Order) error {
	n.log.Info("purchase confirmation",
		slog.String("email", buyer.Email),
		slog.Int64("orderID", order.ID),
		slog.String("status", string(order.Status)),
		slog.String("total", order.Total().StringFixed(2)),
		slog.Int("items", len(order.Items)),
	)
	return nil
}

func (n *LogNotifier) SendSellerConfirmation(ctx context.Context, seller *models.User, items []models.OrderItem, total decimal.Decimal) error {
	n.log.Info("sale confirmation",
		slog.String("email", seller.Email),
		slog.Int("items", len(items)),
		slog.String("total", total.StringFixed(2)),
	)
	return nil
}
