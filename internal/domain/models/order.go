package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает состояние заказа
type OrderStatus string

const (
	// OrderStatusPlacedPaid — заказ оплачен при оформлении (наличные)
	OrderStatusPlacedPaid OrderStatus = "PLACED_PAID"
	// OrderStatusPendingPayment — заказ ждёт подтверждения платежа от шлюза
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	// OrderStatusPaid — платёж подтверждён шлюзом, терминальное состояние
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusCancelled — заказ отменён, терминальное состояние
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal сообщает, является ли состояние терминальным
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода между состояниями.
// Переходы возможны только из PENDING_PAYMENT: подтверждение платежа или отмена.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderStatusPendingPayment {
		return false
	}
	return next == OrderStatusPaid || next == OrderStatusCancelled
}

// Settled сообщает, учитывается ли заказ как оплаченный (для статистики выручки)
func (s OrderStatus) Settled() bool {
	return s == OrderStatusPlacedPaid || s == OrderStatusPaid
}

// PaymentMethod — способ оплаты заказа
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
)

// Valid проверяет, что способ оплаты известен системе
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodCard
}

// InitialStatus возвращает начальное состояние заказа по способу оплаты:
// наличные считаются оплаченными сразу, карта ждёт подтверждения шлюза
func (m PaymentMethod) InitialStatus() OrderStatus {
	if m == PaymentMethodCash {
		return OrderStatusPlacedPaid
	}
	return OrderStatusPendingPayment
}

// OrderItemStatus — статус отдельной позиции заказа
type OrderItemStatus string

const (
	OrderItemStatusPending OrderItemStatus = "PENDING"
	OrderItemStatusShipped OrderItemStatus = "SHIPPED"
)

// LinePrice вычисляет стоимость позиции: цена * количество,
// округление half-up до 2 знаков
func LinePrice(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// OrderItem — неизменяемый снимок товара на момент оформления заказа.
// Поля копируются из Product один раз и больше никогда не перечитываются,
// поэтому история заказа переживает изменение цены и даже удаление товара.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"` // цена за единицу на момент оформления
	Condition string          `json:"condition"`
	ImagePath string          `json:"image_path,omitempty"`
	SellerID  int64           `json:"seller_id"`
	Status    OrderItemStatus `json:"status"`
}

// NewOrderItemSnapshot строит снимок позиции заказа из текущего состояния товара
func NewOrderItemSnapshot(p *Product, quantity int) OrderItem {
	return OrderItem{
		ProductID: p.ID,
		Quantity:  quantity,
		Name:      p.Name,
		Price:     p.Price,
		Condition: p.Condition,
		ImagePath: p.ImagePath,
		SellerID:  p.SellerID,
		Status:    OrderItemStatusPending,
	}
}

// LinePrice — стоимость позиции заказа
func (i *OrderItem) LinePrice() decimal.Decimal {
	return LinePrice(i.Price, i.Quantity)
}

// Order представляет заказ покупателя. Заказ владеет своими позициями:
// они создаются и удаляются только вместе с заказом и не разделяются между заказами.
type Order struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	PlacedAt         time.Time     `json:"placed_at"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	Status           OrderStatus   `json:"status"`
	PaymentSessionID *string       `json:"payment_session_id,omitempty"`
	BillingAddress   string        `json:"billing_address"`
	DeliveryAddress  string        `json:"delivery_address"`
	Items            []OrderItem   `json:"items"`
}

// Total — сумма всех позиций заказа, half-up до 2 знаков.
// Итог всегда производный: инвариант sum(item.Price * item.Quantity) == Total().
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].LinePrice())
	}
	return total.Round(2)
}
