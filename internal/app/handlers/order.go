package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/jwt-new/jwtmiddleware"
	"github.com/tmeras/resellmart/internal/service"
)

// PlaceOrderRequest представляет входной JSON оформления заказа
type PlaceOrderRequest struct {
	BillingAddressID  int64  `json:"billing_address_id" validate:"required,gt=0"`
	DeliveryAddressID int64  `json:"delivery_address_id" validate:"required,gt=0"`
	PaymentMethod     string `json:"payment_method" validate:"required,oneof=CASH CARD"`
}

// OrderResponse — заказ в ответе API. Итог всегда вычисляется из позиций.
type OrderResponse struct {
	ID              int64              `json:"id"`
	Status          string             `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	PlacedAt        time.Time          `json:"placed_at"`
	BillingAddress  string             `json:"billing_address"`
	DeliveryAddress string             `json:"delivery_address"`
	Items           []models.OrderItem `json:"items"`
	TotalPrice      decimal.Decimal    `json:"total_price"`
}

func newOrderResponse(order *models.Order) OrderResponse {
	return OrderResponse{
		ID:              order.ID,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PlacedAt:        order.PlacedAt,
		BillingAddress:  order.BillingAddress,
		DeliveryAddress: order.DeliveryAddress,
		Items:           order.Items,
		TotalPrice:      order.Total(),
	}
}

// PlaceOrderHandler обрабатывает запрос POST /api/order.
// Покупатель берётся из JWT-контекста и передаётся в сервис явным параметром.
func PlaceOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PlaceOrderHandler"
		logger := log.With(slog.String("op", op))

		var req PlaceOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		order, err := orderService.PlaceOrder(
			r.Context(), userID, req.BillingAddressID, req.DeliveryAddressID,
			models.PaymentMethod(req.PaymentMethod),
		)
		if err != nil {
			logger.Error("failed to place order", slog.Any("error", err))
			http.Error(w, err.Error(), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(newOrderResponse(order)); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}

// OrdersHandler обрабатывает запрос GET /api/order — история заказов покупателя
func OrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.OrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := orderService.GetOrders(r.Context(), userID)
		if err != nil {
			logger.Error("failed to get orders", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]OrderResponse, 0, len(orders))
		for _, order := range orders {
			resp = append(resp, newOrderResponse(order))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}

// PaymentCallbackRequest — сигнал платёжного шлюза о подтверждении оплаты
type PaymentCallbackRequest struct {
	OrderID   int64  `json:"order_id" validate:"required,gt=0"`
	SessionID string `json:"session_id" validate:"required"`
}

// PaymentCallbackHandler обрабатывает запрос POST /api/payment/callback
func PaymentCallbackHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PaymentCallbackHandler"
		logger := log.With(slog.String("op", op))

		var req PaymentCallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		if err := orderService.ConfirmPayment(r.Context(), req.OrderID, req.SessionID); err != nil {
			logger.Error("failed to confirm payment", slog.Any("error", err))
			http.Error(w, err.Error(), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "Payment confirmed"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}
