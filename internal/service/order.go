package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/storage"
)

// FulfilmentDispatcher — неблокирующая передача оформленного заказа
// на фоновую обработку. Вызывающий не ждёт результата.
type FulfilmentDispatcher interface {
	Enqueue(order *models.Order, products []*models.Product)
}

// OrderService определяет операции над заказами.
type OrderService interface {
	// PlaceOrder оформляет заказ из корзины покупателя одной транзакцией.
	PlaceOrder(ctx context.Context, buyerID, billingAddressID, deliveryAddressID int64, paymentMethod models.PaymentMethod) (*models.Order, error)
	// GetOrders возвращает историю заказов покупателя.
	GetOrders(ctx context.Context, buyerID int64) ([]*models.Order, error)
	// ConfirmPayment переводит заказ из PENDING_PAYMENT в PAID по сигналу платёжного шлюза.
	ConfirmPayment(ctx context.Context, orderID int64, sessionID string) error
}

type orderService struct {
	log          *slog.Logger
	db           *sql.DB
	userRepo     storage.UserStorage
	addressRepo  storage.AddressStorage
	productRepo  storage.ProductStorage
	cartRepo     storage.CartStorage
	orderRepo    storage.OrderStorage
	fulfilment   FulfilmentDispatcher
	stockRetries int
	retryBackoff time.Duration
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	userRepo storage.UserStorage,
	addressRepo storage.AddressStorage,
	productRepo storage.ProductStorage,
	cartRepo storage.CartStorage,
	orderRepo storage.OrderStorage,
	fulfilment FulfilmentDispatcher,
	stockRetries int,
	retryBackoff time.Duration,
) OrderService {
	return &orderService{
		log:          log,
		db:           db,
		userRepo:     userRepo,
		addressRepo:  addressRepo,
		productRepo:  productRepo,
		cartRepo:     cartRepo,
		orderRepo:    orderRepo,
		fulfilment:   fulfilment,
		stockRetries: stockRetries,
		retryBackoff: retryBackoff,
	}
}

// PlaceOrder оформляет заказ: проверяет адреса и корзину, в одной транзакции
// списывает остатки, снимает снимки позиций, сохраняет заказ и чистит корзину.
// Все проверки выполняются до первой мутации: любая ошибка валидации
// прерывает оформление без частичных эффектов.
func (s *orderService) PlaceOrder(ctx context.Context, buyerID, billingAddressID, deliveryAddressID int64, paymentMethod models.PaymentMethod) (*models.Order, error) {
	const op = "service.OrderService.PlaceOrder"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("buyerID", buyerID),
		slog.String("paymentMethod", string(paymentMethod)),
	)
	logger.Info("starting order placement")

	buyer, err := s.userRepo.GetUserByID(ctx, buyerID)
	if err != nil {
		logger.Error("failed to get buyer", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get buyer: %w", op, err)
	}

	billing, err := s.addressRepo.GetAddressByID(ctx, billingAddressID)
	if err != nil {
		logger.Error("failed to get billing address", slog.Int64("addressID", billingAddressID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: billing address %d: %w", op, billingAddressID, err)
	}
	delivery, err := s.addressRepo.GetAddressByID(ctx, deliveryAddressID)
	if err != nil {
		logger.Error("failed to get delivery address", slog.Int64("addressID", deliveryAddressID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: delivery address %d: %w", op, deliveryAddressID, err)
	}

	// Проверка владения адресами до любых изменений в базе
	if billing.UserID != buyer.ID || delivery.UserID != buyer.ID {
		logger.Warn("address ownership check failed")
		return nil, fmt.Errorf("%s: %w", op, ErrForeignAddress)
	}

	cartItems, err := s.cartRepo.GetItemsByUserID(ctx, buyerID)
	if err != nil {
		logger.Error("failed to load cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load cart: %w", op, err)
	}
	if len(cartItems) == 0 {
		logger.Warn("cart is empty")
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}

	var (
		order    *models.Order
		products []*models.Product
	)
	for attempt := 0; ; attempt++ {
		order, products, err = s.placeOnce(ctx, logger, buyer, billing, delivery, paymentMethod, cartItems)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrProductLocked) && attempt < s.stockRetries {
			logger.Warn("product rows locked, retrying placement", slog.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(s.retryBackoff):
			}
			continue
		}
		if errors.Is(err, storage.ErrProductLocked) {
			// Повторы исчерпаны: конкурирующие оформления удерживают строки товара
			logger.Warn("placement retries exhausted", slog.Int("attempts", attempt+1))
			return nil, fmt.Errorf("%s: %w", op, ErrInsufficientStock)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Заказ зафиксирован; фоновая обработка не влияет на результат вызова
	s.fulfilment.Enqueue(order, products)

	logger.Info("order placed successfully",
		slog.Int64("orderID", order.ID),
		slog.String("total", order.Total().StringFixed(2)),
	)
	return order, nil
}

// placeOnce выполняет одну попытку оформления в рамках одной транзакции
func (s *orderService) placeOnce(
	ctx context.Context,
	logger *slog.Logger,
	buyer *models.User,
	billing, delivery *models.Address,
	paymentMethod models.PaymentMethod,
	cartItems []*models.CartItem,
) (*models.Order, []*models.Product, error) {
	quantityByProduct := make(map[int64]int, len(cartItems))
	productIDs := make([]int64, 0, len(cartItems))
	for _, item := range cartItems {
		quantityByProduct[item.ProductID] = item.Quantity
		productIDs = append(productIDs, item.ProductID)
	}
	// Блокировки берутся в порядке возрастания id во избежание взаимоблокировок
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	products, err := s.productRepo.LockProductsByIDsTx(ctx, tx, productIDs)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		return nil, nil, fmt.Errorf("failed to lock products: %w", err)
	}
	if len(products) != len(productIDs) {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		missing := missingProductID(productIDs, products)
		logger.Error("product from cart no longer exists", slog.Int64("productID", missing))
		return nil, nil, fmt.Errorf("product %d: %w", missing, storage.ErrProductNotFound)
	}

	// Сначала проверяются все позиции, и только потом меняются остатки
	for _, product := range products {
		wanted := quantityByProduct[product.ID]
		if wanted > product.AvailableQuantity {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("not enough stock",
				slog.Int64("productID", product.ID),
				slog.Int("requested", wanted),
				slog.Int("available", product.AvailableQuantity),
			)
			return nil, nil, fmt.Errorf("product %d: %w", product.ID, ErrInsufficientStock)
		}
	}

	order := &models.Order{
		UserID:          buyer.ID,
		PaymentMethod:   paymentMethod,
		Status:          paymentMethod.InitialStatus(),
		BillingAddress:  billing.Snapshot(),
		DeliveryAddress: delivery.Snapshot(),
	}
	for _, product := range products {
		wanted := quantityByProduct[product.ID]
		// Снимок позиции берётся из состояния товара на момент оформления
		order.Items = append(order.Items, models.NewOrderItemSnapshot(product, wanted))

		product.AvailableQuantity -= wanted
		if err := s.productRepo.UpdateAvailableQuantityTx(ctx, tx, product.ID, product.AvailableQuantity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to update product quantity", slog.Int64("productID", product.ID), slog.Any("error", err))
			return nil, nil, fmt.Errorf("failed to update product quantity: %w", err)
		}
	}

	order, err = s.orderRepo.CreateOrderTx(ctx, tx, order)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.cartRepo.DeleteItemsByUserTx(ctx, tx, buyer.ID, productIDs); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to clear cart", slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, products, nil
}

func missingProductID(wanted []int64, got []*models.Product) int64 {
	found := make(map[int64]bool, len(got))
	for _, p := range got {
		found[p.ID] = true
	}
	for _, id := range wanted {
		if !found[id] {
			return id
		}
	}
	return 0
}

func (s *orderService) GetOrders(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	const op = "service.OrderService.GetOrders"
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, buyerID)
	if err != nil {
		s.log.Error("failed to get orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// ConfirmPayment обрабатывает внешний сигнал платёжного шлюза.
// Допустим только переход PENDING_PAYMENT -> PAID; терминальные состояния не меняются.
func (s *orderService) ConfirmPayment(ctx context.Context, orderID int64, sessionID string) error {
	const op = "service.OrderService.ConfirmPayment"
	logger := s.log.With(slog.String("op", op), slog.Int64("orderID", orderID))

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to get order", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !order.Status.CanTransitionTo(models.OrderStatusPaid) {
		logger.Warn("order is not awaiting payment", slog.String("status", string(order.Status)))
		return fmt.Errorf("%s: %w", op, ErrOrderNotPayable)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, models.OrderStatusPaid, &sessionID); err != nil {
		logger.Error("failed to update order status", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("payment confirmed")
	return nil
}
