package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/storage"
)

// CartService определяет операции над корзиной покупателя.
type CartService interface {
	AddToCart(ctx context.Context, userID, productID int64, quantity int) (*CartLine, error)
	GetCart(ctx context.Context, userID int64) (*CartResponse, error)
	RemoveFromCart(ctx context.Context, userID, productID int64) error
}

// CartLine — позиция корзины с производной стоимостью:
// цена товара * количество, half-up до 2 знаков
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LinePrice decimal.Decimal `json:"line_price"`
}

type CartResponse struct {
	Items []CartLine      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type cartService struct {
	log         *slog.Logger
	cartRepo    storage.CartStorage
	productRepo storage.ProductStorage
}

func NewCartService(log *slog.Logger, cartRepo storage.CartStorage, productRepo storage.ProductStorage) CartService {
	return &cartService{
		log:         log,
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// AddToCart добавляет товар в корзину. Повторное добавление того же товара
// суммирует количество: на пару (пользователь, товар) всегда одна позиция.
func (s *cartService) AddToCart(ctx context.Context, userID, productID int64, quantity int) (*CartLine, error) {
	const op = "service.CartService.AddToCart"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", userID),
		slog.Int64("productID", productID),
	)

	if quantity < 1 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}

	product, err := s.productRepo.GetProductByID(ctx, productID)
	if err != nil {
		logger.Error("failed to get product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	item, err := s.cartRepo.UpsertItem(ctx, userID, productID, quantity)
	if err != nil {
		logger.Error("failed to upsert cart item", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("item added to cart", slog.Int("quantity", item.Quantity))
	return &CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  item.Quantity,
		UnitPrice: product.Price,
		LinePrice: models.LinePrice(product.Price, item.Quantity),
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID int64) (*CartResponse, error) {
	const op = "service.CartService.GetCart"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	items, err := s.cartRepo.GetItemsByUserID(ctx, userID)
	if err != nil {
		logger.Error("failed to load cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp := &CartResponse{Items: []CartLine{}, Total: decimal.Zero}
	for _, item := range items {
		product, err := s.productRepo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			logger.Error("failed to get product for cart line",
				slog.Int64("productID", item.ProductID),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("%s: product %d: %w", op, item.ProductID, err)
		}
		line := CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			LinePrice: models.LinePrice(product.Price, item.Quantity),
		}
		resp.Items = append(resp.Items, line)
		resp.Total = resp.Total.Add(line.LinePrice)
	}
	resp.Total = resp.Total.Round(2)
	return resp, nil
}

func (s *cartService) RemoveFromCart(ctx context.Context, userID, productID int64) error {
	const op = "service.CartService.RemoveFromCart"
	if err := s.cartRepo.DeleteItem(ctx, userID, productID); err != nil {
		s.log.Error("failed to remove cart item", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
