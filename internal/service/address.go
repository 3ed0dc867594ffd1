package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/storage"
)

// AddressService определяет операции над адресной книгой пользователя.
type AddressService interface {
	Create(ctx context.Context, address *models.Address) (*models.Address, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Address, error)
}

type addressService struct {
	log         *slog.Logger
	addressRepo storage.AddressStorage
}

func NewAddressService(log *slog.Logger, addressRepo storage.AddressStorage) AddressService {
	return &addressService{
		log:         log,
		addressRepo: addressRepo,
	}
}

func (s *addressService) Create(ctx context.Context, address *models.Address) (*models.Address, error) {
	const op = "service.AddressService.Create"
	created, err := s.addressRepo.CreateAddress(ctx, address)
	if err != nil {
		s.log.Error("failed to create address", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

func (s *addressService) ListByUser(ctx context.Context, userID int64) ([]*models.Address, error) {
	const op = "service.AddressService.ListByUser"
	addresses, err := s.addressRepo.GetAddressesByUserID(ctx, userID)
	if err != nil {
		s.log.Error("failed to list addresses", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return addresses, nil
}
