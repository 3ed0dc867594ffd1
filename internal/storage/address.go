package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tmeras/resellmart/internal/domain/models"
)

var ErrAddressNotFound = errors.New("address not found")

// AddressStorage описывает методы для работы с адресной книгой пользователей.
type AddressStorage interface {
	// GetAddressByID получает адрес по его идентификатору.
	GetAddressByID(ctx context.Context, id int64) (*models.Address, error)
	// CreateAddress добавляет новый адрес в адресную книгу пользователя.
	CreateAddress(ctx context.Context, address *models.Address) (*models.Address, error)
	// GetAddressesByUserID возвращает все адреса пользователя.
	GetAddressesByUserID(ctx context.Context, userID int64) ([]*models.Address, error)
}

type addressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) AddressStorage {
	return &addressRepository{db: db}
}

func (r *addressRepository) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	address := &models.Address{}
	query := "SELECT id, user_id, line, city, postal_code, country FROM addresses WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id)
	if err := row.Scan(&address.ID, &address.UserID, &address.Line, &address.City, &address.PostalCode, &address.Country); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return address, nil
}

func (r *addressRepository) CreateAddress(ctx context.Context, address *models.Address) (*models.Address, error) {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO addresses (user_id, line, city, postal_code, country) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		address.UserID, address.Line, address.City, address.PostalCode, address.Country,
	).Scan(&address.ID)
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (r *addressRepository) GetAddressesByUserID(ctx context.Context, userID int64) ([]*models.Address, error) {
	query := `
		SELECT id, user_id, line, city, postal_code, country
		FROM addresses
		WHERE user_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []*models.Address
	for rows.Next() {
		address := &models.Address{}
		if err := rows.Scan(&address.ID, &address.UserID, &address.Line, &address.City, &address.PostalCode, &address.Country); err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}
