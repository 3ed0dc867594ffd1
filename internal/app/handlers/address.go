package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/jwt-new/jwtmiddleware"
	"github.com/tmeras/resellmart/internal/service"
)

// CreateAddressRequest представляет входной JSON добавления адреса
type CreateAddressRequest struct {
	Line       string `json:"line" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// CreateAddressHandler обрабатывает запрос POST /api/address
func CreateAddressHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateAddressHandler"
		logger := log.With(slog.String("op", op))

		var req CreateAddressRequest
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

		address := &models.Address{
			UserID:     userID,
			Line:       req.Line,
			City:       req.City,
			PostalCode: req.PostalCode,
			Country:    req.Country,
		}
		created, err := addressService.Create(r.Context(), address)
		if err != nil {
			logger.Error("failed to create address", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(created); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}

// AddressesHandler обрабатывает запрос GET /api/address
func AddressesHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddressesHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		addresses, err := addressService.ListByUser(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list addresses", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(addresses); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}
