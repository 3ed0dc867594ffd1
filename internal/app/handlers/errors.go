package handlers

import (
	"errors"
	"net/http"

	"github.com/tmeras/resellmart/internal/service"
	"github.com/tmeras/resellmart/internal/storage"
)

// statusForError отображает ошибки бизнес-слоя в коды HTTP-ответов:
// отсутствующие сущности — 404, нарушения бизнес-правил — 400,
// исчерпанные повторы из-за конкурирующих оформлений — 409.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrAddressNotFound),
		errors.Is(err, storage.ErrProductNotFound),
		errors.Is(err, storage.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrProductLocked):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrForeignAddress),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrOrderNotPayable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
