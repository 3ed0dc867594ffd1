package service

import "errors"

// Ошибки бизнес-правил. Оформление заказа прерывается до любой мутации,
// поэтому при этих ошибках в базе ничего не меняется.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrForeignAddress    = errors.New("addresses belong to another user")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrOrderNotPayable   = errors.New("order cannot be paid in its current status")
)
