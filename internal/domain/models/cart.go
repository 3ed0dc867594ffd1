package models

import "time"

// CartItem представляет позицию корзины.
// Инвариант: не более одной записи на пару (пользователь, товар).
type CartItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}
