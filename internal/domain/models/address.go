package models

import "fmt"

// Address представляет адрес из адресной книги пользователя
type Address struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	Line       string `json:"line"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Snapshot собирает адрес в одну строку для сохранения внутри заказа.
// Заказ хранит копию адреса, а не ссылку, поэтому последующее изменение
// адресной книги не трогает уже оформленные заказы.
func (a *Address) Snapshot() string {
	return fmt.Sprintf("%s, %s, %s, %s", a.Line, a.City, a.PostalCode, a.Country)
}
