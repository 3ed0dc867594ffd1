package models

import "github.com/shopspring/decimal"

// Product представляет товар, выставленный продавцом.
// AvailableQuantity только уменьшается при успешном оформлении заказа,
// эта подсистема никогда его не увеличивает.
type Product struct {
	ID                int64           `json:"id"`
	SellerID          int64           `json:"seller_id"`
	Name              string          `json:"name"`
	Condition         string          `json:"condition"` // например, "NEW" или "USED"
	ImagePath         string          `json:"image_path,omitempty"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"available_quantity"`
}
