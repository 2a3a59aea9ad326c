package models

import "gorm.io/gorm"

// OrderRecord is one order accepted by the exchange, written when a strategy places it.
// Decimal values are stored in their exchange string form.
type OrderRecord struct {
	gorm.Model
	RunID         string `gorm:"index" json:"run_id"`
	Strategy      string `gorm:"index" json:"strategy"` // "market", "limit", "stoplimit", "twap", "grid", "oco"
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	OrderID       int64  `gorm:"index" json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
}
