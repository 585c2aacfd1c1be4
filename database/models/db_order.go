package database

import "time"

// OrderStatusType define order status type
type OrderStatusType string

// OrderType define order type
type OrderType string

// SideType define side type
type SideType string

// Order is unique per (exchange, order_id).
type Order struct {
	ID                      uint            `gorm:"primarykey"`
	Exchange                string          `gorm:"size:32;uniqueIndex:idx_exchange_order"`
	OrderID                 int64           `gorm:"uniqueIndex:idx_exchange_order"`
	Symbol                  string          `gorm:"size:32;index"`
	ClientOrderID           string          `gorm:"size:64"`
	Price                   string          `gorm:"size:64"`
	OrigQuantity            string          `gorm:"size:64"`
	ExecutedQuantity        string          `gorm:"size:64"`
	CumulativeQuoteQuantity string          `gorm:"size:64"`
	Status                  OrderStatusType `gorm:"size:24;index"`
	Type                    OrderType       `gorm:"size:24"`
	Side                    SideType        `gorm:"size:8"`
	Time                    int64
	UpdateTime              int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
