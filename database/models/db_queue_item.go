package database

import "time"

type FilledOrderQueueItem struct {
	ID             uint   `gorm:"primarykey"`
	Exchange       string `gorm:"size:32"`
	BotID          string `gorm:"size:64;index"`
	OrderID        int64
	Symbol         string `gorm:"size:32"`
	DetailsFetched bool
	CreatedAt      time.Time  `gorm:"index"`
	ProcessedAt    *time.Time `gorm:"index"`
}

type PendingOrderItem struct {
	ID             uint   `gorm:"primarykey"`
	Exchange       string `gorm:"size:32"`
	BotID          string `gorm:"size:64;index"`
	OrderID        int64
	Symbol         string `gorm:"size:32"`
	DetailsFetched bool
	CreatedAt      time.Time  `gorm:"index"`
	ProcessedAt    *time.Time `gorm:"index"`
}
