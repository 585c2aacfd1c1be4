package models

import "time"

// QueueItem is a unit of order tracking work. The same shape backs both the
// filled order queue and the pending order list.
type QueueItem struct {
	ID             uint       `json:"id"`
	Exchange       string     `json:"exchange"`
	BotID          string     `json:"botId"`
	OrderID        int64      `json:"orderId"`
	Symbol         string     `json:"symbol"`
	DetailsFetched bool       `json:"detailsFetched"`
	CreatedAt      time.Time  `json:"createdAt"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
}

func (q QueueItem) Processed() bool {
	return q.ProcessedAt != nil
}
