package interfaces

import (
	"context"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/models"
)

type OrderStore interface {
	UpsertOrder(ctx context.Context, order models.Order) error
	UpsertOrders(ctx context.Context, orders []models.Order) error
	GetOrder(ctx context.Context, exchange string, orderId int64) (models.Order, error)
	FindOrders(ctx context.Context, exchange string, symbol string) ([]models.Order, error)
}

type FilledOrderQueueStore interface {
	EnqueueFilledOrders(ctx context.Context, items []models.QueueItem) error
	NextUnprocessed(ctx context.Context, limit int) ([]models.QueueItem, error)
	MarkProcessed(ctx context.Context, id uint, at time.Time) (bool, error)
	PurgeProcessed(ctx context.Context, before time.Time) (int64, error)
}

type PendingOrderStore interface {
	AddPendingOrder(ctx context.Context, item models.QueueItem) error
	NextPending(ctx context.Context, limit int) ([]models.QueueItem, error)
	MarkPendingProcessed(ctx context.Context, id uint, at time.Time) (bool, error)
	PurgeProcessedPending(ctx context.Context, before time.Time) (int64, error)
}

// BotNotifier pushes a message to one registered bot. It reports whether the
// bot had a live connection at send time.
type BotNotifier interface {
	SendToBot(botId string, msgType string, data interface{}) bool
}
