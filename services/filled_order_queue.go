package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

const FilledOrderMessage = "filled-order"

// FilledOrderQueue accepts detail-fetch requests from bots. Duplicates are
// accepted as is; processing them is an idempotent upsert.
type FilledOrderQueue struct {
	store           interfaces.FilledOrderQueueStore
	defaultExchange string
	retention       time.Duration
	now             func() time.Time
}

func NewFilledOrderQueue(store interfaces.FilledOrderQueueStore, defaultExchange string, retention time.Duration) *FilledOrderQueue {
	return &FilledOrderQueue{
		store:           store,
		defaultExchange: defaultExchange,
		retention:       retention,
		now:             time.Now,
	}
}

func (foq *FilledOrderQueue) Enqueue(ctx context.Context, exchange string, botId string, symbol string, orderIds []int64) error {
	if botId == "" {
		return &models.ValidationError{Field: "botId", Reason: "is required"}
	}
	if symbol == "" {
		return &models.ValidationError{Field: "symbol", Reason: "is required"}
	}
	if len(orderIds) == 0 {
		return &models.ValidationError{Field: "orderIds", Reason: "must not be empty"}
	}
	if exchange == "" {
		exchange = foq.defaultExchange
	}

	createdAt := foq.now()
	items := make([]models.QueueItem, 0, len(orderIds))
	for _, orderId := range orderIds {
		items = append(items, models.QueueItem{
			Exchange:  exchange,
			BotID:     botId,
			OrderID:   orderId,
			Symbol:    symbol,
			CreatedAt: createdAt,
		})
	}
	return foq.store.EnqueueFilledOrders(ctx, items)
}

// PurgeExpired deletes processed items older than the retention window.
func (foq *FilledOrderQueue) PurgeExpired(ctx context.Context) error {
	purged, err := foq.store.PurgeProcessed(ctx, foq.now().Add(-foq.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		helpers.Logger.Infoln(fmt.Sprintf("purged %d processed filled order items", purged))
	}
	return nil
}

// QueueProcessor drains the filled order queue on every tick.
type QueueProcessor struct {
	queue     interfaces.FilledOrderQueueStore
	orders    interfaces.OrderStore
	registry  *ExchangeRegistry
	notifier  interfaces.BotNotifier
	batchSize int
	now       func() time.Time
}

func NewQueueProcessor(queue interfaces.FilledOrderQueueStore, orders interfaces.OrderStore, registry *ExchangeRegistry,
	notifier interfaces.BotNotifier, batchSize int) *QueueProcessor {
	return &QueueProcessor{
		queue:     queue,
		orders:    orders,
		registry:  registry,
		notifier:  notifier,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// ProcessOnce handles up to batchSize unprocessed items, oldest first. Items
// run concurrently; the exchange limiter bounds how many calls are in flight.
// A failed item stays unprocessed for a later tick.
func (qp *QueueProcessor) ProcessOnce(ctx context.Context) error {
	items, err := qp.queue.NextUnprocessed(ctx, qp.batchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item models.QueueItem) {
			defer wg.Done()
			if err := qp.processItem(ctx, item); err != nil {
				helpers.QueueItemFailures.Inc()
				helpers.Logger.WithFields(map[string]interface{}{
					"botId":   item.BotID,
					"orderId": item.OrderID,
					"symbol":  item.Symbol,
				}).Warnln("filled order item left unprocessed: " + err.Error())
			}
		}(item)
	}
	wg.Wait()
	return nil
}

func (qp *QueueProcessor) processItem(ctx context.Context, item models.QueueItem) error {
	client, err := qp.registry.Get(item.Exchange)
	if err != nil {
		return err
	}
	order, err := client.GetOrder(ctx, item.Symbol, item.OrderID)
	if err != nil {
		return err
	}
	if err := qp.orders.UpsertOrder(ctx, order); err != nil {
		return err
	}
	marked, err := qp.queue.MarkProcessed(ctx, item.ID, qp.now())
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}
	helpers.QueueItemsProcessed.Inc()
	if !qp.notifier.SendToBot(item.BotID, FilledOrderMessage, order) {
		helpers.Logger.WithFields(map[string]interface{}{
			"botId":   item.BotID,
			"orderId": item.OrderID,
		}).Infoln("bot not connected, filled order notification dropped")
	}
	return nil
}
