package services

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// PendingOrderMonitor polls orders that were placed but not yet seen FILLED.
type PendingOrderMonitor struct {
	pending   interfaces.PendingOrderStore
	orders    interfaces.OrderStore
	registry  *ExchangeRegistry
	batchSize int
	retention time.Duration
	now       func() time.Time
}

func NewPendingOrderMonitor(pending interfaces.PendingOrderStore, orders interfaces.OrderStore, registry *ExchangeRegistry,
	batchSize int, retention time.Duration) *PendingOrderMonitor {
	return &PendingOrderMonitor{
		pending:   pending,
		orders:    orders,
		registry:  registry,
		batchSize: batchSize,
		retention: retention,
		now:       time.Now,
	}
}

func (pom *PendingOrderMonitor) Track(ctx context.Context, botId string, order models.Order) error {
	return pom.pending.AddPendingOrder(ctx, models.QueueItem{
		Exchange:  order.Exchange,
		BotID:     botId,
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		CreatedAt: pom.now(),
	})
}

// CheckOnce polls up to batchSize pending orders. FILLED orders are stored and
// their item marked processed; canceled ones are stored and dropped from
// tracking. Per item errors are logged and the batch continues.
func (pom *PendingOrderMonitor) CheckOnce(ctx context.Context) error {
	items, err := pom.pending.NextPending(ctx, pom.batchSize)
	if err != nil {
		return err
	}

	filled := 0
	for _, item := range items {
		done, err := pom.checkItem(ctx, item)
		if err != nil {
			helpers.Logger.WithFields(map[string]interface{}{
				"exchange": item.Exchange,
				"orderId":  item.OrderID,
				"symbol":   item.Symbol,
			}).Warnln("pending order check failed: " + err.Error())
			continue
		}
		if done {
			filled++
		}
	}
	if len(items) > 0 {
		helpers.Logger.Infoln(fmt.Sprintf("checked %d pending orders, %d settled", len(items), filled))
	}
	return nil
}

func (pom *PendingOrderMonitor) checkItem(ctx context.Context, item models.QueueItem) (bool, error) {
	client, err := pom.registry.Get(item.Exchange)
	if err != nil {
		return false, err
	}
	order, err := client.GetOrder(ctx, item.Symbol, item.OrderID)
	if err != nil {
		return false, err
	}
	if order.Status != models.OrderStatusTypeFilled && order.Status != models.OrderStatusTypeCanceled {
		return false, nil
	}
	if err := pom.orders.UpsertOrder(ctx, order); err != nil {
		return false, err
	}
	if _, err := pom.pending.MarkPendingProcessed(ctx, item.ID, pom.now()); err != nil {
		return false, err
	}
	if order.IsFilled() {
		helpers.PendingOrdersFilled.Inc()
	}
	return true, nil
}

func (pom *PendingOrderMonitor) PurgeExpired(ctx context.Context) error {
	purged, err := pom.pending.PurgeProcessedPending(ctx, pom.now().Add(-pom.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		helpers.Logger.Infoln(fmt.Sprintf("purged %d processed pending orders", purged))
	}
	return nil
}
