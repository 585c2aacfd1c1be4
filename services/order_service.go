package services

import (
	"context"
	"errors"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

type OrderService struct {
	registry *ExchangeRegistry
	orders   interfaces.OrderStore
	pending  *PendingOrderMonitor
}

func NewOrderService(registry *ExchangeRegistry, orders interfaces.OrderStore, pending *PendingOrderMonitor) *OrderService {
	return &OrderService{
		registry: registry,
		orders:   orders,
		pending:  pending,
	}
}

// PlaceOrder places the order, records it and, unless it filled immediately,
// hands it to the pending order monitor.
func (ors *OrderService) PlaceOrder(ctx context.Context, exchange string, botId string, request models.OrderRequest) (models.Order, error) {
	if botId == "" {
		return models.Order{}, &models.ValidationError{Field: "botId", Reason: "is required"}
	}
	request.Symbol = helpers.NormalizeSymbol(request.Symbol)
	client, err := ors.registry.Get(exchange)
	if err != nil {
		return models.Order{}, err
	}
	order, err := client.PlaceOrder(ctx, request)
	if err != nil {
		return models.Order{}, err
	}
	if err := ors.orders.UpsertOrder(ctx, order); err != nil {
		return order, err
	}
	if !order.IsFilled() {
		if err := ors.pending.Track(ctx, botId, order); err != nil {
			return order, err
		}
	}
	return order, nil
}

func (ors *OrderService) CancelOrder(ctx context.Context, exchange string, symbol string, orderId int64) (models.Order, error) {
	client, err := ors.registry.Get(exchange)
	if err != nil {
		return models.Order{}, err
	}
	order, err := client.CancelOrder(ctx, symbol, orderId)
	if err != nil {
		return models.Order{}, err
	}
	return order, ors.orders.UpsertOrder(ctx, order)
}

// CancelAllOrders stores every order that was canceled even when some
// cancellations failed.
func (ors *OrderService) CancelAllOrders(ctx context.Context, exchange string, symbol string) ([]models.Order, error) {
	client, err := ors.registry.Get(exchange)
	if err != nil {
		return nil, err
	}
	canceled, cancelErr := client.CancelAllOrders(ctx, symbol)
	if err := ors.orders.UpsertOrders(ctx, canceled); err != nil {
		return canceled, errors.Join(cancelErr, err)
	}
	return canceled, cancelErr
}
