package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sdcoffey/big"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ChunkWindows splits [start, end) into consecutive windows no longer than
// maxWindow. The last window may be shorter.
func ChunkWindows(start time.Time, end time.Time, maxWindow time.Duration) []TimeWindow {
	var windows []TimeWindow
	if maxWindow <= 0 || !start.Before(end) {
		return windows
	}
	for chunkStart := start; chunkStart.Before(end); chunkStart = chunkStart.Add(maxWindow) {
		chunkEnd := chunkStart.Add(maxWindow)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		windows = append(windows, TimeWindow{Start: chunkStart, End: chunkEnd})
	}
	return windows
}

type HistoryReconciler struct {
	registry  *ExchangeRegistry
	store     interfaces.OrderStore
	maxWindow time.Duration
}

func NewHistoryReconciler(registry *ExchangeRegistry, store interfaces.OrderStore, maxWindow time.Duration) *HistoryReconciler {
	return &HistoryReconciler{
		registry:  registry,
		store:     store,
		maxWindow: maxWindow,
	}
}

// Reconcile fetches FILLED order history and executions for [start, end) one
// chunk at a time and merges them. Orders known only through their executions
// are reconstructed. Any chunk failure fails the whole run with
// models.ErrHistoryIncomplete.
func (hr *HistoryReconciler) Reconcile(ctx context.Context, exchange string, symbol string, start time.Time,
	end time.Time) ([]models.Order, error) {
	if symbol == "" {
		return nil, &models.ValidationError{Field: "symbol", Reason: "is required"}
	}
	if !start.Before(end) {
		return nil, &models.ValidationError{Field: "range", Reason: "start must be before end"}
	}
	client, err := hr.registry.Get(exchange)
	if err != nil {
		return nil, err
	}

	maxWindow := hr.maxWindow
	if limit := client.MaxQueryWindow(); limit > 0 && limit < maxWindow {
		maxWindow = limit
	}

	merged := make(map[int64]models.Order)
	for _, window := range ChunkWindows(start, end, maxWindow) {
		chunk, err := hr.reconcileChunk(ctx, client, symbol, window)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s chunk %s - %s: %w", models.ErrHistoryIncomplete, exchange, symbol,
				window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), err)
		}
		for orderId, order := range chunk {
			if _, seen := merged[orderId]; !seen {
				merged[orderId] = order
			}
		}
	}

	orders := make([]models.Order, 0, len(merged))
	for _, order := range merged {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].UpdateTime != orders[j].UpdateTime {
			return orders[i].UpdateTime < orders[j].UpdateTime
		}
		return orders[i].OrderID < orders[j].OrderID
	})
	return orders, nil
}

func (hr *HistoryReconciler) reconcileChunk(ctx context.Context, client *ExchangeClient, symbol string,
	window TimeWindow) (map[int64]models.Order, error) {
	// exchange time filters are inclusive at both ends
	queryEnd := window.End.Add(-time.Millisecond)

	history, err := client.GetOrderHistory(ctx, symbol, window.Start, queryEnd)
	if err != nil {
		return nil, err
	}
	executions, err := client.GetExecutions(ctx, symbol, window.Start, queryEnd)
	if err != nil {
		return nil, err
	}

	chunk := make(map[int64]models.Order)
	for _, order := range history {
		if order.IsFilled() {
			chunk[order.OrderID] = order
		}
	}

	var missing []int64
	executionsByOrder := make(map[int64][]models.Execution)
	for _, execution := range executions {
		if _, known := chunk[execution.OrderID]; known {
			continue
		}
		if _, seen := executionsByOrder[execution.OrderID]; !seen {
			missing = append(missing, execution.OrderID)
		}
		executionsByOrder[execution.OrderID] = append(executionsByOrder[execution.OrderID], execution)
	}

	for _, orderId := range missing {
		order, err := ReconstructOrder(client.Name(), symbol, orderId, executionsByOrder[orderId])
		if err != nil {
			helpers.Logger.Warnln(fmt.Sprintf("skipping reconstruction of order %d: %v", orderId, err))
			continue
		}
		chunk[orderId] = order
	}
	return chunk, nil
}

// Sync reconciles the range and persists every resulting order. Nothing is
// written unless the whole range was fetched.
func (hr *HistoryReconciler) Sync(ctx context.Context, exchange string, symbol string, start time.Time,
	end time.Time) (int, error) {
	runId := uuid.NewString()
	logger := helpers.Logger.WithFields(map[string]interface{}{
		"run":      runId,
		"exchange": exchange,
		"symbol":   symbol,
	})
	logger.Infoln(fmt.Sprintf("history sync started for %s - %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))

	orders, err := hr.Reconcile(ctx, exchange, symbol, start, end)
	if err != nil {
		helpers.Logger.Notify(fmt.Sprintf("history sync %s failed: %v", runId, err))
		return 0, err
	}
	if err := hr.store.UpsertOrders(ctx, orders); err != nil {
		return 0, err
	}
	logger.Infoln(fmt.Sprintf("history sync stored %d orders", len(orders)))
	return len(orders), nil
}

// ReconstructOrder derives a FILLED order from its executions.
func ReconstructOrder(exchange string, symbol string, orderId int64, executions []models.Execution) (models.Order, error) {
	if len(executions) == 0 {
		return models.Order{}, &models.ValidationError{Field: "executions", Reason: "no executions"}
	}
	quantity := big.NewDecimal(0)
	value := big.NewDecimal(0)
	created := executions[0].Time
	updated := executions[0].Time
	for _, execution := range executions {
		quantity = quantity.Add(big.NewFromString(execution.Quantity))
		value = value.Add(big.NewFromString(execution.Value))
		if execution.Time < created {
			created = execution.Time
		}
		if execution.Time > updated {
			updated = execution.Time
		}
	}
	if quantity.Float() == 0 {
		return models.Order{}, &models.ValidationError{Field: "executions", Reason: "zero executed quantity"}
	}
	avgPrice := value.Div(quantity)

	return models.NewOrder(exchange, symbol, orderId, "", helpers.DecimalString(avgPrice), helpers.DecimalString(quantity),
		helpers.DecimalString(quantity), helpers.DecimalString(value), models.OrderStatusTypeFilled, "", executions[0].Side, created, updated), nil
}
