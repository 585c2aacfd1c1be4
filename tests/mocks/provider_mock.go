package mocks

import (
	"context"
	"sync"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/models"
)

type Window struct {
	Start time.Time
	End   time.Time
}

// ExchangeMock is a scriptable in-memory exchange. Every field may be set
// before use; calls are recorded for assertions.
type ExchangeMock struct {
	ExchangeName string
	History      []models.Order
	Executions   []models.Execution
	Orders       map[int64]models.Order
	OpenOrders   map[string][]models.Order
	Prices       map[string]string
	PairInfo     map[string]*models.PairInfo

	// Errors keyed by operation name, e.g. "GetOrder". OrderErrors fails GetOrder for single ids.
	Errors      map[string]error
	OrderErrors map[int64]error
	// FailHistoryCall makes the n-th GetOrderHistory call (1-based) fail with Errors["GetOrderHistory"].
	FailHistoryCall int
	// QueryWindow is the history span cap reported through MaxQueryWindow; zero means none.
	QueryWindow time.Duration

	mutex            sync.Mutex
	calls            map[string]int
	historyWindows   []Window
	executionWindows []Window
	inFlight         int
	maxInFlight      int
	placed           []models.OrderRequest
	Delay            time.Duration
}

func NewExchangeMock(name string) *ExchangeMock {
	return &ExchangeMock{
		ExchangeName: name,
		Orders:       make(map[int64]models.Order),
		OpenOrders:   make(map[string][]models.Order),
		Prices:       make(map[string]string),
		PairInfo:     make(map[string]*models.PairInfo),
		Errors:       make(map[string]error),
		OrderErrors:  make(map[int64]error),
	}
}

func (m *ExchangeMock) Name() string {
	return m.ExchangeName
}

func (m *ExchangeMock) MaxQueryWindow() time.Duration {
	return m.QueryWindow
}

func (m *ExchangeMock) Calls(op string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls[op]
}

func (m *ExchangeMock) HistoryWindows() []Window {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]Window(nil), m.historyWindows...)
}

func (m *ExchangeMock) ExecutionWindows() []Window {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]Window(nil), m.executionWindows...)
}

func (m *ExchangeMock) MaxInFlight() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.maxInFlight
}

func (m *ExchangeMock) Placed() []models.OrderRequest {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]models.OrderRequest(nil), m.placed...)
}

func (m *ExchangeMock) enter(op string) (int, error) {
	m.mutex.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
	n := m.calls[op]
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	err := m.Errors[op]
	delay := m.Delay
	m.mutex.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return n, err
}

func (m *ExchangeMock) leave() {
	m.mutex.Lock()
	m.inFlight--
	m.mutex.Unlock()
}

func (m *ExchangeMock) GetOrderHistory(ctx context.Context, symbol string, start time.Time, end time.Time) ([]models.Order, error) {
	n, err := m.enter("GetOrderHistory")
	defer m.leave()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.historyWindows = append(m.historyWindows, Window{Start: start, End: end})
	if err != nil && (m.FailHistoryCall == 0 || m.FailHistoryCall == n) {
		return nil, err
	}
	var out []models.Order
	for _, order := range m.History {
		if order.Symbol == symbol && order.IsFilled() && within(order.Time, start, end) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *ExchangeMock) GetExecutions(ctx context.Context, symbol string, start time.Time, end time.Time) ([]models.Execution, error) {
	_, err := m.enter("GetExecutions")
	defer m.leave()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.executionWindows = append(m.executionWindows, Window{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	var out []models.Execution
	for _, execution := range m.Executions {
		if execution.Symbol == symbol && within(execution.Time, start, end) {
			out = append(out, execution)
		}
	}
	return out, nil
}

func (m *ExchangeMock) GetOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	_, err := m.enter("GetOrder")
	defer m.leave()
	if err != nil {
		return models.Order{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if orderErr := m.OrderErrors[orderId]; orderErr != nil {
		return models.Order{}, orderErr
	}
	order, ok := m.Orders[orderId]
	if !ok {
		return models.Order{}, &models.NotFoundError{Entity: "order", Key: symbol}
	}
	return order, nil
}

func (m *ExchangeMock) CancelOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	_, err := m.enter("CancelOrder")
	defer m.leave()
	if err != nil {
		return models.Order{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	order, ok := m.Orders[orderId]
	if !ok {
		return models.Order{}, &models.NotFoundError{Entity: "order", Key: symbol}
	}
	if !order.IsFilled() {
		order.Status = models.OrderStatusTypeCanceled
		m.Orders[orderId] = order
	}
	open := m.OpenOrders[symbol][:0]
	for _, o := range m.OpenOrders[symbol] {
		if o.OrderID != orderId {
			open = append(open, o)
		}
	}
	m.OpenOrders[symbol] = open
	return order, nil
}

func (m *ExchangeMock) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	_, err := m.enter("GetOpenOrders")
	defer m.leave()
	if err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]models.Order(nil), m.OpenOrders[symbol]...), nil
}

func (m *ExchangeMock) MakeOrder(ctx context.Context, request models.OrderRequest) (models.Order, error) {
	_, err := m.enter("MakeOrder")
	defer m.leave()
	if err != nil {
		return models.Order{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.placed = append(m.placed, request)
	id := int64(len(m.placed)) + 1000
	order := models.Order{
		Exchange: m.ExchangeName, Symbol: request.Symbol, OrderID: id, Status: models.OrderStatusTypeNew,
		Type: request.Type, Side: request.Side, Time: time.Now().UnixMilli(), UpdateTime: time.Now().UnixMilli(),
	}
	m.Orders[id] = order
	return order, nil
}

func (m *ExchangeMock) GetPrices(ctx context.Context, symbols []string) (map[string]string, error) {
	_, err := m.enter("GetPrices")
	defer m.leave()
	if err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make(map[string]string)
	for _, symbol := range symbols {
		if price, ok := m.Prices[symbol]; ok {
			out[symbol] = price
		}
	}
	return out, nil
}

func (m *ExchangeMock) GetPairInfo(ctx context.Context, symbol string) (*models.PairInfo, error) {
	_, err := m.enter("GetPairInfo")
	defer m.leave()
	if err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, ok := m.PairInfo[symbol]; ok {
		return info, nil
	}
	return models.NewPairInfo(symbol, 1000, 0.001, 0.001, 0.01, 8), nil
}

func within(millis int64, start time.Time, end time.Time) bool {
	return millis >= start.UnixMilli() && millis <= end.UnixMilli()
}
