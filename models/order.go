package models

type Order struct {
	Exchange                 string          `json:"exchange"`
	Symbol                   string          `json:"symbol"`
	OrderID                  int64           `json:"orderId"`
	ClientOrderID            string          `json:"clientOrderId"`
	Price                    string          `json:"price"`
	OrigQuantity             string          `json:"origQty"`
	ExecutedQuantity         string          `json:"executedQty"`
	CummulativeQuoteQuantity string          `json:"cummulativeQuoteQty"`
	Status                   OrderStatusType `json:"status"`
	Type                     OrderType       `json:"type"`
	Side                     SideType        `json:"side"`
	Time                     int64           `json:"time"`
	UpdateTime               int64           `json:"updateTime"`
}

// OrderStatusType define order status type
type OrderStatusType string

// OrderType define order type
type OrderType string

// SideType define side type
type SideType string

// Global enums
const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	OrderStatusTypeNew             OrderStatusType = "NEW"
	OrderStatusTypePartiallyFilled OrderStatusType = "PARTIALLY_FILLED"
	OrderStatusTypeFilled          OrderStatusType = "FILLED"
	OrderStatusTypeCanceled        OrderStatusType = "CANCELED"
)

func NewOrder(exchange string, symbol string, orderID int64, clientOrderID string, price string, origQty string,
	executedQty string, quoteQty string, status OrderStatusType, orderType OrderType, side SideType,
	time int64, updateTime int64) Order {
	return Order{
		Exchange:                 exchange,
		Symbol:                   symbol,
		OrderID:                  orderID,
		ClientOrderID:            clientOrderID,
		Price:                    price,
		OrigQuantity:             origQty,
		ExecutedQuantity:         executedQty,
		CummulativeQuoteQuantity: quoteQty,
		Status:                   status,
		Type:                     orderType,
		Side:                     side,
		Time:                     time,
		UpdateTime:               updateTime,
	}
}

func (o Order) IsFilled() bool {
	return o.Status == OrderStatusTypeFilled
}

// NormalizeStatus folds exchange specific terminal states onto the four tracked ones.
func NormalizeStatus(status string) OrderStatusType {
	switch OrderStatusType(status) {
	case OrderStatusTypeNew, OrderStatusTypePartiallyFilled, OrderStatusTypeFilled, OrderStatusTypeCanceled:
		return OrderStatusType(status)
	case "PENDING_CANCEL", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return OrderStatusTypeCanceled
	default:
		return OrderStatusTypeNew
	}
}

// OrderRequest is what a bot asks the exchange to place.
type OrderRequest struct {
	Symbol   string    `json:"symbol"`
	Side     SideType  `json:"side"`
	Type     OrderType `json:"type"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
}

func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "is required"}
	}
	if r.Side != SideTypeBuy && r.Side != SideTypeSell {
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if r.Type != OrderTypeLimit && r.Type != OrderTypeMarket {
		return &ValidationError{Field: "type", Reason: "must be LIMIT or MARKET"}
	}
	if r.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if r.Type == OrderTypeLimit && r.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive for LIMIT orders"}
	}
	return nil
}
