package models

// Execution is a single trade fill belonging to an order.
type Execution struct {
	ExecID   int64    `json:"execId"`
	OrderID  int64    `json:"orderId"`
	Symbol   string   `json:"symbol"`
	Side     SideType `json:"side"`
	Price    string   `json:"price"`
	Quantity string   `json:"qty"`
	Value    string   `json:"value"`
	Fee      string   `json:"fee"`
	FeeAsset string   `json:"feeAsset"`
	Time     int64    `json:"time"`
}
