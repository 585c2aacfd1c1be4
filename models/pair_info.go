package models

type PairInfo struct {
	Symbol    string  `json:"symbol"`
	Max       float64 `json:"maxQty"`
	Min       float64 `json:"minQty"`
	StepSize  float64 `json:"stepSize"`
	TickSize  float64 `json:"tickSize"`
	Precision int     `json:"precision"`
}

func NewPairInfo(symbol string, max float64, min float64, step float64, tick float64, precision int) *PairInfo {
	return &PairInfo{
		Symbol:    symbol,
		Max:       max,
		Min:       min,
		StepSize:  step,
		TickSize:  tick,
		Precision: precision,
	}
}
