package models

import "time"

type SymbolSnapshot struct {
	Symbol     string    `json:"symbol"`
	Price      string    `json:"price"`
	OpenOrders []Order   `json:"openOrders"`
	PairInfo   *PairInfo `json:"pairInfo,omitempty"`
}

type MarketSnapshot struct {
	Exchange string                    `json:"exchange"`
	Time     time.Time                 `json:"time"`
	Symbols  map[string]SymbolSnapshot `json:"symbols"`
}

// SymbolSlice is the part of a snapshot a single bot receives.
type SymbolSlice struct {
	Exchange string    `json:"exchange"`
	Time     time.Time `json:"time"`
	SymbolSnapshot
}

func (s MarketSnapshot) Slice(symbol string) (SymbolSlice, bool) {
	symbolSnapshot, ok := s.Symbols[symbol]
	if !ok {
		return SymbolSlice{}, false
	}
	return SymbolSlice{Exchange: s.Exchange, Time: s.Time, SymbolSnapshot: symbolSnapshot}, true
}
