package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// SnapshotBroadcaster fans a snapshot out to connected clients and reports the
// symbols registered bots are following.
type SnapshotBroadcaster interface {
	BroadcastSnapshot(snapshot models.MarketSnapshot)
	Symbols() []string
}

type MarketSnapshotService struct {
	registry    *ExchangeRegistry
	symbols     []string
	broadcaster SnapshotBroadcaster
	now         func() time.Time
}

func NewMarketSnapshotService(registry *ExchangeRegistry, symbols []string, broadcaster SnapshotBroadcaster) *MarketSnapshotService {
	return &MarketSnapshotService{
		registry:    registry,
		symbols:     symbols,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// PublishOnce builds and broadcasts one snapshot per exchange. An exchange
// that fails is reported in the returned error without holding back the others.
func (mss *MarketSnapshotService) PublishOnce(ctx context.Context) error {
	symbols := mss.trackedSymbols()
	if len(symbols) == 0 {
		return nil
	}
	var errs []error
	for _, client := range mss.registry.All() {
		snapshot, err := mss.Collect(ctx, client, symbols)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s snapshot: %w", client.Name(), err))
			continue
		}
		mss.broadcaster.BroadcastSnapshot(snapshot)
	}
	return errors.Join(errs...)
}

func (mss *MarketSnapshotService) Collect(ctx context.Context, client *ExchangeClient, symbols []string) (models.MarketSnapshot, error) {
	prices, err := client.GetPrices(ctx, symbols)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	snapshot := models.MarketSnapshot{
		Exchange: client.Name(),
		Time:     mss.now(),
		Symbols:  make(map[string]models.SymbolSnapshot, len(symbols)),
	}
	for _, symbol := range symbols {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		openOrders, err := client.GetOpenOrders(ctx, symbol)
		if err != nil {
			return models.MarketSnapshot{}, err
		}
		pairInfo, err := client.PairInfo(ctx, symbol)
		if err != nil {
			helpers.Logger.Debugln(fmt.Sprintf("no pair info for %s: %v", symbol, err))
		}
		snapshot.Symbols[symbol] = models.SymbolSnapshot{
			Symbol:     symbol,
			Price:      price,
			OpenOrders: openOrders,
			PairInfo:   pairInfo,
		}
	}
	return snapshot, nil
}

func (mss *MarketSnapshotService) trackedSymbols() []string {
	set := make(map[string]struct{})
	for _, symbol := range mss.symbols {
		set[helpers.NormalizeSymbol(symbol)] = struct{}{}
	}
	for _, symbol := range mss.broadcaster.Symbols() {
		set[helpers.NormalizeSymbol(symbol)] = struct{}{}
	}
	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
