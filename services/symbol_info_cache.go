package services

import (
	"context"
	"sync"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// SymbolInfoCache keeps trading rules per symbol. Entries are loaded on first
// use and never expire. A symbol the exchange does not list is remembered as
// missing too; other load failures are retried on the next call.
type SymbolInfoCache struct {
	mutex   sync.RWMutex
	pairs   map[string]*models.PairInfo
	missing map[string]error
}

func NewSymbolInfoCache() *SymbolInfoCache {
	return &SymbolInfoCache{
		pairs:   make(map[string]*models.PairInfo),
		missing: make(map[string]error),
	}
}

func (sic *SymbolInfoCache) Get(ctx context.Context, symbol string,
	load func(ctx context.Context, symbol string) (*models.PairInfo, error)) (*models.PairInfo, error) {
	sic.mutex.RLock()
	pairInfo, ok := sic.pairs[symbol]
	missingErr := sic.missing[symbol]
	sic.mutex.RUnlock()
	if ok {
		return pairInfo, nil
	}
	if missingErr != nil {
		return nil, missingErr
	}

	loaded, err := load(ctx, symbol)
	if err != nil {
		if models.KindOf(err) == models.KindNotFound {
			sic.mutex.Lock()
			if _, seen := sic.missing[symbol]; !seen {
				sic.missing[symbol] = err
				helpers.Logger.Warnln("no trading rules for " + symbol + ": " + err.Error())
			}
			sic.mutex.Unlock()
		}
		return nil, err
	}

	sic.mutex.Lock()
	defer sic.mutex.Unlock()
	// two callers may race on a cold symbol; the first stored entry wins
	if pairInfo, ok = sic.pairs[symbol]; ok {
		return pairInfo, nil
	}
	sic.pairs[symbol] = loaded
	return loaded, nil
}
