package helpers

import (
	"strconv"
	"strings"
	"time"

	"github.com/sdcoffey/big"
)

// NormalizeSymbol turns "btc/usdc", "BTC-USDC" or "btc_usdc" into "BTCUSDC".
func NormalizeSymbol(symbol string) string {
	replacer := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(replacer.Replace(symbol))
}

func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func Contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}

// DecimalString renders d in plain notation with the fewest digits that
// round-trip through float64.
func DecimalString(d big.Decimal) string {
	return strconv.FormatFloat(d.Float(), 'f', -1, 64)
}
