package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

const Name = "binance"

// Binance caps history queries at 1000 rows per call and at 24h between
// startTime and endTime.
const (
	pageLimit      = 1000
	maxQueryWindow = 24 * time.Hour
)

type BinanceService struct {
	binanceClient *binance.Client
}

func NewBinanceService(apiKey string, apiSecret string) *BinanceService {
	return &BinanceService{
		binanceClient: binance.NewClient(apiKey, apiSecret),
	}
}

func (binanceService *BinanceService) Name() string {
	return Name
}

func (binanceService *BinanceService) MaxQueryWindow() time.Duration {
	return maxQueryWindow
}

// GetOrderHistory returns FILLED orders created in [start, end].
func (binanceService *BinanceService) GetOrderHistory(ctx context.Context, symbol string, start time.Time,
	end time.Time) ([]models.Order, error) {
	orders, err := pageByTime(ctx, helpers.ToMillis(start),
		func(ctx context.Context, from int64) ([]*binance.Order, error) {
			return binanceService.binanceClient.NewListOrdersService().Symbol(symbol).
				StartTime(from).EndTime(helpers.ToMillis(end)).Limit(pageLimit).Do(ctx)
		},
		func(o *binance.Order) (int64, int64) { return o.OrderID, o.Time })
	if err != nil {
		return nil, err
	}
	filled := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == binance.OrderStatusTypeFilled {
			filled = append(filled, binanceService.orderToModelsOrder(*o))
		}
	}
	return filled, nil
}

func (binanceService *BinanceService) GetExecutions(ctx context.Context, symbol string, start time.Time,
	end time.Time) ([]models.Execution, error) {
	trades, err := pageByTime(ctx, helpers.ToMillis(start),
		func(ctx context.Context, from int64) ([]*binance.TradeV3, error) {
			return binanceService.binanceClient.NewListTradesService().Symbol(symbol).
				StartTime(from).EndTime(helpers.ToMillis(end)).Limit(pageLimit).Do(ctx)
		},
		func(trade *binance.TradeV3) (int64, int64) { return trade.ID, trade.Time })
	if err != nil {
		return nil, err
	}
	executions := make([]models.Execution, 0, len(trades))
	for _, trade := range trades {
		side := models.SideTypeSell
		if trade.IsBuyer {
			side = models.SideTypeBuy
		}
		executions = append(executions, models.Execution{
			ExecID:   trade.ID,
			OrderID:  trade.OrderID,
			Symbol:   trade.Symbol,
			Side:     side,
			Price:    trade.Price,
			Quantity: trade.Quantity,
			Value:    trade.QuoteQuantity,
			Fee:      trade.Commission,
			FeeAsset: trade.CommissionAsset,
			Time:     trade.Time,
		})
	}
	return executions, nil
}

// pageByTime keeps fetching while pages come back full, starting each page at
// the time of the last row seen. Rows repeated on a page boundary are dropped
// by id. A full page that does not move forward in time is an error rather
// than a silently truncated result.
func pageByTime[T any](ctx context.Context, from int64, fetch func(ctx context.Context, from int64) ([]T, error),
	key func(T) (id int64, millis int64)) ([]T, error) {
	seen := make(map[int64]struct{})
	var out []T
	for {
		page, err := fetch(ctx, from)
		if err != nil {
			return nil, err
		}
		for _, row := range page {
			id, _ := key(row)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, row)
		}
		if len(page) < pageLimit {
			return out, nil
		}
		_, last := key(page[len(page)-1])
		if last <= from {
			return nil, fmt.Errorf("more than %d rows at %d, cannot page further", pageLimit, from)
		}
		from = last
	}
}

func (binanceService *BinanceService) GetOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	responseOrder, err := binanceService.binanceClient.NewGetOrderService().Symbol(symbol).
		OrderID(orderId).Do(ctx)
	if err != nil {
		return models.Order{}, err
	}
	return binanceService.orderToModelsOrder(*responseOrder), nil
}

func (binanceService *BinanceService) CancelOrder(ctx context.Context, symbol string, orderId int64) (models.Order, error) {
	response, err := binanceService.binanceClient.NewCancelOrderService().Symbol(symbol).
		OrderID(orderId).Do(ctx)
	if err != nil {
		return models.Order{}, err
	}
	return models.NewOrder(Name, response.Symbol, response.OrderID, response.ClientOrderID, response.Price,
		response.OrigQuantity, response.ExecutedQuantity, response.CummulativeQuoteQuantity,
		models.NormalizeStatus(string(response.Status)), models.OrderType(response.Type), models.SideType(response.Side),
		0, time.Now().UnixMilli()), nil
}

func (binanceService *BinanceService) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	openOrders, err := binanceService.binanceClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	return binanceService.orderListToModelsOrderList(openOrders), nil
}

// MakeOrder expects quantity and price already rounded to the pair rules.
func (binanceService *BinanceService) MakeOrder(ctx context.Context, request models.OrderRequest) (models.Order, error) {
	sideType := binance.SideTypeSell
	if request.Side == models.SideTypeBuy {
		sideType = binance.SideTypeBuy
	}

	preparedOrder := binanceService.binanceClient.NewCreateOrderService().Symbol(request.Symbol).
		Side(sideType).Type(binance.OrderType(request.Type)).
		Quantity(strconv.FormatFloat(request.Quantity, 'f', -1, 64))

	if request.Type == models.OrderTypeLimit {
		preparedOrder = preparedOrder.TimeInForce(binance.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(request.Price, 'f', -1, 64))
	}
	order, err := preparedOrder.Do(ctx)
	if err != nil {
		return models.Order{}, err
	}
	return binanceService.orderResponseToOrder(*order), nil
}

func (binanceService *BinanceService) GetPrices(ctx context.Context, symbols []string) (map[string]string, error) {
	prices, err := binanceService.binanceClient.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(symbols))
	for _, price := range prices {
		if len(symbols) == 0 || helpers.Contains(symbols, price.Symbol) {
			out[price.Symbol] = price.Price
		}
	}
	return out, nil
}

func (binanceService *BinanceService) GetPairInfo(ctx context.Context, pair string) (*models.PairInfo, error) {
	info, err := binanceService.binanceClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, symbol := range info.Symbols {
		if symbol.Symbol != pair {
			continue
		}
		lotSize := symbol.LotSizeFilter()
		priceFilter := symbol.PriceFilter()
		if lotSize == nil || priceFilter == nil {
			return nil, fmt.Errorf("missing trading filters for %s", pair)
		}
		maxQty, _ := strconv.ParseFloat(lotSize.MaxQuantity, 64)
		minQty, _ := strconv.ParseFloat(lotSize.MinQuantity, 64)
		stepSize, _ := strconv.ParseFloat(lotSize.StepSize, 64)
		tickSize, _ := strconv.ParseFloat(priceFilter.TickSize, 64)
		return models.NewPairInfo(pair, maxQty, minQty, stepSize, tickSize, symbol.QuotePrecision), nil
	}
	return nil, &models.NotFoundError{Entity: "symbol", Key: pair}
}

func (binanceService *BinanceService) orderResponseToOrder(o binance.CreateOrderResponse) models.Order {
	return models.NewOrder(Name, o.Symbol, o.OrderID, o.ClientOrderID, o.Price, o.OrigQuantity, o.ExecutedQuantity,
		o.CummulativeQuoteQuantity, models.NormalizeStatus(string(o.Status)), models.OrderType(o.Type),
		models.SideType(o.Side), o.TransactTime, o.TransactTime)
}

func (binanceService *BinanceService) orderToModelsOrder(o binance.Order) models.Order {
	return models.NewOrder(Name, o.Symbol, o.OrderID, o.ClientOrderID, o.Price, o.OrigQuantity, o.ExecutedQuantity,
		o.CummulativeQuoteQuantity, models.NormalizeStatus(string(o.Status)), models.OrderType(o.Type),
		models.SideType(o.Side), o.Time, o.UpdateTime)
}

func (binanceService *BinanceService) orderListToModelsOrderList(ol []*binance.Order) []models.Order {
	var orderList []models.Order
	for _, o := range ol {
		orderList = append(orderList, binanceService.orderToModelsOrder(*o))
	}
	return orderList
}
