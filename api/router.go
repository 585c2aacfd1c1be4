package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/interfaces"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

type HistorySyncer interface {
	Sync(ctx context.Context, exchange string, symbol string, start time.Time, end time.Time) (int, error)
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, exchange string, botId string, request models.OrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, exchange string, symbol string, orderId int64) (models.Order, error)
	CancelAllOrders(ctx context.Context, exchange string, symbol string) ([]models.Order, error)
}

type FilledOrderEnqueuer interface {
	Enqueue(ctx context.Context, exchange string, botId string, symbol string, orderIds []int64) error
}

type ConfigPusher interface {
	SendConfigUpdate(botId string, config interface{}) bool
}

// Dependencies are the collaborators the router exposes. A nil WebSocket
// handler leaves /ws unmounted.
type Dependencies struct {
	History   HistorySyncer
	Orders    OrderPlacer
	Store     interfaces.OrderStore
	Queue     FilledOrderEnqueuer
	Configs   ConfigPusher
	WebSocket http.Handler
	Exchange  string
}

type Handler struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) *gin.Engine {
	handler := &Handler{deps: deps}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.WebSocket != nil {
		router.GET("/ws", gin.WrapH(deps.WebSocket))
	}

	v1 := router.Group("/api/v1")
	v1.POST("/history/sync", handler.SyncHistory)
	v1.POST("/queue/filled-orders", handler.EnqueueFilledOrders)
	v1.POST("/bots/:botId/config", handler.PushConfig)
	v1.GET("/orders", handler.ListOrders)
	v1.GET("/orders/:exchange/:orderId", handler.GetOrder)
	v1.POST("/orders", handler.PlaceOrder)
	v1.DELETE("/orders/:exchange/:orderId", handler.CancelOrder)
	v1.DELETE("/orders/:exchange", handler.CancelAllOrders)

	return router
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindExchange:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		helpers.Logger.Errorln(c.Request.Method + " " + c.FullPath() + ": " + err.Error())
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": models.KindOf(err)})
}

func (h *Handler) exchange(name string) string {
	if name == "" {
		return h.deps.Exchange
	}
	return name
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) SyncHistory(c *gin.Context) {
	var req struct {
		Exchange string    `json:"exchange"`
		Symbol   string    `json:"symbol"`
		From     time.Time `json:"from"`
		To       time.Time `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &models.ValidationError{Field: "body", Reason: "malformed JSON", Err: err})
		return
	}
	if req.To.IsZero() {
		req.To = time.Now()
	}

	stored, err := h.deps.History.Sync(c.Request.Context(), h.exchange(req.Exchange),
		helpers.NormalizeSymbol(req.Symbol), req.From, req.To)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": stored})
}

func (h *Handler) EnqueueFilledOrders(c *gin.Context) {
	var req struct {
		Exchange string  `json:"exchange"`
		BotID    string  `json:"botId"`
		Symbol   string  `json:"symbol"`
		OrderIDs []int64 `json:"orderIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &models.ValidationError{Field: "body", Reason: "malformed JSON", Err: err})
		return
	}
	if err := h.deps.Queue.Enqueue(c.Request.Context(), req.Exchange, req.BotID,
		helpers.NormalizeSymbol(req.Symbol), req.OrderIDs); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": len(req.OrderIDs)})
}

func (h *Handler) PushConfig(c *gin.Context) {
	var payload json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.fail(c, &models.ValidationError{Field: "body", Reason: "malformed JSON", Err: err})
		return
	}
	botId := c.Param("botId")
	if !h.deps.Configs.SendConfigUpdate(botId, payload) {
		h.fail(c, &models.NotFoundError{Entity: "bot connection", Key: botId})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"delivered": true})
}

func (h *Handler) ListOrders(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol != "" {
		symbol = helpers.NormalizeSymbol(symbol)
	}
	orders, err := h.deps.Store.FindOrders(c.Request.Context(), c.Query("exchange"), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderId, err := parseOrderId(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.deps.Store.GetOrder(c.Request.Context(), c.Param("exchange"), orderId)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req struct {
		Exchange string `json:"exchange"`
		BotID    string `json:"botId"`
		models.OrderRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &models.ValidationError{Field: "body", Reason: "malformed JSON", Err: err})
		return
	}
	order, err := h.deps.Orders.PlaceOrder(c.Request.Context(), h.exchange(req.Exchange), req.BotID, req.OrderRequest)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	orderId, err := parseOrderId(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		h.fail(c, &models.ValidationError{Field: "symbol", Reason: "is required"})
		return
	}
	order, err := h.deps.Orders.CancelOrder(c.Request.Context(), c.Param("exchange"),
		helpers.NormalizeSymbol(symbol), orderId)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelAllOrders(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		h.fail(c, &models.ValidationError{Field: "symbol", Reason: "is required"})
		return
	}
	orders, err := h.deps.Orders.CancelAllOrders(c.Request.Context(), c.Param("exchange"), helpers.NormalizeSymbol(symbol))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func parseOrderId(c *gin.Context) (int64, error) {
	orderId, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: "orderId", Reason: "must be an integer", Err: err}
	}
	return orderId, nil
}
