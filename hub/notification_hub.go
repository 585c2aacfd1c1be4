package hub

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
	"golang.org/x/time/rate"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	enqueueTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is the part of *websocket.Conn the hub uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// FilledOrderEnqueuer receives filled-order-request messages.
type FilledOrderEnqueuer interface {
	Enqueue(ctx context.Context, exchange string, botId string, symbol string, orderIds []int64) error
}

type Client struct {
	id      string
	conn    Conn
	send    chan []byte
	limiter *rate.Limiter

	// guarded by the hub mutex
	botID  string
	symbol string
	closed bool
}

// NotificationHub tracks live connections: bots by botId (the last
// registration wins) and a single observer slot. Delivery is best effort; a
// message for a bot that is not connected is dropped.
type NotificationHub struct {
	mutex    sync.RWMutex
	clients  map[*Client]struct{}
	bots     map[string]*Client
	observer *Client

	enqueuer    FilledOrderEnqueuer
	messageRate rate.Limit
	burst       int
}

func NewNotificationHub(enqueuer FilledOrderEnqueuer, messagesPerSecond float64) *NotificationHub {
	burst := int(messagesPerSecond)
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(messagesPerSecond)
	if messagesPerSecond <= 0 {
		limit = rate.Inf
	}
	return &NotificationHub{
		clients:     make(map[*Client]struct{}),
		bots:        make(map[string]*Client),
		enqueuer:    enqueuer,
		messageRate: limit,
		burst:       burst,
	}
}

func (nh *NotificationHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		helpers.Logger.Errorln("failed to upgrade websocket: " + err.Error())
		return
	}
	nh.Serve(conn)
}

// Attach starts writing to conn and returns the client. The caller owns the
// read side, usually through Serve.
func (nh *NotificationHub) Attach(conn Conn) *Client {
	client := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(nh.messageRate, nh.burst),
	}

	nh.mutex.Lock()
	nh.clients[client] = struct{}{}
	nh.mutex.Unlock()
	helpers.HubConnections.Inc()

	go nh.writePump(client)
	return client
}

// Serve attaches conn and reads from it until it fails.
func (nh *NotificationHub) Serve(conn Conn) {
	nh.readPump(nh.Attach(conn))
}

func (nh *NotificationHub) readPump(client *Client) {
	defer nh.detach(client)
	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if !client.limiter.Allow() {
			nh.reply(client, MessageError, errorPayload("rate limit exceeded, message dropped"))
			continue
		}
		nh.handleMessage(client, message)
	}
}

func (nh *NotificationHub) writePump(client *Client) {
	defer client.conn.Close()
	for message := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (nh *NotificationHub) detach(client *Client) {
	nh.mutex.Lock()
	botId := client.botID
	delete(nh.clients, client)
	if client.botID != "" && nh.bots[client.botID] == client {
		delete(nh.bots, client.botID)
	}
	if nh.observer == client {
		nh.observer = nil
	}
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	nh.mutex.Unlock()

	helpers.HubConnections.Dec()
	_ = client.conn.Close()
	if botId != "" {
		helpers.Logger.Infoln(fmt.Sprintf("bot %s disconnected", botId))
	}
}

func (nh *NotificationHub) handleMessage(client *Client, raw []byte) {
	message, err := DecodeControlMessage(raw)
	if err != nil {
		nh.reply(client, MessageError, errorPayload(err.Error()))
		return
	}

	switch msg := message.(type) {
	case RegisterMessage:
		nh.registerBot(client, msg)
	case RegisterObserverMessage:
		nh.registerObserver(client)
	case FilledOrderRequestMessage:
		nh.requestFilledOrders(client, msg)
	}
}

func (nh *NotificationHub) registerBot(client *Client, msg RegisterMessage) {
	nh.mutex.Lock()
	if client.botID != "" && client.botID != msg.BotID && nh.bots[client.botID] == client {
		delete(nh.bots, client.botID)
	}
	if previous, ok := nh.bots[msg.BotID]; ok && previous != client {
		previous.botID = ""
		previous.symbol = ""
	}
	client.botID = msg.BotID
	client.symbol = msg.Symbol
	nh.bots[msg.BotID] = client
	nh.mutex.Unlock()

	helpers.Logger.Infoln(fmt.Sprintf("bot %s registered for %s", msg.BotID, msg.Symbol))
}

func (nh *NotificationHub) registerObserver(client *Client) {
	nh.mutex.Lock()
	nh.observer = client
	nh.mutex.Unlock()
	helpers.Logger.Infoln("observer registered")
}

func (nh *NotificationHub) requestFilledOrders(client *Client, msg FilledOrderRequestMessage) {
	nh.mutex.RLock()
	botId, symbol := msg.BotID, msg.Symbol
	if botId == "" {
		botId = client.botID
	}
	if symbol == "" {
		symbol = client.symbol
	}
	nh.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := nh.enqueuer.Enqueue(ctx, msg.Exchange, botId, symbol, msg.OrderIDs); err != nil {
		helpers.Logger.Warnln("filled order request rejected: " + err.Error())
		nh.reply(client, MessageError, errorPayload(err.Error()))
	}
}

// SendToBot pushes to the bot's current connection. It reports false when
// the bot is not connected or its buffer is full.
func (nh *NotificationHub) SendToBot(botId string, msgType string, data interface{}) bool {
	payload, err := encode(msgType, data)
	if err != nil {
		helpers.Logger.Errorln(fmt.Sprintf("cannot encode %s message: %v", msgType, err))
		return false
	}
	nh.mutex.RLock()
	defer nh.mutex.RUnlock()
	client, ok := nh.bots[botId]
	if !ok {
		return false
	}
	return nh.deliver(client, payload)
}

func (nh *NotificationHub) SendConfigUpdate(botId string, config interface{}) bool {
	return nh.SendToBot(botId, MessageConfigUpdate, config)
}

// BroadcastSnapshot sends the whole snapshot to the observer and to each bot
// only the slice for the symbol it registered.
func (nh *NotificationHub) BroadcastSnapshot(snapshot models.MarketSnapshot) {
	full, err := encode(MessageSnapshot, snapshot)
	if err != nil {
		helpers.Logger.Errorln("cannot encode snapshot: " + err.Error())
		return
	}
	slices := make(map[string][]byte)

	nh.mutex.RLock()
	defer nh.mutex.RUnlock()
	if nh.observer != nil {
		nh.deliver(nh.observer, full)
	}
	for _, client := range nh.bots {
		payload, cached := slices[client.symbol]
		if !cached {
			slice, ok := snapshot.Slice(client.symbol)
			if ok {
				payload, err = encode(MessageSymbolSnapshot, slice)
				if err != nil {
					helpers.Logger.Errorln("cannot encode symbol snapshot: " + err.Error())
				}
			}
			slices[client.symbol] = payload
		}
		if payload != nil {
			nh.deliver(client, payload)
		}
	}
}

// Symbols lists the distinct symbols of registered bots.
func (nh *NotificationHub) Symbols() []string {
	nh.mutex.RLock()
	defer nh.mutex.RUnlock()
	set := make(map[string]struct{})
	for _, client := range nh.bots {
		set[client.symbol] = struct{}{}
	}
	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (nh *NotificationHub) BotConnected(botId string) bool {
	nh.mutex.RLock()
	defer nh.mutex.RUnlock()
	_, ok := nh.bots[botId]
	return ok
}

func (nh *NotificationHub) HasObserver() bool {
	nh.mutex.RLock()
	defer nh.mutex.RUnlock()
	return nh.observer != nil
}

// Close disconnects every client.
func (nh *NotificationHub) Close() {
	nh.mutex.RLock()
	clients := make([]*Client, 0, len(nh.clients))
	for client := range nh.clients {
		clients = append(clients, client)
	}
	nh.mutex.RUnlock()
	for _, client := range clients {
		_ = client.conn.Close()
	}
}

func (nh *NotificationHub) reply(client *Client, msgType string, data interface{}) {
	payload, err := encode(msgType, data)
	if err != nil {
		return
	}
	nh.mutex.RLock()
	defer nh.mutex.RUnlock()
	nh.deliver(client, payload)
}

// deliver must be called with the mutex held.
func (nh *NotificationHub) deliver(client *Client, payload []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		helpers.HubDroppedMessages.Inc()
		return false
	}
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
