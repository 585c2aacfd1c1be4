package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

type fakeConn struct {
	incoming chan []byte
	written  chan []byte
	done     chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		written:  make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (fc *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case message := <-fc.incoming:
		return websocket.TextMessage, message, nil
	case <-fc.done:
		return 0, nil, errors.New("closed")
	}
}

func (fc *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	select {
	case <-fc.done:
		return errors.New("closed")
	default:
	}
	fc.written <- data
	return nil
}

func (fc *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (fc *fakeConn) Close() error {
	fc.once.Do(func() { close(fc.done) })
	return nil
}

func (fc *fakeConn) send(t *testing.T, msgType string, data interface{}) {
	t.Helper()
	payload, err := encode(msgType, data)
	require.NoError(t, err)
	fc.incoming <- payload
}

func (fc *fakeConn) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case raw := <-fc.written:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(raw, &envelope))
		return envelope
	case <-time.After(2 * time.Second):
		t.Fatal("no message written")
		return Envelope{}
	}
}

func (fc *fakeConn) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case raw := <-fc.written:
		t.Fatalf("unexpected message %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

type enqueueCall struct {
	exchange, botId, symbol string
	orderIds                []int64
}

type recordingEnqueuer struct {
	mutex sync.Mutex
	calls []enqueueCall
	err   error
}

func (re *recordingEnqueuer) Enqueue(_ context.Context, exchange string, botId string, symbol string, orderIds []int64) error {
	re.mutex.Lock()
	defer re.mutex.Unlock()
	re.calls = append(re.calls, enqueueCall{exchange, botId, symbol, orderIds})
	return re.err
}

func (re *recordingEnqueuer) Calls() []enqueueCall {
	re.mutex.Lock()
	defer re.mutex.Unlock()
	return append([]enqueueCall(nil), re.calls...)
}

func connect(t *testing.T, nh *NotificationHub) *fakeConn {
	conn := newFakeConn()
	go nh.Serve(conn)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func registerBot(t *testing.T, nh *NotificationHub, conn *fakeConn, botId string, symbol string) {
	conn.send(t, MessageRegister, RegisterMessage{BotID: botId, Symbol: symbol})
	require.Eventually(t, func() bool { return nh.BotConnected(botId) }, time.Second, 5*time.Millisecond)
}

func twoSymbolSnapshot() models.MarketSnapshot {
	return models.MarketSnapshot{
		Exchange: "binance",
		Time:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbols: map[string]models.SymbolSnapshot{
			"BTCUSDC": {Symbol: "BTCUSDC", Price: "65000"},
			"ETHUSDC": {Symbol: "ETHUSDC", Price: "3500"},
		},
	}
}

func TestBroadcastSendsOnlyTheRegisteredSymbol(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	bot := connect(t, nh)
	registerBot(t, nh, bot, "B1", "eth/usdc")

	nh.BroadcastSnapshot(twoSymbolSnapshot())

	envelope := bot.next(t)
	assert.Equal(t, MessageSymbolSnapshot, envelope.Type)
	var slice models.SymbolSlice
	require.NoError(t, json.Unmarshal(envelope.Data, &slice))
	assert.Equal(t, "ETHUSDC", slice.Symbol)
	assert.Equal(t, "3500", slice.Price)
	assert.Equal(t, "binance", slice.Exchange)
	assert.NotContains(t, string(envelope.Data), "BTCUSDC")
	bot.assertSilent(t)
}

func TestBroadcastSkipsBotsWithoutTheirSymbol(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	bot := connect(t, nh)
	registerBot(t, nh, bot, "B2", "SOLUSDC")

	nh.BroadcastSnapshot(twoSymbolSnapshot())

	bot.assertSilent(t)
}

func TestObserverReceivesFullSnapshot(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	observer := connect(t, nh)
	observer.send(t, MessageRegisterObserver, struct{}{})
	require.Eventually(t, nh.HasObserver, time.Second, 5*time.Millisecond)

	nh.BroadcastSnapshot(twoSymbolSnapshot())

	envelope := observer.next(t)
	assert.Equal(t, MessageSnapshot, envelope.Type)
	var snapshot models.MarketSnapshot
	require.NoError(t, json.Unmarshal(envelope.Data, &snapshot))
	assert.Len(t, snapshot.Symbols, 2)
}

func TestReRegistrationReplacesConnection(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	first := connect(t, nh)
	registerBot(t, nh, first, "B1", "ETHUSDC")
	second := connect(t, nh)
	second.send(t, MessageRegister, RegisterMessage{BotID: "B1", Symbol: "BTCUSDC"})
	require.Eventually(t, func() bool {
		symbols := nh.Symbols()
		return len(symbols) == 1 && symbols[0] == "BTCUSDC"
	}, time.Second, 5*time.Millisecond)

	assert.True(t, nh.SendToBot("B1", "filled-order", map[string]int{"orderId": 7}))
	envelope := second.next(t)
	assert.Equal(t, "filled-order", envelope.Type)
	first.assertSilent(t)

	// The stale connection going away must not unregister the new one.
	_ = first.Close()
	time.Sleep(50 * time.Millisecond)
	assert.True(t, nh.BotConnected("B1"))
}

func TestDisconnectUnregisters(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	bot := connect(t, nh)
	registerBot(t, nh, bot, "B1", "ETHUSDC")

	_ = bot.Close()

	require.Eventually(t, func() bool { return !nh.BotConnected("B1") }, time.Second, 5*time.Millisecond)
	assert.False(t, nh.SendToBot("B1", "filled-order", nil))
	assert.Empty(t, nh.Symbols())
}

func TestSendToUnknownBotIsDropped(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	assert.False(t, nh.SendToBot("ghost", "filled-order", nil))
	assert.False(t, nh.SendConfigUpdate("ghost", map[string]string{"k": "v"}))
}

func TestConfigUpdateReachesBot(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	bot := connect(t, nh)
	registerBot(t, nh, bot, "B1", "ETHUSDC")

	assert.True(t, nh.SendConfigUpdate("B1", map[string]string{"spread": "0.2"}))

	envelope := bot.next(t)
	assert.Equal(t, MessageConfigUpdate, envelope.Type)
	assert.JSONEq(t, `{"spread":"0.2"}`, string(envelope.Data))
}

func TestUnknownMessageGetsErrorReply(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	conn := connect(t, nh)

	conn.send(t, "subscribe-everything", struct{}{})

	envelope := conn.next(t)
	assert.Equal(t, MessageError, envelope.Type)
	assert.Contains(t, string(envelope.Data), "subscribe-everything")
}

func TestFilledOrderRequestDefaultsFromRegistration(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	nh := NewNotificationHub(enqueuer, 0)
	bot := connect(t, nh)
	registerBot(t, nh, bot, "B1", "ETHUSDC")

	bot.send(t, MessageFilledOrderRequest, FilledOrderRequestMessage{OrderIDs: []int64{11, 12}})

	require.Eventually(t, func() bool { return len(enqueuer.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	call := enqueuer.Calls()[0]
	assert.Equal(t, "B1", call.botId)
	assert.Equal(t, "ETHUSDC", call.symbol)
	assert.Equal(t, []int64{11, 12}, call.orderIds)
}

func TestFilledOrderRequestRejectionIsReported(t *testing.T) {
	enqueuer := &recordingEnqueuer{err: &models.ValidationError{Field: "botId", Reason: "required"}}
	nh := NewNotificationHub(enqueuer, 0)
	conn := connect(t, nh)

	conn.send(t, MessageFilledOrderRequest, FilledOrderRequestMessage{OrderIDs: []int64{1}})

	envelope := conn.next(t)
	assert.Equal(t, MessageError, envelope.Type)
	assert.Contains(t, string(envelope.Data), "botId")
}

func TestInboundMessagesAreRateLimited(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	nh := NewNotificationHub(enqueuer, 1)
	conn := connect(t, nh)

	conn.send(t, MessageFilledOrderRequest, FilledOrderRequestMessage{BotID: "B1", Symbol: "ETHUSDC", OrderIDs: []int64{1}})
	conn.send(t, MessageFilledOrderRequest, FilledOrderRequestMessage{BotID: "B1", Symbol: "ETHUSDC", OrderIDs: []int64{2}})

	envelope := conn.next(t)
	assert.Equal(t, MessageError, envelope.Type)
	assert.Contains(t, string(envelope.Data), "rate limit")
	assert.Len(t, enqueuer.Calls(), 1)
}

func TestWebsocketEndToEnd(t *testing.T) {
	nh := NewNotificationHub(&recordingEnqueuer{}, 0)
	server := httptest.NewServer(nh)
	defer server.Close()
	defer nh.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, err := encode(MessageRegister, RegisterMessage{BotID: "B9", Symbol: "ETHUSDC"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	require.Eventually(t, func() bool { return nh.BotConnected("B9") }, 2*time.Second, 10*time.Millisecond)

	nh.BroadcastSnapshot(twoSymbolSnapshot())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var envelope Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, MessageSymbolSnapshot, envelope.Type)
	assert.Contains(t, string(envelope.Data), "ETHUSDC")
}
