package hub

import (
	"encoding/json"
	"fmt"

	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

// Inbound message types.
const (
	MessageRegister           = "register"
	MessageRegisterObserver   = "register-observer"
	MessageFilledOrderRequest = "filled-order-request"
)

// Outbound message types.
const (
	MessageSnapshot       = "snapshot"
	MessageSymbolSnapshot = "symbol-snapshot"
	MessageConfigUpdate   = "config-update"
	MessageError          = "error"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ControlMessage is one of RegisterMessage, RegisterObserverMessage or
// FilledOrderRequestMessage.
type ControlMessage interface {
	controlMessage()
}

type RegisterMessage struct {
	BotID  string `json:"botId"`
	Symbol string `json:"symbol"`
}

type RegisterObserverMessage struct{}

type FilledOrderRequestMessage struct {
	BotID    string  `json:"botId"`
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	OrderIDs []int64 `json:"orderIds"`
}

func (RegisterMessage) controlMessage()           {}
func (RegisterObserverMessage) controlMessage()   {}
func (FilledOrderRequestMessage) controlMessage() {}

// DecodeControlMessage parses an inbound envelope. Unknown types and malformed
// payloads are rejected here.
func DecodeControlMessage(raw []byte) (ControlMessage, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &models.ValidationError{Field: "envelope", Reason: "malformed JSON", Err: err}
	}

	switch envelope.Type {
	case MessageRegister:
		var msg RegisterMessage
		if err := decodeData(envelope, &msg); err != nil {
			return nil, err
		}
		if msg.BotID == "" || msg.Symbol == "" {
			return nil, &models.ValidationError{Field: "register", Reason: "botId and symbol are required"}
		}
		msg.Symbol = helpers.NormalizeSymbol(msg.Symbol)
		return msg, nil
	case MessageRegisterObserver:
		return RegisterObserverMessage{}, nil
	case MessageFilledOrderRequest:
		var msg FilledOrderRequestMessage
		if err := decodeData(envelope, &msg); err != nil {
			return nil, err
		}
		if len(msg.OrderIDs) == 0 {
			return nil, &models.ValidationError{Field: "orderIds", Reason: "must not be empty"}
		}
		msg.Symbol = helpers.NormalizeSymbol(msg.Symbol)
		return msg, nil
	default:
		return nil, fmt.Errorf("%w %q", models.ErrUnknownMessageType, envelope.Type)
	}
}

func decodeData(envelope Envelope, target interface{}) error {
	if len(envelope.Data) == 0 {
		return &models.ValidationError{Field: envelope.Type, Reason: "missing data"}
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return &models.ValidationError{Field: envelope.Type, Reason: "malformed data", Err: err}
	}
	return nil
}

func encode(msgType string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: payload})
}
