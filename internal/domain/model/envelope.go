package model

import (
	"encoding/json"
	"fmt"
)

// MessageType is the discriminator of an Envelope.
type MessageType string

// Wire message types.
const (
	TypeConnected MessageType = "connected"
	TypeBatch     MessageType = "batch"
	TypeStats     MessageType = "stats"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
)

// Envelope is the JSON object carried by every stream message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Total   int64           `json:"total,omitempty"`
}

// NewEnvelope builds an envelope of type t whose data is data marshalled to JSON.
func NewEnvelope(t MessageType, data any) (Envelope, error) {
	env := Envelope{Type: t}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", t, err)
	}
	env.Data = raw
	return env, nil
}

// BatchEnvelope wraps a flushed batch for the wire.
func BatchEnvelope(b Batch) (Envelope, error) {
	events := b.Events
	if events == nil {
		events = []Event{}
	}
	env, err := NewEnvelope(TypeBatch, events)
	if err != nil {
		return Envelope{}, err
	}
	env.Total = b.Total
	return env, nil
}

// Ping returns a heartbeat probe.
func Ping() Envelope { return Envelope{Type: TypePing} }

// Pong returns a heartbeat acknowledgment.
func Pong() Envelope { return Envelope{Type: TypePong} }

// DecodeEnvelope parses one wire message.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

// Events decodes the data of a batch envelope.
func (e Envelope) Events() ([]Event, error) {
	if e.Type != TypeBatch {
		return nil, fmt.Errorf("%w: %s carries no events", ErrMalformedEnvelope, e.Type)
	}
	var events []Event
	if len(e.Data) == 0 {
		return events, nil
	}
	if err := json.Unmarshal(e.Data, &events); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return events, nil
}
