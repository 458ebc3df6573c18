package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmptyType is returned when a message has no event name.
var ErrEmptyType = errors.New("message has no type")

// Message is a decoded envelope whose payload has not been bound yet.
type Message struct {
	Type  string
	raw   []byte
	codec Codec
}

// Bind decodes the payload into v.
func (m Message) Bind(v interface{}) error {
	if len(m.raw) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := m.codec.unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("%s: %w", m.Type, err)
	}
	return nil
}

// Codec encodes envelopes {type, data} for one wire format.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary websocket messages.
	Binary() bool
	Encode(eventType string, payload interface{}) ([]byte, error)
	Decode(data []byte) (Message, error)

	unmarshal(data []byte, v interface{}) error
}

// JSON and Msgpack are the supported codecs.
var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName picks a codec from a query parameter. Unknown names get JSON.
func CodecByName(name string) Codec {
	if name == Msgpack.Name() {
		return Msgpack
	}
	return JSON
}

type jsonEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(eventType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(jsonEnvelope{Type: eventType, Data: data})
}

func (c jsonCodec) Decode(data []byte) (Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrEmptyType
	}
	return Message{Type: env.Type, raw: env.Data, codec: c}, nil
}

func (jsonCodec) unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type msgpackEnvelope struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Encode(eventType string, payload interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return msgpack.Marshal(msgpackEnvelope{Type: eventType, Data: data})
}

func (c msgpackCodec) Decode(data []byte) (Message, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrEmptyType
	}
	return Message{Type: env.Type, raw: env.Data, codec: c}, nil
}

func (msgpackCodec) unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
