package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrMissingType is returned for frames whose envelope has no type.
var ErrMissingType = errors.New("envelope has no type")

// Payload is the decoded data of an envelope, tagged by its event type.
type Payload interface {
	EventType() string
}

// Opaque carries the raw data of an event type with no registered decoder.
type Opaque struct {
	Type string
	Raw  json.RawMessage
}

func (o Opaque) EventType() string { return o.Type }

// ErrorPayload is sent by the server with the "error" event. The server may
// send either an object or a bare string.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (ErrorPayload) EventType() string { return EventError }

func (p *ErrorPayload) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Message = s
		return nil
	}
	type plain ErrorPayload
	return json.Unmarshal(data, (*plain)(p))
}

// ConnectionPayload is sent by the server once a connection is accepted.
type ConnectionPayload struct {
	ClientID string `json:"client_id"`
}

func (ConnectionPayload) EventType() string { return EventConnection }

// Message is a parsed inbound envelope together with its decoded payload.
type Message struct {
	Envelope
	Payload Payload
}

// Decoder turns the raw data of an envelope into a typed payload.
type Decoder func(data json.RawMessage) (Payload, error)

// Registry maps event types to payload decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry creates a registry with the server control payloads registered.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	RegisterJSON[ErrorPayload](r, EventError)
	RegisterJSON[ConnectionPayload](r, EventConnection)
	return r
}

// Register sets the decoder for an event type, replacing any previous one.
func (r *Registry) Register(eventType string, dec Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[eventType] = dec
}

// RegisterJSON registers a decoder that unmarshals data into T.
// Missing data decodes to the zero value.
func RegisterJSON[T Payload](r *Registry, eventType string) {
	r.Register(eventType, func(data json.RawMessage) (Payload, error) {
		var v T
		if len(data) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Parse validates a frame and decodes its payload.
func (r *Registry) Parse(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrMissingType
	}

	r.mu.RLock()
	dec, ok := r.decoders[env.Type]
	r.mu.RUnlock()
	if !ok {
		return Message{Envelope: env, Payload: Opaque{Type: env.Type, Raw: env.Data}}, nil
	}

	payload, err := dec(env.Data)
	if err != nil {
		return Message{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return Message{Envelope: env, Payload: payload}, nil
}
