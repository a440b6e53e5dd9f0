// Package stream turns raw stream items into typed events and applies them, one
// batch per unit of work, through a fixed table of handlers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mangrove-indexer/internal/storage"
)

var (
	// ErrUnknownEventKind is returned by decoders for discriminants they do not know.
	// Dispatchers skip such events.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrMalformedEvent is returned for payloads that cannot be decoded.
	// Redelivering the same bytes cannot succeed, so consumers stop on it.
	ErrMalformedEvent = errors.New("malformed event")
)

// RawEvent is one item pulled from a stream.
type RawEvent struct {
	Payload   []byte    `json:"payload"`
	Offset    int64     `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
	Undo      bool      `json:"undo"`
}

// Payload is a decoded event body. Every stream defines a closed set of payload
// types, each reporting its discriminant.
type Payload interface {
	Kind() string
}

// Event is a decoded stream item.
type Event[P Payload] struct {
	Payload   P
	Offset    int64
	Timestamp time.Time
	Undo      bool
}

// Decoder turns raw payload bytes into a typed payload.
type Decoder[P Payload] func(data []byte) (P, error)

// Handler applies (or, when ev.Undo is set, structurally reverts) one event
// inside the batch's unit of work.
type Handler[P Payload] func(ctx context.Context, tx storage.Tx, ev Event[P]) error

// Ignore is a handler for recognized kinds that have no effect on the projection.
func Ignore[P Payload](context.Context, storage.Tx, Event[P]) error {
	return nil
}

// envelope is the common shape of every payload: a JSON object tagged by "type".
type envelope struct {
	Type string `json:"type"`
}

// PeekKind returns the discriminant of a raw payload.
func PeekKind(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return env.Type, nil
}

// DecodeJSON unmarshals data into a new T, reporting failures as ErrMalformedEvent.
func DecodeJSON[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return v, nil
}

// UnknownKind builds the error decoders return for an unrecognized discriminant.
func UnknownKind(kind string) error {
	return fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
}
