// Package record defines the canonical (recv_time, symbol, payload) tuple
// produced by collectors and consumed by the writer.
package record

import (
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrEmptySymbol is returned when a record is constructed with a blank symbol.
var ErrEmptySymbol = errors.New("record: symbol must be non-empty")

// ErrNotUppercase is returned when a record's symbol is not uppercase ASCII.
var ErrNotUppercase = errors.New("record: symbol must be uppercase")

// ErrInvalidPayload is returned when a record's payload is not valid JSON.
var ErrInvalidPayload = errors.New("record: payload must be valid JSON")

// Record is the immutable tuple pushed onto the writer channel. Symbol is
// always uppercase ASCII; Payload is the verbatim UTF-8 JSON text received
// from (or normalized for) the exchange.
type Record struct {
	RecvTime time.Time
	Symbol   string
	Payload  []byte
}

// New validates and constructs a Record. recvTime is truncated to
// millisecond precision and converted to UTC, matching the data model's
// "UTC instant with millisecond precision" definition.
func New(recvTime time.Time, symbol string, payload []byte) (Record, error) {
	if symbol == "" {
		return Record{}, ErrEmptySymbol
	}
	if symbol != strings.ToUpper(symbol) {
		return Record{}, ErrNotUppercase
	}
	if !json.Valid(payload) {
		return Record{}, ErrInvalidPayload
	}
	return Record{
		RecvTime: recvTime.UTC().Truncate(time.Millisecond),
		Symbol:   symbol,
		Payload:  payload,
	}, nil
}
