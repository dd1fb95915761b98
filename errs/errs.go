// Package errs provides structured error types shared across the collector.
package errs

import (
	"strconv"
	"strings"
)

// Kind identifies which layer of the collector produced an error, per the
// error-kind table (format, transport, ping timeout, snapshot fetch,
// throttle skip, writer I/O).
type Kind string

const (
	// KindFormat marks a frame that failed JSON parse or was missing/mistyped fields.
	KindFormat Kind = "format"
	// KindTransport marks a WebSocket read/write failure or close frame.
	KindTransport Kind = "transport"
	// KindPingTimeout marks a liveness-deadline violation.
	KindPingTimeout Kind = "ping_timeout"
	// KindSnapshotFetch marks a REST snapshot request that failed or returned a non-JSON body.
	KindSnapshotFetch Kind = "snapshot_fetch"
	// KindThrottleSkip marks a snapshot request denied by the rate limiter.
	KindThrottleSkip Kind = "throttle_skip"
	// KindWriterIO marks a fatal write failure in the output pipeline.
	KindWriterIO Kind = "writer_io"
)

// E is a structured error envelope carrying the exchange, symbol, and kind
// that produced a failure, alongside the underlying cause.
type E struct {
	Exchange string
	Symbol   string
	Kind     Kind
	Message  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given exchange and kind.
func New(exchange string, kind Kind, opts ...Option) *E {
	e := &E{
		Exchange: strings.TrimSpace(exchange),
		Kind:     kind,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithSymbol attaches the symbol associated with the failure.
func WithSymbol(symbol string) Option {
	return func(e *E) { e.Symbol = strings.TrimSpace(symbol) }
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	return func(e *E) { e.Message = strings.TrimSpace(message) }
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	exchange := strings.TrimSpace(e.Exchange)
	if exchange == "" {
		exchange = "unknown"
	}
	parts = append(parts, "exchange="+exchange)
	parts = append(parts, "kind="+string(e.Kind))

	if e.Symbol != "" {
		parts = append(parts, "symbol="+e.Symbol)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the wrapped cause, if any.
func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *E carrying the same Kind, supporting
// errors.Is(err, errs.New("", errs.KindTransport)) style checks.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind
}
