// Package exchange defines the per-exchange polymorphism used by
// internal/collector: a three-method Variant interface rather than a
// base-class hierarchy, matching Design Notes §9's "exchange variant
// handling" recommendation.
package exchange

// Kind classifies one item produced by Variant.Classify.
type Kind string

const (
	// KindDepth marks an incremental or snapshot order-book update; only
	// messages of this kind flow through ContinuityDecision.
	KindDepth Kind = "depth"
	// KindOther marks any message that is forwarded as-is once classified
	// (trade, book ticker, or any other already-normalized channel).
	KindOther Kind = "other"
	// KindControl marks a non-data frame (subscription ack, error reply).
	// The collector skips such messages without forwarding or logging them;
	// the bundled variants drop control frames inside Classify instead of
	// returning KindControl, and those drops are not logged either.
	KindControl Kind = "control"
)

// Message is one classified item out of a single inbound frame. A frame may
// classify into zero, one, or several Messages (OKX batches multiple
// updates inside one frame's data array; Binance never does).
type Message struct {
	Kind   Kind
	Symbol string // uppercase ASCII

	// Payload is the ready-to-emit canonical JSON body. Classify always
	// sets it for KindOther messages (already fully normalized there).
	// For KindDepth, a variant whose wire format is already canonical
	// (Binance) sets it to the original frame bytes; a variant that must
	// synthesize the canonical shape from sequence state (OKX) leaves it
	// nil and builds it inside ContinuityDecision instead.
	Payload []byte

	// U and Seq are the depth-continuity fields: Binance's first/last
	// sequence numbers (U, u) for KindDepth messages. OKX variants repurpose
	// Seq as the message's ts and ignore U.
	U   int64
	Seq int64

	// Action is OKX's "snapshot" | "update" discriminator; empty for
	// exchanges that don't use it.
	Action string

	// Raw carries the unparsed per-item JSON bytes for a KindDepth message
	// whose Payload Classify left nil, so ContinuityDecision can decode the
	// exchange-specific book fields (bids/asks) it needs to synthesize the
	// canonical payload. Unused when Payload is already set.
	Raw []byte
}

// ContinuitySymbolState is the per-symbol continuity-tracking entry,
// equivalent to spec's ContinuityMap[symbol] = last_u.
type ContinuitySymbolState struct {
	LastSeq int64
	Known   bool
}

// ContinuityMap is owned exclusively by one collector's frame loop; it is
// never touched by repair tasks, so it carries no internal locking.
type ContinuityMap struct {
	symbols map[string]*ContinuitySymbolState
}

// NewContinuityMap constructs an empty map.
func NewContinuityMap() *ContinuityMap {
	return &ContinuityMap{symbols: make(map[string]*ContinuitySymbolState)}
}

// State returns the entry for symbol, creating it lazily on first access.
func (c *ContinuityMap) State(symbol string) *ContinuitySymbolState {
	st, ok := c.symbols[symbol]
	if !ok {
		st = &ContinuitySymbolState{}
		c.symbols[symbol] = st
	}
	return st
}

// Decision is what ContinuityDecision returns for one KindDepth message.
type Decision struct {
	// Gap requests an async repair task: fetch a REST snapshot through the
	// throttler and emit it as an independent record once it completes,
	// without blocking the frame loop (Binance-family semantics: the
	// triggering message is still forwarded immediately regardless).
	Gap bool
	// SyncSnapshot requests a REST snapshot fetch performed inline on the
	// frame loop, before this message's own record (if any) is considered
	// (OKX's action=="snapshot" semantics, §4.4). When true, Forward and
	// Payload are ignored: the collector fetches through the throttler,
	// then calls SnapshotNormalizer.NormalizeSnapshot on the response to
	// obtain the record payload and the symbol's new LastSeq. This keeps
	// the REST fetch-and-continuity-update on the same goroutine that owns
	// ContinuityMap (§5's "never touched by repair tasks" applies to the
	// Gap/async path, not to this synchronous one).
	SyncSnapshot bool
	// Forward is true when the classified message itself should also be
	// emitted as a record (Binance always forwards; OKX forwards its
	// normalized "update" records the same way).
	Forward bool
	// Payload is the record body to emit when Forward is true.
	Payload []byte
	// NewLastSeq is the value ContinuityMap should store for the symbol
	// after this message, unconditionally (gap or not). Ignored when
	// SyncSnapshot is true.
	NewLastSeq int64
}

// SnapshotNormalizer is implemented by variants whose ContinuityDecision can
// set Decision.SyncSnapshot (currently only OKX). The collector type-asserts
// for it only after a Decision requests a synchronous fetch.
type SnapshotNormalizer interface {
	// NormalizeSnapshot turns a raw REST depth-snapshot response body into
	// the canonical record payload, plus the sequence number ContinuityMap
	// should store for symbol afterward.
	NormalizeSnapshot(symbol, snapshotText string, recvTimeMs int64) (payload []byte, newLastSeq int64, err error)
}

// Variant is the per-exchange behavior a collector is parameterized over.
type Variant interface {
	// SubscribePayload builds the first outbound text frame for a session
	// subscribing to symbols.
	SubscribePayload(symbols []string) []byte
	// Classify parses one inbound frame into zero or more Messages.
	Classify(frame []byte) ([]Message, error)
	// ContinuityDecision is called only for KindDepth messages; state is
	// this symbol's current ContinuitySymbolState, mutated by the caller
	// (the collector), never by the variant itself.
	ContinuityDecision(state ContinuitySymbolState, msg Message, recvTimeMs int64) Decision
}
