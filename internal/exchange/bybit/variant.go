// Package bybit implements exchange.Variant for Bybit's v5 public WebSocket
// (both "linear" perpetual and "spot" categories share this variant; the
// category only selects the endpoint URL, handled by internal/dispatcher).
//
// spec.md's CLI surface recognizes bybit/bybitspot but its component design
// (§4.4) specifies no Bybit continuity algorithm. original_source/collector/
// src/main.rs confirms Bybit was a real collection target (orderbook.50.$symbol
// + publicTrade.$symbol topics) but ships no gap-repair logic for it either:
// this variant forwards every frame verbatim with no continuity tracking, per
// SPEC_FULL.md's supplemented §4.4 section.
package bybit

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/meltica/internal/exchange"
)

// Category selects Bybit's perpetual ("linear") or spot product line.
type Category string

const (
	CategoryLinear Category = "linear"
	CategorySpot   Category = "spot"
)

// Variant implements exchange.Variant for Bybit.
type Variant struct {
	category Category
}

// New constructs a Bybit variant for category.
func New(category Category) *Variant {
	return &Variant{category: category}
}

type frameEnvelope struct {
	Topic string `json:"topic"`
	Op    string `json:"op"`
}

// SubscribePayload subscribes to the 50-level order book and public trade
// topics for each symbol, per original_source/collector/src/main.rs.
func (v *Variant) SubscribePayload(symbols []string) []byte {
	args := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		args = append(args, "orderbook.50."+sym, "publicTrade."+sym)
	}
	payload, _ := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	return payload
}

// Classify forwards every data frame verbatim; subscription acks (frames
// carrying "op" instead of "topic") are dropped as control frames.
func (v *Variant) Classify(frame []byte) ([]exchange.Message, error) {
	var env frameEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	if env.Topic == "" {
		return nil, nil
	}

	symbol := env.Topic
	if idx := strings.LastIndexByte(env.Topic, '.'); idx >= 0 {
		symbol = env.Topic[idx+1:]
	}
	symbol = strings.ToUpper(symbol)

	return []exchange.Message{{Kind: exchange.KindOther, Symbol: symbol, Payload: frame}}, nil
}

// ContinuityDecision is never invoked: Classify never produces a KindDepth
// message for this variant. It exists only to satisfy exchange.Variant.
func (v *Variant) ContinuityDecision(_ exchange.ContinuitySymbolState, msg exchange.Message, _ int64) exchange.Decision {
	return exchange.Decision{Gap: false, Forward: true, Payload: msg.Payload, NewLastSeq: msg.Seq}
}
