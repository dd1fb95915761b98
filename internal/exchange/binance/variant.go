// Package binance implements exchange.Variant for Binance spot and futures
// (USD-M, COIN-M); the three venues share one variant that carries its
// Venue, mirroring the teacher's publicMetadata/privateMetadata split in
// options.go.
package binance

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/meltica/internal/exchange"
)

// Venue distinguishes the three Binance connection families. They share
// identical message shapes and continuity rules; only the WebSocket host and
// the REST depth endpoint differ, which live in internal/dispatcher's venue
// table rather than here.
type Venue string

const (
	VenueSpot      Venue = "spot"
	VenueFuturesUM Venue = "futures_um"
	VenueFuturesCM Venue = "futures_cm"
)

// Variant implements exchange.Variant for all three Binance venues: the
// wire schema and continuity algorithm are identical across them.
type Variant struct {
	venue Venue
}

// New constructs a Binance variant for venue.
func New(venue Venue) *Variant {
	return &Variant{venue: venue}
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type dataEnvelope struct {
	E string `json:"e"`
	S string `json:"s"`
	U int64  `json:"U"`
	U2 int64 `json:"u"`
}

// SubscribePayload builds the combined-stream subscribe frame Binance
// expects on the raw /ws endpoint: {"method":"SUBSCRIBE","params":[...],"id":1}.
func (v *Variant) SubscribePayload(symbols []string) []byte {
	params := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		params = append(params, lower+"@depth", lower+"@trade", lower+"@bookTicker")
	}
	payload, _ := json.Marshal(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
	return payload
}

// Classify parses the combined-stream envelope and extracts the one message
// it carries. depthUpdate frames are KindDepth; everything else with a
// recognizable event type is forwarded verbatim as KindOther; frames missing
// a stream name, a data object, or a data.e are treated as control frames
// (subscription acks, errors) and dropped.
func (v *Variant) Classify(frame []byte) ([]exchange.Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	if env.Stream == "" || len(env.Data) == 0 {
		return nil, nil
	}

	var data dataEnvelope
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, err
	}
	if data.E == "" {
		return nil, nil
	}

	symbol := data.S
	if symbol == "" {
		if idx := strings.IndexByte(env.Stream, '@'); idx > 0 {
			symbol = strings.ToUpper(env.Stream[:idx])
		}
	} else {
		symbol = strings.ToUpper(symbol)
	}
	if symbol == "" {
		return nil, nil
	}

	if data.E == "depthUpdate" {
		return []exchange.Message{{
			Kind:    exchange.KindDepth,
			Symbol:  symbol,
			Payload: frame,
			U:       data.U,
			Seq:     data.U2,
		}}, nil
	}

	return []exchange.Message{{
		Kind:    exchange.KindOther,
		Symbol:  symbol,
		Payload: frame,
	}}, nil
}

// ContinuityDecision implements §4.4's Binance-family gap check:
// prev_u exists and U > prev_u+1 is a gap; prev_u == U-1 (continuous) or
// prev_u >= U (overlap) is not. The original frame is always forwarded and
// prev_u is always advanced to u, regardless of gap outcome.
func (v *Variant) ContinuityDecision(state exchange.ContinuitySymbolState, msg exchange.Message, _ int64) exchange.Decision {
	gap := state.Known && msg.U > state.LastSeq+1
	return exchange.Decision{
		Gap:        gap,
		Forward:    true,
		Payload:    msg.Payload,
		NewLastSeq: msg.Seq,
	}
}
