// Package okx implements exchange.Variant for OKX spot and swap (perpetual)
// instruments, normalizing OKX's action-tagged channels into the Binance-
// style canonical envelope per §4.4's normalization table.
package okx

import (
	"errors"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/meltica/internal/exchange"
)

// Venue distinguishes spot from swap; both share this variant, since the
// only difference between them is the symbol-transform step done in
// internal/dispatcher, not anything in the wire schema.
type Venue string

const (
	VenueSpot Venue = "spot"
	VenueSwap Venue = "swap"
)

// Variant implements exchange.Variant for OKX.
type Variant struct {
	venue Venue
}

// New constructs an OKX variant for venue.
func New(venue Venue) *Variant {
	return &Variant{venue: venue}
}

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type frameEnvelope struct {
	Arg    arg               `json:"arg"`
	Action string            `json:"action"`
	Data   []json.RawMessage `json:"data"`
	Event  string            `json:"event"`
}

type tradeItem struct {
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Ts      string `json:"ts"`
}

type bboItem struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

type bookItem struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// canonicalSymbol turns "BTC-USDT" / "BTC-USDT-SWAP" into "BTCUSDT".
func canonicalSymbol(instID string) string {
	return strings.ToUpper(strings.ReplaceAll(instID, "-", ""))
}

// SubscribePayload subscribes to trades, bbo-tbt, and books for each symbol.
// symbols are expected already transformed into OKX instIds (§4.6 is the
// dispatcher's job, not the variant's).
func (v *Variant) SubscribePayload(symbols []string) []byte {
	args := make([]map[string]string, 0, len(symbols)*3)
	for _, sym := range symbols {
		args = append(args,
			map[string]string{"channel": "trades", "instId": sym},
			map[string]string{"channel": "bbo-tbt", "instId": sym},
			map[string]string{"channel": "books", "instId": sym},
		)
	}
	payload, _ := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	return payload
}

// Classify parses one OKX frame, which may batch several data items for the
// same channel/instId. Event frames (subscription acks, errors) and unknown
// channels are dropped.
func (v *Variant) Classify(frame []byte) ([]exchange.Message, error) {
	var env frameEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	if env.Event != "" || env.Arg.Channel == "" || len(env.Data) == 0 {
		return nil, nil
	}

	symbol := canonicalSymbol(env.Arg.InstID)
	if symbol == "" {
		return nil, nil
	}

	switch env.Arg.Channel {
	case "trades":
		return v.classifyTrades(symbol, env.Data)
	case "bbo-tbt":
		return v.classifyBBO(symbol, env.Data)
	case "books", "books5", "books-l2-tbt":
		return v.classifyBooks(symbol, env.Action, env.Data)
	default:
		return nil, nil
	}
}

func (v *Variant) classifyTrades(symbol string, items []json.RawMessage) ([]exchange.Message, error) {
	msgs := make([]exchange.Message, 0, len(items))
	for _, raw := range items {
		var item tradeItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		tradeID, _ := strconv.ParseInt(item.TradeID, 10, 64)
		ts, _ := strconv.ParseInt(item.Ts, 10, 64)
		payload, _ := json.Marshal(map[string]any{
			"stream": strings.ToLower(symbol) + "@trade",
			"data": map[string]any{
				"e": "trade",
				"E": ts,
				"s": symbol,
				"t": tradeID,
				"p": item.Px,
				"q": item.Sz,
				"T": ts,
			},
		})
		msgs = append(msgs, exchange.Message{Kind: exchange.KindOther, Symbol: symbol, Payload: payload})
	}
	return msgs, nil
}

func (v *Variant) classifyBBO(symbol string, items []json.RawMessage) ([]exchange.Message, error) {
	msgs := make([]exchange.Message, 0, len(items))
	for _, raw := range items {
		var item bboItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		if len(item.Bids) == 0 || len(item.Asks) == 0 {
			continue
		}
		ts, _ := strconv.ParseInt(item.Ts, 10, 64)
		payload, _ := json.Marshal(map[string]any{
			"stream": strings.ToLower(symbol) + "@bookTicker",
			"data": map[string]any{
				"u": ts,
				"s": symbol,
				"b": item.Bids[0][0],
				"B": item.Bids[0][1],
				"a": item.Asks[0][0],
				"A": item.Asks[0][1],
			},
		})
		msgs = append(msgs, exchange.Message{Kind: exchange.KindOther, Symbol: symbol, Payload: payload})
	}
	return msgs, nil
}

func (v *Variant) classifyBooks(symbol, action string, items []json.RawMessage) ([]exchange.Message, error) {
	msgs := make([]exchange.Message, 0, len(items))
	for _, raw := range items {
		var item bookItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		ts, _ := strconv.ParseInt(item.Ts, 10, 64)
		msgs = append(msgs, exchange.Message{
			Kind:   exchange.KindDepth,
			Symbol: symbol,
			Action: action,
			Seq:    ts,
			Raw:    raw,
		})
	}
	return msgs, nil
}

// ContinuityDecision implements §4.4's OKX algorithm. A "snapshot" action
// requests a synchronous REST fetch (SyncSnapshot) instead of normalizing
// the WS-embedded book array: per §4.4 and original_source/collector/src/
// okx/mod.rs's snapshot branch, the full depth is re-pulled through the
// throttler and U=u=ts of *that response*, not the WS message's own array.
// An "update" action derives U from the stored last_update_id (or ts-1 when
// absent), sets u=ts, and normalizes the WS-embedded book array directly
// (no REST fetch). OKX signals its own resync boundaries via action, so Gap
// is always false here — "OKX repair via snapshot request is not
// gap-triggered" in §4.4.
func (v *Variant) ContinuityDecision(state exchange.ContinuitySymbolState, msg exchange.Message, recvTimeMs int64) exchange.Decision {
	if msg.Action == "snapshot" {
		return exchange.Decision{SyncSnapshot: true}
	}

	var item bookItem
	_ = json.Unmarshal(msg.Raw, &item)

	ts := msg.Seq
	u := ts - 1
	if state.Known {
		u = state.LastSeq
	}

	payload, _ := json.Marshal(map[string]any{
		"stream": strings.ToLower(msg.Symbol) + "@depth",
		"data": map[string]any{
			"e": "depthUpdate",
			"E": recvTimeMs,
			"s": msg.Symbol,
			"U": u,
			"u": ts,
			"b": item.Bids,
			"a": item.Asks,
		},
	})

	return exchange.Decision{
		Gap:        false,
		Forward:    true,
		Payload:    payload,
		NewLastSeq: ts,
	}
}

// snapshotResponse is the shape of GET /api/v5/market/books's body: a
// single-element data array carrying the full book plus its own ts.
type snapshotResponse struct {
	Data []bookItem `json:"data"`
}

// NormalizeSnapshot implements exchange.SnapshotNormalizer for the
// SyncSnapshot request ContinuityDecision issues on action=="snapshot". It
// mirrors original_source/collector/src/okx/mod.rs's transform_depth_snapshot:
// U=u=ts are both taken from the REST response's own data[0].ts.
func (v *Variant) NormalizeSnapshot(symbol, snapshotText string, recvTimeMs int64) ([]byte, int64, error) {
	var resp snapshotResponse
	if err := json.Unmarshal([]byte(snapshotText), &resp); err != nil {
		return nil, 0, err
	}
	if len(resp.Data) == 0 {
		return nil, 0, errors.New("okx: depth snapshot response has no data")
	}

	item := resp.Data[0]
	ts, err := strconv.ParseInt(item.Ts, 10, 64)
	if err != nil {
		return nil, 0, err
	}

	payload, _ := json.Marshal(map[string]any{
		"stream": strings.ToLower(symbol) + "@depth",
		"data": map[string]any{
			"e": "depthUpdate",
			"E": recvTimeMs,
			"s": symbol,
			"U": ts,
			"u": ts,
			"b": item.Bids,
			"a": item.Asks,
		},
	})
	return payload, ts, nil
}
