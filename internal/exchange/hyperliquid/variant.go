// Package hyperliquid implements exchange.Variant for Hyperliquid's public
// WebSocket (trades, l2Book, bbo subscriptions).
//
// Like bybit, this variant is supplemented from original_source/collector/
// src/main.rs (which subscribes "trades"/"l2Book"/"bbo" with no gap-repair
// logic of its own) to keep the CLI's recognized-exchange list complete;
// it forwards every frame verbatim with no continuity tracking.
package hyperliquid

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/meltica/internal/exchange"
)

// Variant implements exchange.Variant for Hyperliquid.
type Variant struct{}

// New constructs a Hyperliquid variant.
func New() *Variant {
	return &Variant{}
}

type frameEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type coinBearer struct {
	Coin string `json:"coin"`
}

// SubscribePayload subscribes to trades, l2Book, and bbo for each coin.
func (v *Variant) SubscribePayload(symbols []string) []byte {
	subs := make([]map[string]string, 0, len(symbols)*3)
	for _, sym := range symbols {
		for _, channel := range []string{"trades", "l2Book", "bbo"} {
			subs = append(subs, map[string]string{"type": channel, "coin": sym})
		}
	}
	payload, _ := json.Marshal(map[string]any{"method": "subscribe", "subscription": subs})
	return payload
}

// Classify forwards every data frame verbatim; "subscriptionResponse" and
// similar control channels are dropped.
func (v *Variant) Classify(frame []byte) ([]exchange.Message, error) {
	var env frameEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	switch env.Channel {
	case "trades", "l2Book", "bbo":
	default:
		return nil, nil
	}

	symbol := ""
	var bearer coinBearer
	if json.Unmarshal(env.Data, &bearer) == nil && bearer.Coin != "" {
		symbol = strings.ToUpper(bearer.Coin)
	} else {
		var bearers []coinBearer
		if json.Unmarshal(env.Data, &bearers) == nil && len(bearers) > 0 {
			symbol = strings.ToUpper(bearers[0].Coin)
		}
	}
	if symbol == "" {
		return nil, nil
	}

	return []exchange.Message{{Kind: exchange.KindOther, Symbol: symbol, Payload: frame}}, nil
}

// ContinuityDecision is never invoked: Classify never produces a KindDepth
// message for this variant. It exists only to satisfy exchange.Variant.
func (v *Variant) ContinuityDecision(_ exchange.ContinuitySymbolState, msg exchange.Message, _ int64) exchange.Decision {
	return exchange.Decision{Gap: false, Forward: true, Payload: msg.Payload, NewLastSeq: msg.Seq}
}
