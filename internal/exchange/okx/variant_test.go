package okx

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/meltica/internal/exchange"
)

func TestClassifyTradeRoundTrip(t *testing.T) {
	v := New(VenueSpot)
	frame := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","tradeId":"7","px":"100.5","sz":"0.1","side":"buy","ts":"1700000000000"}
	]}`)

	msgs, err := v.Classify(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, exchange.KindOther, msgs[0].Kind)
	require.Equal(t, "BTCUSDT", msgs[0].Symbol)

	var decoded struct {
		Stream string         `json:"stream"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	require.Equal(t, "btcusdt@trade", decoded.Stream)
	require.Equal(t, "trade", decoded.Data["e"])
	require.Equal(t, "BTCUSDT", decoded.Data["s"])
	require.EqualValues(t, 7, decoded.Data["t"])
	require.Equal(t, "100.5", decoded.Data["p"])
	require.Equal(t, "0.1", decoded.Data["q"])
	require.EqualValues(t, 1700000000000, decoded.Data["T"])
}

func TestClassifyBBORoundTrip(t *testing.T) {
	v := New(VenueSpot)
	frame := []byte(`{"arg":{"channel":"bbo-tbt","instId":"BTC-USDT"},"data":[
		{"asks":[["101","1"]],"bids":[["100","2"]],"ts":"1700000000000"}
	]}`)

	msgs, err := v.Classify(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var decoded struct {
		Stream string         `json:"stream"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	require.Equal(t, "btcusdt@bookTicker", decoded.Stream)
	require.EqualValues(t, 1700000000000, decoded.Data["u"])
	require.Equal(t, "BTCUSDT", decoded.Data["s"])
	require.Equal(t, "100", decoded.Data["b"])
	require.Equal(t, "2", decoded.Data["B"])
	require.Equal(t, "101", decoded.Data["a"])
	require.Equal(t, "1", decoded.Data["A"])
}

func TestClassifyBooksSnapshotAction(t *testing.T) {
	v := New(VenueSpot)
	frame := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[
		{"asks":[["101","1"]],"bids":[["100","2"]],"ts":"1700000000000"}
	]}`)

	msgs, err := v.Classify(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, exchange.KindDepth, msgs[0].Kind)
	require.Equal(t, "snapshot", msgs[0].Action)
	require.EqualValues(t, 1700000000000, msgs[0].Seq)
}

func TestContinuityDecisionSnapshotRequestsSyncFetch(t *testing.T) {
	v := New(VenueSpot)
	frame := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[
		{"asks":[["101","1"]],"bids":[["100","2"]],"ts":"1700000000000"}
	]}`)
	msgs, err := v.Classify(frame)
	require.NoError(t, err)

	d := v.ContinuityDecision(exchange.ContinuitySymbolState{}, msgs[0], 1700000000001)
	require.False(t, d.Gap)
	require.True(t, d.SyncSnapshot)
	require.Nil(t, d.Payload)
}

func TestNormalizeSnapshotSetsUEqualsUFromRESTResponse(t *testing.T) {
	v := New(VenueSpot)
	restBody := `{"code":"0","data":[{"asks":[["101","1"]],"bids":[["100","2"]],"ts":"1700000000555"}]}`

	payload, newLastSeq, err := v.NormalizeSnapshot("BTCUSDT", restBody, 1700000000999)
	require.NoError(t, err)
	require.EqualValues(t, 1700000000555, newLastSeq)

	var decoded struct {
		Stream string         `json:"stream"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "btcusdt@depth", decoded.Stream)
	require.Equal(t, decoded.Data["U"], decoded.Data["u"])
	require.EqualValues(t, 1700000000555, decoded.Data["U"])
	require.Equal(t, "BTCUSDT", decoded.Data["s"])
}

func TestNormalizeSnapshotErrorsOnEmptyData(t *testing.T) {
	v := New(VenueSpot)
	_, _, err := v.NormalizeSnapshot("BTCUSDT", `{"code":"0","data":[]}`, 0)
	require.Error(t, err)
}

func TestContinuityDecisionUpdateDerivesUFromLastUpdateID(t *testing.T) {
	v := New(VenueSpot)
	frame := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[
		{"asks":[["101","1"]],"bids":[["100","2"]],"ts":"1700000000100"}
	]}`)
	msgs, err := v.Classify(frame)
	require.NoError(t, err)

	state := exchange.ContinuitySymbolState{LastSeq: 1700000000000, Known: true}
	d := v.ContinuityDecision(state, msgs[0], 0)

	var decoded struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(d.Payload, &decoded))
	require.EqualValues(t, 1700000000000, decoded.Data["U"])
	require.EqualValues(t, 1700000000100, decoded.Data["u"])
	require.EqualValues(t, 1700000000100, d.NewLastSeq)
}

func TestContinuityDecisionUpdateWithoutPriorStateUsesTsMinusOne(t *testing.T) {
	v := New(VenueSpot)
	frame := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[
		{"asks":[["101","1"]],"bids":[["100","2"]],"ts":"1700000000100"}
	]}`)
	msgs, err := v.Classify(frame)
	require.NoError(t, err)

	d := v.ContinuityDecision(exchange.ContinuitySymbolState{}, msgs[0], 0)

	var decoded struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(d.Payload, &decoded))
	require.EqualValues(t, 1700000000099, decoded.Data["U"])
}

func TestCanonicalSymbolStripsDashes(t *testing.T) {
	require.Equal(t, "BTCUSDT", canonicalSymbol("BTC-USDT"))
	require.Equal(t, "BTCUSDTSWAP", canonicalSymbol("BTC-USDT-SWAP"))
}
