package binance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/meltica/internal/exchange"
)

func depthFrame(u, u2 int64) []byte {
	return []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT","U":` +
		itoa(u) + `,"u":` + itoa(u2) + `,"b":[],"a":[]}}`)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestClassifyDepthUpdate(t *testing.T) {
	v := New(VenueSpot)
	msgs, err := v.Classify(depthFrame(1, 5))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, exchange.KindDepth, msgs[0].Kind)
	require.Equal(t, "BTCUSDT", msgs[0].Symbol)
	require.EqualValues(t, 1, msgs[0].U)
	require.EqualValues(t, 5, msgs[0].Seq)
}

func TestClassifyControlFrameDropped(t *testing.T) {
	v := New(VenueSpot)
	msgs, err := v.Classify([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	require.Nil(t, msgs)
}

func TestClassifyNonJSONIsFormatError(t *testing.T) {
	v := New(VenueSpot)
	_, err := v.Classify([]byte(`not json`))
	require.Error(t, err)
}

func TestContinuityNoGap(t *testing.T) {
	v := New(VenueSpot)
	cm := exchange.NewContinuityMap()

	first, err := v.Classify(depthFrame(1, 5))
	require.NoError(t, err)
	state := cm.State("BTCUSDT")
	d1 := v.ContinuityDecision(*state, first[0], 0)
	require.False(t, d1.Gap)
	require.True(t, d1.Forward)
	state.LastSeq, state.Known = d1.NewLastSeq, true

	second, err := v.Classify(depthFrame(6, 9))
	require.NoError(t, err)
	d2 := v.ContinuityDecision(*state, second[0], 0)
	require.False(t, d2.Gap)
	require.EqualValues(t, 9, d2.NewLastSeq)
}

func TestContinuityGapTriggersRepair(t *testing.T) {
	v := New(VenueSpot)
	cm := exchange.NewContinuityMap()
	state := cm.State("BTCUSDT")

	first, _ := v.Classify(depthFrame(1, 5))
	d1 := v.ContinuityDecision(*state, first[0], 0)
	state.LastSeq, state.Known = d1.NewLastSeq, true

	second, _ := v.Classify(depthFrame(10, 12))
	d2 := v.ContinuityDecision(*state, second[0], 0)
	require.True(t, d2.Gap)
	require.True(t, d2.Forward, "gap does not suppress forwarding the original frame")
	require.EqualValues(t, 12, d2.NewLastSeq)
}

func TestContinuityOverlapIsNotAGap(t *testing.T) {
	v := New(VenueSpot)
	state := exchange.ContinuitySymbolState{LastSeq: 9, Known: true}
	msg := exchange.Message{Kind: exchange.KindDepth, U: 5, Seq: 9}
	d := v.ContinuityDecision(state, msg, 0)
	require.False(t, d.Gap)
}
