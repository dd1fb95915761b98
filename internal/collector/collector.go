// Package collector implements the per-exchange depth-continuity engine
// (§4.4): it consumes one session's inbound frames, tracks per-symbol
// sequence continuity, dispatches rate-limited REST repairs on gaps, and
// pushes normalized records onto a shared writer channel.
package collector

import (
	"context"
	"log"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/meltica/internal/exchange"
	"github.com/coachpo/meltica/internal/record"
	"github.com/coachpo/meltica/internal/restclient"
	"github.com/coachpo/meltica/internal/throttler"
	"github.com/coachpo/meltica/internal/wsclient"
)

// repairShutdownDeadline bounds how long Run waits for in-flight repair
// tasks once its input or context signals shutdown (§5 Task 6 / §9 "child
// task scope").
const repairShutdownDeadline = 5 * time.Second

// Collector owns one exchange's continuity state, throttler, and REST
// fetcher, and drains one session's frames into the shared writer channel.
type Collector struct {
	exchangeName  string
	variant       exchange.Variant
	throttler     *throttler.Throttler
	fetchSnapshot restclient.Fetcher
	continuity    *exchange.ContinuityMap
	out           chan record.Record
	logger        *log.Logger

	wg conc.WaitGroup
}

// New constructs a Collector. out is the shared, bounded writer channel
// (drop-oldest under contention, per SPEC_FULL.md §9's bounded-channel
// decision); logger may be nil.
func New(exchangeName string, variant exchange.Variant, th *throttler.Throttler, fetchSnapshot restclient.Fetcher, out chan record.Record, logger *log.Logger) *Collector {
	return &Collector{
		exchangeName:  exchangeName,
		variant:       variant,
		throttler:     th,
		fetchSnapshot: fetchSnapshot,
		continuity:    exchange.NewContinuityMap(),
		out:           out,
		logger:        logger,
	}
}

// Run drains in until it closes or ctx is canceled, then waits up to
// repairShutdownDeadline for outstanding repair tasks before returning.
func (c *Collector) Run(ctx context.Context, in <-chan wsclient.InboundFrame) error {
	defer c.awaitRepairs()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			c.processFrame(ctx, frame)
		}
	}
}

func (c *Collector) processFrame(ctx context.Context, frame wsclient.InboundFrame) {
	msgs, err := c.variant.Classify(frame.Text)
	if err != nil {
		c.logf("ERROR format exchange=%s: %v", c.exchangeName, err)
		return
	}

	for _, msg := range msgs {
		switch msg.Kind {
		case exchange.KindControl:
			continue
		case exchange.KindDepth:
			c.processDepth(ctx, frame.RecvTime, msg)
		default:
			c.emit(frame.RecvTime, msg.Symbol, msg.Payload)
		}
	}
}

func (c *Collector) processDepth(ctx context.Context, recvTime time.Time, msg exchange.Message) {
	state := c.continuity.State(msg.Symbol)
	decision := c.variant.ContinuityDecision(*state, msg, recvTime.UnixMilli())

	if decision.SyncSnapshot {
		c.fetchSnapshotSync(ctx, msg.Symbol, state)
		return
	}

	if decision.Gap {
		c.logf("WARN gap exchange=%s symbol=%s", c.exchangeName, msg.Symbol)
		c.dispatchRepair(ctx, msg.Symbol)
	}

	state.LastSeq = decision.NewLastSeq
	state.Known = true

	if decision.Forward {
		c.emit(recvTime, msg.Symbol, decision.Payload)
	}
}

// fetchSnapshotSync performs a Decision.SyncSnapshot request (OKX's
// action=="snapshot") inline on the frame loop rather than spawning it like
// dispatchRepair: the fetch result is this symbol's new continuity state
// itself, and ContinuityMap is owned exclusively by the frame loop (§5), so
// the fetch-then-update must happen here, not on a detached goroutine.
func (c *Collector) fetchSnapshotSync(ctx context.Context, symbol string, state *exchange.ContinuitySymbolState) {
	res := c.throttler.Run(ctx, func(ctx context.Context) (any, error) {
		return c.fetchSnapshot(ctx, symbol)
	})

	switch res.Outcome {
	case throttler.Skipped:
		c.logf("WARN throttle_skip exchange=%s symbol=%s", c.exchangeName, symbol)
		return
	case throttler.Executed:
		if res.Err != nil {
			c.logf("ERROR snapshot_fetch exchange=%s symbol=%s: %v", c.exchangeName, symbol, res.Err)
			return
		}
	}

	normalizer, ok := c.variant.(exchange.SnapshotNormalizer)
	if !ok {
		c.logf("ERROR format exchange=%s symbol=%s: SyncSnapshot requested but variant has no SnapshotNormalizer", c.exchangeName, symbol)
		return
	}

	text, _ := res.Value.(string)
	now := time.Now()
	payload, newLastSeq, err := normalizer.NormalizeSnapshot(symbol, text, now.UnixMilli())
	if err != nil {
		c.logf("ERROR format exchange=%s symbol=%s: %v", c.exchangeName, symbol, err)
		return
	}

	state.LastSeq = newLastSeq
	state.Known = true
	c.emit(now, symbol, payload)
}

// dispatchRepair fires the fetch-snapshot-and-emit task independently of
// the frame loop (§4.4: "the repair task runs independently of the main
// frame loop"). It captures symbol by value; it never touches continuity
// state (§5 shared-resource policy).
func (c *Collector) dispatchRepair(ctx context.Context, symbol string) {
	c.wg.Go(func() {
		res := c.throttler.Run(ctx, func(ctx context.Context) (any, error) {
			return c.fetchSnapshot(ctx, symbol)
		})

		switch res.Outcome {
		case throttler.Skipped:
			c.logf("WARN throttle_skip exchange=%s symbol=%s", c.exchangeName, symbol)
		case throttler.Executed:
			if res.Err != nil {
				c.logf("ERROR snapshot_fetch exchange=%s symbol=%s: %v", c.exchangeName, symbol, res.Err)
				return
			}
			text, _ := res.Value.(string)
			c.emit(time.Now(), symbol, []byte(text))
		}
	})
}

func (c *Collector) emit(recvTime time.Time, symbol string, payload []byte) {
	rec, err := record.New(recvTime, symbol, payload)
	if err != nil {
		c.logf("ERROR format exchange=%s symbol=%s: %v", c.exchangeName, symbol, err)
		return
	}
	sendDropOldest(c.out, rec)
}

// sendDropOldest attempts a non-blocking send; if the channel is full it
// drops the oldest queued record to make room, per SPEC_FULL.md §9's
// bounded-channel/drop-oldest decision. Under concurrent producers this is
// best-effort, not atomic: the invariant being protected is bounded memory,
// not exact drop accounting.
func sendDropOldest(ch chan record.Record, rec record.Record) {
	for {
		select {
		case ch <- rec:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (c *Collector) awaitRepairs() {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(repairShutdownDeadline):
	}
}
