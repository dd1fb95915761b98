// Package dispatcher implements the main dispatcher (§4.6): given an
// output path, exchange name, and symbol list, it selects the matching
// collector family, transforms symbols into the exchange's native form,
// spawns the session supervisor and collector, and runs the writer loop
// until interrupt, writer-channel closure, or a writer error.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/meltica/internal/collector"
	"github.com/coachpo/meltica/internal/exchange"
	"github.com/coachpo/meltica/internal/exchange/binance"
	"github.com/coachpo/meltica/internal/exchange/bybit"
	"github.com/coachpo/meltica/internal/exchange/hyperliquid"
	"github.com/coachpo/meltica/internal/exchange/okx"
	"github.com/coachpo/meltica/internal/record"
	"github.com/coachpo/meltica/internal/restclient"
	"github.com/coachpo/meltica/internal/throttler"
	"github.com/coachpo/meltica/internal/writer"
	"github.com/coachpo/meltica/internal/wsclient"
)

// writerChannelCapacity bounds the shared writer channel per SPEC_FULL.md
// §9's drop-oldest decision.
const writerChannelCapacity = 4096

// snapshotRate is the per-exchange REST budget passed to the throttler; the
// teacher's binance/mod.rs comment notes Binance's snapshot endpoint allows
// roughly 120 requests/minute with margin for connection overhead, so 1/s
// is a conservative, round per-exchange default for every venue here.
const snapshotRate = 1

type venueConfig struct {
	wsURL        string
	restBaseURL  string
	restPath     string
	restQuery    string
	buildVariant func() exchange.Variant
}

var venues = map[string]venueConfig{
	"binance": {
		wsURL:       "wss://stream.binance.com:9443/ws",
		restBaseURL: "https://api.binance.com",
		restPath:    "/api/v3/depth",
		restQuery:   "symbol",
		buildVariant: func() exchange.Variant { return binance.New(binance.VenueSpot) },
	},
	"binancespot": {
		wsURL:       "wss://stream.binance.com:9443/ws",
		restBaseURL: "https://api.binance.com",
		restPath:    "/api/v3/depth",
		restQuery:   "symbol",
		buildVariant: func() exchange.Variant { return binance.New(binance.VenueSpot) },
	},
	"binancefutures": {
		wsURL:       "wss://fstream.binance.com/ws",
		restBaseURL: "https://fapi.binance.com",
		restPath:    "/fapi/v1/depth",
		restQuery:   "symbol",
		buildVariant: func() exchange.Variant { return binance.New(binance.VenueFuturesUM) },
	},
	"binancefuturesum": {
		wsURL:       "wss://fstream.binance.com/ws",
		restBaseURL: "https://fapi.binance.com",
		restPath:    "/fapi/v1/depth",
		restQuery:   "symbol",
		buildVariant: func() exchange.Variant { return binance.New(binance.VenueFuturesUM) },
	},
	"binancefuturescm": {
		wsURL:       "wss://dstream.binance.com/ws",
		restBaseURL: "https://dapi.binance.com",
		restPath:    "/dapi/v1/depth",
		restQuery:   "symbol",
		buildVariant: func() exchange.Variant { return binance.New(binance.VenueFuturesCM) },
	},
	"bybit": {
		wsURL:        "wss://stream.bybit.com/v5/public/linear",
		buildVariant: func() exchange.Variant { return bybit.New(bybit.CategoryLinear) },
	},
	"bybitspot": {
		wsURL:        "wss://stream.bybit.com/v5/public/spot",
		buildVariant: func() exchange.Variant { return bybit.New(bybit.CategorySpot) },
	},
	"hyperliquid": {
		wsURL:        "wss://api.hyperliquid.xyz/ws",
		buildVariant: func() exchange.Variant { return hyperliquid.New() },
	},
	"okx": {
		wsURL:       "wss://ws.okx.com:8443/ws/v5/public",
		restBaseURL: "https://www.okx.com",
		restPath:    "/api/v5/market/books",
		restQuery:   "instId",
		buildVariant: func() exchange.Variant { return okx.New(okx.VenueSpot) },
	},
	"okxspot": {
		wsURL:       "wss://ws.okx.com:8443/ws/v5/public",
		restBaseURL: "https://www.okx.com",
		restPath:    "/api/v5/market/books",
		restQuery:   "instId",
		buildVariant: func() exchange.Variant { return okx.New(okx.VenueSpot) },
	},
	"okxswap": {
		wsURL:       "wss://ws.okx.com:8443/ws/v5/public",
		restBaseURL: "https://www.okx.com",
		restPath:    "/api/v5/market/books",
		restQuery:   "instId",
		buildVariant: func() exchange.Variant { return okx.New(okx.VenueSwap) },
	},
	"okxfutures": {
		wsURL:       "wss://ws.okx.com:8443/ws/v5/public",
		restBaseURL: "https://www.okx.com",
		restPath:    "/api/v5/market/books",
		restQuery:   "instId",
		buildVariant: func() exchange.Variant { return okx.New(okx.VenueSwap) },
	},
}

// Recognized returns every CLI-recognized exchange identifier, sorted, for
// the unknown-exchange error message (§6).
func Recognized() []string {
	names := make([]string, 0, len(venues))
	for name := range venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// transformSymbol applies §4.6's OKX symbol-transform rule; every other
// exchange passes symbols through uppercased, unmodified.
func transformSymbol(exchangeName, symbol string) string {
	symbol = strings.ToUpper(symbol)
	if !strings.HasPrefix(exchangeName, "okx") {
		return symbol
	}
	quote := ""
	switch {
	case strings.HasSuffix(symbol, "USDT"):
		quote = "USDT"
	case strings.HasSuffix(symbol, "USDC"):
		quote = "USDC"
	default:
		return symbol
	}
	base := strings.TrimSuffix(symbol, quote)
	transformed := base + "-" + quote
	if exchangeName == "okxswap" || exchangeName == "okxfutures" {
		transformed += "-SWAP"
	}
	return transformed
}

// recordWriter is the subset of *writer.Writer the dispatcher depends on;
// narrowed to an interface so tests can inject a writer that fails on
// command (§8 scenario 6).
type recordWriter interface {
	Write(record.Record) error
	Close() error
}

// Dispatcher owns one exchange's supervisor, collector, and writer, and
// runs them until shutdown.
type Dispatcher struct {
	exchangeName string
	symbols      []string
	logger       *log.Logger

	supervisor *wsclient.Supervisor
	collector  *collector.Collector
	writer     recordWriter

	frames  chan wsclient.InboundFrame
	records chan record.Record
}

// New builds a Dispatcher for exchangeName and symbols, writing under
// outputPath. It returns an error for an unrecognized exchangeName.
func New(outputPath, exchangeName string, symbols []string, logger *log.Logger) (*Dispatcher, error) {
	cfg, ok := venues[exchangeName]
	if !ok {
		return nil, fmt.Errorf("unrecognized exchange %q (recognized: %s)", exchangeName, strings.Join(Recognized(), ", "))
	}

	nativeSymbols := make([]string, len(symbols))
	for i, s := range symbols {
		nativeSymbols[i] = transformSymbol(exchangeName, s)
	}

	variant := cfg.buildVariant()
	subscribePayload := variant.SubscribePayload(nativeSymbols)

	fetch := noopFetcher
	if cfg.restBaseURL != "" {
		fetch = restclient.New(exchangeName, &http.Client{Timeout: 10 * time.Second}, cfg.restBaseURL, cfg.restPath, cfg.restQuery)
	}

	frames := make(chan wsclient.InboundFrame, writerChannelCapacity)
	records := make(chan record.Record, writerChannelCapacity)

	supervisor := wsclient.NewSupervisor(func() *wsclient.Session {
		return wsclient.NewSession(cfg.wsURL, subscribePayload)
	}, logger)

	col := collector.New(exchangeName, variant, throttler.New(snapshotRate), fetch, records, logger)

	return &Dispatcher{
		exchangeName: exchangeName,
		symbols:      nativeSymbols,
		logger:       logger,
		supervisor:   supervisor,
		collector:    col,
		writer:       writer.New(exchangeName, outputPath),
		frames:       frames,
		records:      records,
	}, nil
}

func noopFetcher(ctx context.Context, symbol string) (string, error) {
	return "", fmt.Errorf("dispatcher: no REST endpoint configured for this exchange")
}

// Run spawns the supervisor and collector, then runs the writer loop until
// ctx is canceled, the records channel closes, or Write returns an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer d.writer.Close()

	var wg conc.WaitGroup
	wg.Go(func() {
		_ = d.supervisor.Run(runCtx, d.frames)
	})
	wg.Go(func() {
		_ = d.collector.Run(runCtx, d.frames)
	})
	defer wg.Wait()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case rec, ok := <-d.records:
			if !ok {
				return nil
			}
			if err := d.writer.Write(rec); err != nil {
				d.logf("ERROR writer_io exchange=%s: %v", d.exchangeName, err)
				return err
			}
		}
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
