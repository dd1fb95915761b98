// Command collector launches one exchange market-data collection session.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coachpo/meltica/internal/dispatcher"
)

const collectorLoggerPrefix = "collector "

func main() {
	outputPath, exchangeName, symbols := parseArgs(os.Args[1:])

	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newCollectorLogger()

	d, err := dispatcher.New(outputPath, exchangeName, symbols, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	logger.Printf("starting exchange=%s symbols=%s output=%s", exchangeName, strings.Join(symbols, ","), outputPath)

	if err := d.Run(ctx); err != nil {
		logger.Fatalf("writer failed: %v", err)
	}

	logger.Printf("shutdown complete")
}

func parseArgs(args []string) (outputPath, exchangeName string, symbols []string) {
	if len(args) < 3 {
		log.Fatalf("usage: collector <output_path> <exchange> <symbol>...\nrecognized exchanges: %s",
			strings.Join(dispatcher.Recognized(), ", "))
	}
	return args[0], args[1], args[2:]
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newCollectorLogger() *log.Logger {
	return log.New(os.Stdout, collectorLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}
