// Package writer implements the single writer-channel consumer (§4.5): it
// appends records, verbatim, to files partitioned by (UTC date, symbol).
// The partitioning scheme and line format are implementation-defined (§4.5
// leaves them out of the core spec); everything else here — append-only,
// open-once-per-key, flush-per-write, I/O failure is fatal — is the
// contract §4.5 does specify.
package writer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/coachpo/meltica/errs"
	"github.com/coachpo/meltica/internal/record"
)

// Writer appends records to one append-only file per (UTC date, symbol)
// under root, keeping each file open for the Writer's lifetime.
type Writer struct {
	exchangeName string
	root         string

	mu    sync.Mutex
	files map[string]*openFile
}

type openFile struct {
	f *os.File
	w *bufio.Writer
}

// New constructs a Writer rooted at root. New itself creates nothing; root
// and its per-date directories are created on the first Write that needs
// them.
func New(exchangeName, root string) *Writer {
	return &Writer{exchangeName: exchangeName, root: root, files: make(map[string]*openFile)}
}

// Write appends rec to its (date, symbol) partition file as a tab-separated
// line (recv_time_unix_ms, symbol, payload), then flushes. An I/O failure
// here is fatal per §4.5/§7; the caller (the dispatcher's select loop) is
// expected to treat any returned error as a shutdown signal.
func (w *Writer) Write(rec record.Record) error {
	key := rec.RecvTime.Format("2006-01-02") + "/" + rec.Symbol

	w.mu.Lock()
	defer w.mu.Unlock()

	of, ok := w.files[key]
	if !ok {
		var err error
		of, err = w.openPartition(key)
		if err != nil {
			return err
		}
		w.files[key] = of
	}

	line := strconv.FormatInt(rec.RecvTime.UnixMilli(), 10) + "\t" + rec.Symbol + "\t" + string(rec.Payload) + "\n"
	if _, err := of.w.WriteString(line); err != nil {
		return errs.New(w.exchangeName, errs.KindWriterIO, errs.WithSymbol(rec.Symbol), errs.WithCause(err))
	}
	if err := of.w.Flush(); err != nil {
		return errs.New(w.exchangeName, errs.KindWriterIO, errs.WithSymbol(rec.Symbol), errs.WithCause(err))
	}
	return nil
}

func (w *Writer) openPartition(key string) (*openFile, error) {
	path := filepath.Join(w.root, key+".log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.New(w.exchangeName, errs.KindWriterIO, errs.WithCause(err))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.New(w.exchangeName, errs.KindWriterIO, errs.WithCause(err))
	}
	return &openFile{f: f, w: bufio.NewWriter(f)}, nil
}

// Close flushes and closes every open partition file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for key, of := range w.files {
		if err := of.w.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush %s: %w", key, err)
		}
		if err := of.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", key, err)
		}
	}
	return firstErr
}
