package writer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/meltica/internal/record"
)

func TestWritePartitionsByDateAndSymbol(t *testing.T) {
	root := t.TempDir()
	w := New("test", root)
	defer w.Close()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := record.New(ts, "BTCUSDT", []byte(`{"a":1}`))
	require.NoError(t, err)

	require.NoError(t, w.Write(rec))

	path := filepath.Join(root, "2026-01-02", "BTCUSDT.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `{"a":1}`)
	require.Contains(t, string(data), "BTCUSDT")
}

func TestWriteAppendsAcrossCalls(t *testing.T) {
	root := t.TempDir()
	w := New("test", root)
	defer w.Close()

	ts := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rec1, _ := record.New(ts, "ETHUSDT", []byte(`{"n":1}`))
	rec2, _ := record.New(ts, "ETHUSDT", []byte(`{"n":2}`))

	require.NoError(t, w.Write(rec1))
	require.NoError(t, w.Write(rec2))

	path := filepath.Join(root, "2026-01-02", "ETHUSDT.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, countLines(string(data)))
}

func TestWriteFailsOnUnwritableRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permission bits")
	}
	root := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.Chmod(root, 0o500))
	defer os.Chmod(root, 0o755)

	w := New("test", root)
	ts := time.Now()
	rec, _ := record.New(ts, "BTCUSDT", []byte(`{}`))

	err := w.Write(rec)
	require.Error(t, err)
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
