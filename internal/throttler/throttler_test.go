package throttler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestRunRespectsBudgetWithinOneSecondWindow(t *testing.T) {
	th := New(3)
	var executed atomic.Int32

	for i := 0; i < 5; i++ {
		res := th.Run(context.Background(), func(ctx context.Context) (any, error) {
			executed.Add(1)
			return nil, nil
		})
		if i < 3 {
			require.Equal(t, Executed, res.Outcome)
		} else {
			require.Equal(t, Skipped, res.Outcome)
		}
	}
	require.EqualValues(t, 3, executed.Load())
}

func TestRunRefillsAfterWindow(t *testing.T) {
	th := New(1)

	first := th.Run(context.Background(), func(ctx context.Context) (any, error) { return "ok", nil })
	require.Equal(t, Executed, first.Outcome)

	second := th.Run(context.Background(), func(ctx context.Context) (any, error) { return "ok", nil })
	require.Equal(t, Skipped, second.Outcome)

	time.Sleep(1100 * time.Millisecond)

	third := th.Run(context.Background(), func(ctx context.Context) (any, error) { return "ok", nil })
	require.Equal(t, Executed, third.Outcome)
}

func TestRunConcurrentCallsNeverExceedBudget(t *testing.T) {
	th := New(5)
	var wg sync.WaitGroup
	var executed atomic.Int32
	var skipped atomic.Int32

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := th.Run(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
			if res.Outcome == Executed {
				executed.Add(1)
			} else {
				skipped.Add(1)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, int(executed.Load()), 5)
	require.EqualValues(t, 20, executed.Load()+skipped.Load())
}

func TestRunPropagatesWorkError(t *testing.T) {
	th := New(1)
	res := th.Run(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errBoom
	})
	require.Equal(t, Executed, res.Outcome)
	require.ErrorIs(t, res.Err, errBoom)
}
