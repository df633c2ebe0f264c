package autosave

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// Rapid edits collapse into a single save: each Schedule cancels the previous
// timer rather than stacking a second run.
func TestScheduleDebounces(t *testing.T) {
	var saves int32
	s := New(Config{
		Delay: 40 * time.Millisecond,
		Save: func(ctx context.Context) error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})

	for i := 0; i < 5; i++ {
		s.Schedule(false)
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&saves) == 1 })
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&saves))
	assert.Equal(t, StateIdle, s.State())
}

func TestImmediateUsesShortDelay(t *testing.T) {
	var saves int32
	s := New(Config{
		Delay:          300 * time.Millisecond,
		ImmediateDelay: 10 * time.Millisecond,
		Save: func(ctx context.Context) error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})

	s.Schedule(true)
	waitFor(t, func() bool { return atomic.LoadInt32(&saves) == 1 })
}

func TestCancelDropsPendingSave(t *testing.T) {
	var saves int32
	s := New(Config{
		Delay: 30 * time.Millisecond,
		Save: func(ctx context.Context) error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})

	s.Schedule(false)
	assert.Equal(t, StateScheduled, s.State())
	s.Cancel()
	assert.Equal(t, StateIdle, s.State())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&saves))
}

func TestDisableBlocksScheduling(t *testing.T) {
	var saves int32
	s := New(Config{
		Delay: 10 * time.Millisecond,
		Save: func(ctx context.Context) error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})

	s.Disable()
	s.Schedule(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&saves))

	s.Enable()
	s.Schedule(false)
	waitFor(t, func() bool { return atomic.LoadInt32(&saves) == 1 })
}

// A Schedule arriving while the save runs re-arms once instead of running
// concurrently.
func TestScheduleDuringSaveRearms(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var concurrent, maxConcurrent, saves int

	s := New(Config{
		Delay: 10 * time.Millisecond,
		Save: func(ctx context.Context) error {
			mu.Lock()
			concurrent++
			if concurrent > maxConcurrent {
				maxConcurrent = concurrent
			}
			saves++
			first := saves == 1
			mu.Unlock()

			if first {
				<-release
			}
			mu.Lock()
			concurrent--
			mu.Unlock()
			return nil
		},
	})

	s.Schedule(false)
	waitFor(t, func() bool { return s.State() == StateInFlight })

	// Arrives mid-save; must not start a second save now.
	s.Schedule(false)
	assert.Equal(t, StateInFlight, s.State())
	close(release)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return saves == 2
	})
	mu.Lock()
	assert.Equal(t, 1, maxConcurrent, "save ran concurrently with itself")
	mu.Unlock()
}

func TestFailedValidationSkipsSave(t *testing.T) {
	var saves int32
	var savedAt atomic.Value

	s := New(Config{
		Delay:    10 * time.Millisecond,
		Validate: func() bool { return false },
		Save: func(ctx context.Context) error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
		OnSaved: func(at time.Time) { savedAt.Store(at) },
	})

	s.Schedule(false)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&saves))
	assert.Nil(t, savedAt.Load(), "last-saved marker must stay untouched")
	assert.Equal(t, StateIdle, s.State())
}

func TestOnSavedAndOnError(t *testing.T) {
	var savedCount int32
	errCh := make(chan error, 1)
	fail := atomic.Bool{}
	fail.Store(true)

	s := New(Config{
		Delay: 10 * time.Millisecond,
		Save: func(ctx context.Context) error {
			if fail.Load() {
				return assert.AnError
			}
			return nil
		},
		OnSaved: func(at time.Time) { atomic.AddInt32(&savedCount, 1) },
		OnError: func(err error) { errCh <- err },
	})

	s.Schedule(false)
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, assert.AnError)
	case <-time.After(2 * time.Second):
		t.Fatal("expected save error")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&savedCount))

	fail.Store(false)
	s.Schedule(false)
	waitFor(t, func() bool { return atomic.LoadInt32(&savedCount) == 1 })
}
