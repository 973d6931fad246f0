package mind

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeModule struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       func(ctx context.Context, s *State) (Delta, error)
}

func (f *fakeModule) Name() string               { return f.name }
func (f *fakeModule) Interval() time.Duration    { return f.interval }
func (f *fakeModule) CallTimeout() time.Duration { return f.timeout }

func (f *fakeModule) OnTick(ctx context.Context, s *State) (Delta, error) {
	return f.fn(ctx, s)
}

func TestRuntimeStopsOnModuleError(t *testing.T) {
	s := NewState("a1", "Ada", "")
	boom := errors.New("boom")
	m := &fakeModule{
		name:     "broken",
		interval: time.Millisecond,
		fn: func(context.Context, *State) (Delta, error) {
			return Delta{}, boom
		},
	}

	err := NewRuntime(s, discardLogger(), m).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "module broken") {
		t.Fatalf("error does not name the module: %v", err)
	}
}

func TestRuntimeCleanShutdown(t *testing.T) {
	s := NewState("a1", "Ada", "")
	var ticks atomic.Int64
	m := &fakeModule{
		name:     "counter",
		interval: time.Millisecond,
		fn: func(context.Context, *State) (Delta, error) {
			ticks.Add(1)
			return Delta{Events: 1, Note: "tick"}, nil
		},
	}

	var mu sync.Mutex
	deltas := 0
	rt := NewRuntime(s, discardLogger(), m)
	rt.OnDelta(func(module string, d Delta) {
		mu.Lock()
		deltas++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	waitFor(t, func() bool { return ticks.Load() > 0 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if deltas == 0 {
		t.Fatal("delta sink never called")
	}
}

func TestRuntimeBoundsBlockingModules(t *testing.T) {
	s := NewState("a1", "Ada", "")
	var sawDeadline atomic.Bool
	m := &fakeModule{
		name:     "slow",
		interval: time.Millisecond,
		timeout:  50 * time.Millisecond,
		fn: func(ctx context.Context, _ *State) (Delta, error) {
			if _, ok := ctx.Deadline(); ok {
				sawDeadline.Store(true)
			}
			return Delta{}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRuntime(s, discardLogger(), m).Run(ctx) }()

	waitFor(t, func() bool { return sawDeadline.Load() })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}
