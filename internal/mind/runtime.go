package mind

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runtime drives each module on its own ticker goroutine. One failing
// module cancels the group: a module error means the agent cannot continue.
type Runtime struct {
	state   *State
	logger  *log.Logger
	modules []Module
	onDelta func(module string, d Delta)
}

func NewRuntime(state *State, logger *log.Logger, modules ...Module) *Runtime {
	return &Runtime{state: state, logger: logger, modules: modules}
}

// OnDelta registers a sink for non-empty tick deltas. Set before Run; fn is
// called from every module goroutine and must be safe for concurrent use.
func (r *Runtime) OnDelta(fn func(module string, d Delta)) { r.onDelta = fn }

func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range r.modules {
		g.Go(func() error { return r.loop(ctx, m) })
	}
	return g.Wait()
}

func (r *Runtime) loop(ctx context.Context, m Module) error {
	iv := m.Interval()
	if iv <= 0 {
		iv = time.Second
	}
	t := time.NewTicker(iv)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		tctx := ctx
		cancel := context.CancelFunc(nil)
		if b, ok := m.(Blocking); ok && b.CallTimeout() > 0 {
			tctx, cancel = context.WithTimeout(ctx, b.CallTimeout())
		}
		start := time.Now()
		d, err := m.OnTick(tctx, r.state)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			r.logger.Printf("agent=%s module=%s fatal after %s: %v",
				r.state.agentID, m.Name(), time.Since(start).Round(time.Millisecond), err)
			return fmt.Errorf("module %s: %w", m.Name(), err)
		}
		if (d.Events > 0 || d.Note != "") && r.onDelta != nil {
			r.onDelta(m.Name(), d)
		}
	}
}
