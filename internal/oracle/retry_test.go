package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyProvider struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, errors.New("transient")
	}
	return &Response{Text: "ok"}, nil
}

func TestWithRetry_RecoversTransientFailure(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	p := WithRetry(inner, RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2})

	resp, err := p.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestWithRetry_ExhaustsAndReturnsLastError(t *testing.T) {
	inner := &flakyProvider{failures: 100}
	p := WithRetry(inner, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 2})

	if _, err := p.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if got := inner.calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestWithRetry_DoesNotRetryContextErrors(t *testing.T) {
	s := NewScripted("ok")
	s.FailWith(context.DeadlineExceeded)
	p := WithRetry(s, RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond})

	if _, err := p.Generate(context.Background(), Request{Prompt: "x"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if s.Calls() != 1 {
		t.Fatalf("deadline errors must not be retried, got %d calls", s.Calls())
	}
}

func TestWithRetry_ZeroRetriesReturnsInner(t *testing.T) {
	s := NewScripted("ok")
	if p := WithRetry(s, RetryPolicy{}); p != Provider(s) {
		t.Fatalf("zero-retry policy should return the provider unchanged")
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	if d := p.Delay(5); d > 3*time.Second {
		t.Fatalf("delay should be capped at max, got %v", d)
	}
	if d := p.Delay(0); d != time.Second {
		t.Fatalf("uncapped first delay should equal base, got %v", d)
	}
}
