package oracle

import (
	"context"
	"sync"
	"time"
)

// Scripted replays canned replies in order, cycling when exhausted. Used by
// tests and for offline runs without a reasoning backend.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	next    int
	delay   time.Duration
	fail    error
	calls   int
	prompts []string
}

func NewScripted(replies ...string) *Scripted {
	if len(replies) == 0 {
		replies = []string{"ACTION: wait\nREASONING: nothing scripted"}
	}
	return &Scripted{replies: replies}
}

// FailWith makes every subsequent call return err (nil restores replies).
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SetDelay makes every call block for d (or until ctx expires).
func (s *Scripted) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastPrompt returns the most recent prompt seen, or "".
func (s *Scripted) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Generate(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, req.Prompt)
	delay := s.delay
	fail := s.fail
	reply := s.replies[s.next%len(s.replies)]
	s.next++
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail != nil {
		return nil, fail
	}
	return &Response{Text: reply}, nil
}
