// Package oracle wraps the external natural-language reasoning service
// behind a blocking request/response interface. Providers are expected to
// be slow (hundreds of ms to seconds) and unreliable; callers own the
// timeout via ctx and degrade on any error.
package oracle

import (
	"context"
	"errors"
	"time"
)

type Request struct {
	System      string
	Prompt      string
	Model       string // overrides the provider default when non-empty
	Temperature float64
	MaxTokens   int
}

type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Elapsed          time.Duration
}

type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

var ErrEmptyReply = errors.New("oracle: empty reply")
