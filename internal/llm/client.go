// Package llm holds the shared Anthropic API client and the rate-limit
// retry policy used by the pairwise oracle and the merger.
package llm

import (
	"context"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Messages is the slice of the Anthropic client the oracle and merger use.
// Narrowing to one method keeps both testable with a scripted fake.
type Messages interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

var (
	clientOnce sync.Once
	client     anthropic.Client
)

// Client returns the process-wide Anthropic client, created lazily on first
// use and never mutated afterwards. Credentials come from the environment
// (ANTHROPIC_API_KEY); the SDK reads them itself.
func Client() anthropic.Client {
	clientOnce.Do(func() {
		client = anthropic.NewClient()
	})
	return client
}

// ClientMessages returns the shared client's message API as the narrow
// Messages interface.
func ClientMessages() Messages {
	return messagesAdapter{Client()}
}

type messagesAdapter struct {
	client anthropic.Client
}

func (a messagesAdapter) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	return a.client.Messages.New(ctx, params, opts...)
}
