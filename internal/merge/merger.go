// Package merge collapses a group of duplicate records into one canonical
// record via the LLM, following a documented field-preference policy.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	derrors "github.com/snowpilotorg/dedupit/internal/errors"
	"github.com/snowpilotorg/dedupit/internal/llm"
)

const systemPrompt = `You are a data merging assistant.
Your task is to merge multiple records that represent the same entity into a single record.
- Combine all unique information
- When values appear compatible, combine them to create the most complete value
- When values appear to be contradictory, choose the most likely correct value

IMPORTANT: You must return ONLY the merged record as valid JSON with no additional text.
Maintain the exact same schema as the input records.

You will have to use good judgement, but here are some general guidelines:

- Prefer completeness:
    - If two records have similar values for a field, combine them to create the most complete value.
- Prefer latest timestamp:
    - If there is a conflict between two records with different timestamps, prefer the record with the latest timestamp.
- Prefer work email:
    - If there appear to be personal and work email addresses in the same field, prefer the work email address.
- Prefer specific address:
    - If there are two records with different addresses, prefer the address that appears more complete and specific.
- Prefer full name:
    - If there are two records with variations of the same name, prefer the full name.


Here are some examples:

Example 1:
- INPUT: [
    {"name": "John Smith", "email": "john@acme.com", "address": "123 Main St, Anytown, USA"},
    {"name": "John B. Smith", "email": "john.smith@gmail.com", "address": "123 Main St, Anytown, USA"}
]
- OUTPUT: {"name": "John B. Smith", "email": "john@acme.com", "address": "123 Main St, Anytown, USA"}
- Explanation: The name is more complete in the second record, and the email is more likely to be work.  The address is the same in both records.

Example 2:
- INPUT: [
    {"name": "Acme Inc.", "address": "123 Main St, Anytown, USA"},
    {"name": "acme corporation", "address": "123 Main St, Suite 100, Anytown, California, USA "},
    {"name": "Acme Inc.", "address": "123 Main St, Anytown"}
]
- OUTPUT: {"name": "Acme Inc.", "address": "123 Main St, Suite 100, Anytown, California, USA"}
- Explanation: The first and third records have the same form of the name, and the address is more complete in the second record.

The user may provide additional guidelines for merging.  Follow these guidelines if provided.  The user's guidelines take precedence over the examples above.
The user will also provide the records to be merged.  Use your best judgement; remember that you are an expert at entity matching and deduplication.`

// Config configures the merger.
type Config struct {
	// Model is the chat-completion model id. A smaller, faster model than
	// the oracle's is enough here.
	Model string

	// Retry is the rate-limit retry policy.
	Retry llm.RetryConfig
}

// Merger combines records of one group into a single record with the same
// schema. Safe for concurrent use.
type Merger struct {
	messages llm.Messages
	config   Config
}

// NewMerger creates a merger over the given message API.
func NewMerger(messages llm.Messages, cfg Config) *Merger {
	return &Merger{messages: messages, config: cfg}
}

// MergeRecords merges records sharing a schema into one record. The reply
// must parse as a JSON object; anything else fails the request.
func (m *Merger) MergeRecords(ctx context.Context, records []map[string]any) (map[string]any, error) {
	if len(records) == 0 {
		return nil, derrors.New(derrors.ErrCodeMergerFailed, "no records provided for merging", nil)
	}
	if len(records) == 1 {
		return records[0], nil
	}

	start := time.Now()
	slog.Info("merging records", slog.Int("count", len(records)))

	reply, err := m.completion(ctx, m.buildPrompt(records))
	if err != nil {
		return nil, err
	}

	var merged map[string]any
	if err := json.Unmarshal([]byte(reply), &merged); err != nil || merged == nil {
		return nil, derrors.New(derrors.ErrCodeMergedNotJSON,
			"merger returned invalid JSON", err)
	}

	slog.Info("merge complete",
		slog.Int("count", len(records)),
		slog.Duration("duration", time.Since(start)))
	return merged, nil
}

// buildPrompt renders the records to merge inside a <duplicate_records> block.
func (m *Merger) buildPrompt(records []map[string]any) string {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		b = []byte("[]")
	}
	return fmt.Sprintf(`Please merge these records into a single record that combines all unique information
and resolves any conflicts. Maintain the exact same schema.

Records to merge:

<duplicate_records>
%s
</duplicate_records>

Return only the merged record as a JSON object.`, string(b))
}

// completion runs one merger call under the rate-limit retry policy.
func (m *Merger) completion(ctx context.Context, userPrompt string) (string, error) {
	reply, err := llm.RetryRateLimited(ctx, m.config.Retry, func() (string, error) {
		message, err := m.messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(m.config.Model),
			MaxTokens:   1024,
			Temperature: anthropic.Float(0.1),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return "", err
		}
		if len(message.Content) == 0 {
			return "", nil
		}
		return message.Content[0].Text, nil
	})
	if err != nil {
		if derrors.GetCode(err) == derrors.ErrCodeRateLimited || ctx.Err() != nil {
			return "", err
		}
		return "", derrors.Wrap(derrors.ErrCodeMergerFailed, err)
	}
	return reply, nil
}
