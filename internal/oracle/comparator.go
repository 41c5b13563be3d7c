// Package oracle adjudicates candidate pairs: given two record payloads it
// asks the LLM whether they refer to the same real-world entity and reduces
// the reply to a Boolean verdict.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	derrors "github.com/snowpilotorg/dedupit/internal/errors"
	"github.com/snowpilotorg/dedupit/internal/llm"
	"github.com/snowpilotorg/dedupit/internal/record"
)

const systemPrompt = `You are a messy data deduplication expert.  Your job is to determine if two records refer to the same entity,
bearing in mind that records representing the same entity may have slight discrepancies in their representations due to typos,
abbreviations, formatting, or changes in mutable attributes like address over time.

To indicate that the two records refer to the same entity, respond with ONLY 'YES'.
To indicate that the two records do not refer to the same entity, respond with ONLY 'NO'.
Respond with ONLY 'YES' or 'NO'.  Do not respond with anything else.

Here are some examples:

Example 1:
- Record 1: {"name": "John Smith", "email": "john@acme.com", "address": "123 Main St, Anytown, USA"}
- Record 2: {"name": "John B. Smith", "email": "john.smith@gmail.com", "address": "123 Main St, Anytown, USA"}
- Result: YES
- Explanation: Given the similarity in the name and address (only differing by inclusion of a middle initial), we can infer that these two records likely refer to the same person,
        and that the differences in the email are likely a work vs. personal email

Example 2:
- Record 1: {"name": "Acme Inc.", "address": "123 Main St, Anytown, USA"}
- Record 2: {"name": "acme corporation", "address": "123 Main St, Suite 100, Anytown, California, USA "}
- Result: YES
- Explanation: The two companies have the same name and address, with differences only in formatting and some additional address information.  These are likely the same company.

The user may provide additional guidelines for matching.  Follow these guidelines if provided.  The user's guidelines take precedence over the examples above.
The user will also provide the two records to be compared.  Use your best judgement; remember that you are an expert at entity matching and deduplication.`

const userGuidelines = `- Different legal entity names for the same company should match (e.g., 'Apple Inc' and 'Apple Corporation' are the same company)
- Abbreviated forms should match their full forms (Corp/Corporation, Inc/Incorporated)`

// Config configures the comparator.
type Config struct {
	// Model is the chat-completion model id.
	Model string

	// Retry is the rate-limit retry policy.
	Retry llm.RetryConfig
}

// Comparator asks the oracle for pairwise same-entity verdicts.
// Safe for concurrent use; the pipeline bounds parallelism.
type Comparator struct {
	messages llm.Messages
	config   Config
}

// NewComparator creates a comparator over the given message API.
func NewComparator(messages llm.Messages, cfg Config) *Comparator {
	return &Comparator{messages: messages, config: cfg}
}

// AreDuplicates asks the oracle whether the two record payloads refer to the
// same entity. The verdict is true iff the trimmed, upper-cased reply equals
// "YES"; any other reply, including malformed output, is a negative verdict.
func (c *Comparator) AreDuplicates(ctx context.Context, dataA, dataB map[string]any) (bool, error) {
	start := time.Now()

	reply, err := c.completion(ctx, c.buildPrompt(dataA, dataB))
	if err != nil {
		return false, err
	}

	verdict := strings.ToUpper(strings.TrimSpace(reply)) == "YES"
	slog.Info("oracle verdict",
		slog.Bool("match", verdict),
		slog.Duration("duration", time.Since(start)))
	return verdict, nil
}

// buildPrompt renders the user message: guidelines followed by both records
// as pretty JSON under their labels.
func (c *Comparator) buildPrompt(dataA, dataB map[string]any) string {
	return fmt.Sprintf(`Consider the following guidelines:
%s

Are the records referring to the same entity?

Record 1: %s
Record 2: %s`, userGuidelines, record.PrettyJSON(dataA), record.PrettyJSON(dataB))
}

// completion runs one oracle call under the rate-limit retry policy. The
// system prompt carries an ephemeral cache hint; every call shares it, so
// only the user message (guidelines and the two records) is new tokens.
func (c *Comparator) completion(ctx context.Context, userPrompt string) (string, error) {
	reply, err := llm.RetryRateLimited(ctx, c.config.Retry, func() (string, error) {
		message, err := c.messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.config.Model),
			MaxTokens:   1,
			Temperature: anthropic.Float(0),
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
		return "", derrors.Wrap(derrors.ErrCodeOracleFailed, err)
	}
	return reply, nil
}
