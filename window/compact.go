package window

import (
	"context"
	"fmt"
	"strings"

	"github.com/weftlabs/weft/internal/jsonx"
	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/llm"
)

const compactionSystemPrompt = `You are summarizing a conversation between a
coding assistant and a user so the assistant can continue with a smaller
context. Write the summary in past tense. Preserve: what the user asked for,
what was changed and in which files, decisions made and their reasons, and
any unfinished work. Omit pleasantries and token-by-token detail.

Respond with ONLY a JSON object of the form {"summary": "..."} and nothing
else.`

const compactionInstruction = "Summarize the conversation so far following your instructions."

// Compactor produces summary checkpoints when the conversation grows past a
// token threshold. The summarization call runs with tools disabled so the
// model cannot do anything but summarize.
type Compactor struct {
	Adapter   llm.Adapter
	Threshold int
}

// MaybeCompact returns a checkpoint entry when the conversation's estimated
// token load exceeds the threshold, or nil when no compaction is needed.
// The returned usage covers the summarization call so callers can account
// for it. Summarization failures are returned as errors; callers treat them
// as non-fatal and proceed with the uncompacted conversation.
func (c *Compactor) MaybeCompact(ctx context.Context, entries []ir.Entry) (*ir.Entry, llm.TokenUsage, error) {
	if c == nil || c.Adapter == nil || c.Threshold <= 0 {
		return nil, llm.TokenUsage{}, nil
	}
	if ir.TotalUsage(entries) <= c.Threshold {
		return nil, llm.TokenUsage{}, nil
	}

	request := llm.Request{
		IR: append(append([]ir.Entry{}, entries...), ir.Entry{
			Kind:    ir.KindUser,
			Content: compactionInstruction,
		}),
		System: func(ctx context.Context, windowed bool) (string, error) {
			return compactionSystemPrompt, nil
		},
	}
	result, err := c.Adapter.Complete(ctx, request)
	if err != nil {
		return nil, result.Usage, fmt.Errorf("compaction request failed: %w", err)
	}

	var content string
	for _, entry := range result.Output {
		if entry.Kind == ir.KindAssistant {
			content = entry.Content
		}
	}
	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := jsonx.ExtractInto(content, &parsed); err != nil {
		return nil, result.Usage, fmt.Errorf("compaction summary was not valid JSON: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, result.Usage, fmt.Errorf("compaction summary was empty")
	}

	return &ir.Entry{Kind: ir.KindCheckpoint, Content: parsed.Summary}, result.Usage, nil
}
