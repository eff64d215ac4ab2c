// Stream completion resolution shared by every adapter.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/model"
)

// pendingCall is an in-progress tool call accumulated from stream chunks.
type pendingCall struct {
	id   string
	name string
	args string
}

// buildOutput resolves the completed stream into IR output. Calls whose
// argument payloads are not valid structured data go through the JSON
// autofix sub-call; when that fails too they become tool-malformed entries
// instead of errors.
func buildOutput(ctx context.Context, cfg Config, req Request, content, reasoning string, sidecar ir.Sidecar, pending []pendingCall, usage TokenUsage) Result {
	assistant := ir.Entry{
		Kind:         ir.KindAssistant,
		Content:      content,
		Reasoning:    reasoning,
		Sidecar:      sidecar,
		UsageDelta:   usageDelta(req.IR, usage),
		OutputTokens: usage.Output,
	}

	var calls []model.ToolCall
	var malformed []ir.Entry
	for _, p := range pending {
		raw := strings.TrimSpace(p.args)
		if raw == "" {
			raw = "{}"
		}

		arguments, ok := parseArguments(raw)
		if !ok {
			arguments, ok = repairArguments(ctx, cfg.Fixer, cfg.OnAutofix, raw, parametersFor(req, p.name))
		}
		if !ok {
			malformed = append(malformed, ir.Entry{
				Kind:         ir.KindToolMalformed,
				CallID:       p.id,
				ToolName:     p.name,
				RawArguments: p.args,
				Error:        "tool call arguments are not valid JSON",
			})
			continue
		}

		calls = append(calls, model.ToolCall{
			Kind:     "function",
			Function: model.FunctionCall{Name: p.name, Arguments: arguments},
			CallID:   p.id,
		})
	}

	switch len(calls) {
	case 0:
	case 1:
		assistant.ToolCall = &calls[0]
	default:
		assistant.ToolCalls = calls
	}

	output := append([]ir.Entry{assistant}, malformed...)
	return Result{Output: output, Usage: usage}
}

// partialOutput keeps whatever assistant content a cancelled stream produced.
func partialOutput(req Request, content, reasoning string, usage TokenUsage) Result {
	if content == "" && reasoning == "" {
		return Result{Usage: usage}
	}
	return Result{
		Output: []ir.Entry{{
			Kind:         ir.KindAssistant,
			Content:      content,
			Reasoning:    reasoning,
			UsageDelta:   usageDelta(req.IR, usage),
			OutputTokens: usage.Output,
		}},
		Usage: usage,
	}
}

func parseArguments(raw string) (json.RawMessage, bool) {
	var probe map[string]any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(raw), true
}

func parametersFor(req Request, tool string) map[string]any {
	for _, schema := range req.Tools {
		if schema.Name == tool {
			return schema.Parameters
		}
	}
	return map[string]any{"type": "object"}
}
