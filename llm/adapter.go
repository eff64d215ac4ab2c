// Package llm provides the backend protocol adapters.
//
// Each adapter renders lowered IR into one backend's native message format,
// performs the streaming call, demultiplexes the stream into content,
// reasoning, and tool token channels, and parses the completed stream back
// into IR output plus token-usage telemetry.
//
// Information Hiding:
// - API endpoints and authentication per backend
// - Request/response wire formats
// - Streaming-chunk parsing state machines
package llm

import (
	"context"
	"fmt"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/tools"
)

// Channel identifies one of the three streamed token channels.
type Channel string

const (
	ChannelContent   Channel = "content"
	ChannelReasoning Channel = "reasoning"
	ChannelTool      Channel = "tool"
)

// TokenSink receives tokens as they arrive, for live UI feedback.
type TokenSink func(channel Channel, token string)

// SystemPromptFunc supplies the system prompt text, parameterized by whether
// a context window was applied this turn.
type SystemPromptFunc func(ctx context.Context, windowed bool) (string, error)

// TokenUsage holds cumulative token counts reported by the backend.
type TokenUsage struct {
	Input     int
	Output    int
	Reasoning int
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.Input + u.Output
}

// Request is the adapter-agnostic completion request.
type Request struct {
	IR       []ir.Entry
	Windowed bool
	System   SystemPromptFunc
	Tools    []tools.Schema
	OnToken  TokenSink
}

// emit forwards a token to the sink when one is configured.
func (r Request) emit(channel Channel, token string) {
	if r.OnToken != nil && token != "" {
		r.OnToken(channel, token)
	}
}

// systemPrompt resolves the system prompt, tolerating a nil supplier.
func (r Request) systemPrompt(ctx context.Context) (string, error) {
	if r.System == nil {
		return "", nil
	}
	return r.System(ctx, r.Windowed)
}

// Result is a successful completion: an assistant entry plus, when the
// backend produced unparseable tool arguments, a tool-malformed entry.
type Result struct {
	Output []ir.Entry
	Usage  TokenUsage
}

// Adapter is the common protocol adapter contract.
//
// Complete returns a Result on success. On failure the error is one of the
// typed request errors in errors.go; on cancellation it wraps
// context.Canceled and the Result still carries any partial assistant
// content produced before the stream was cut.
type Adapter interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (Result, error)
}

// Config selects and parameterizes an adapter.
type Config struct {
	Protocol    string // "chat", "responses", or "messages"
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32

	// Fixer, when set, repairs malformed tool-call JSON via a nested LLM
	// sub-call before the adapter falls back to a typed parse failure.
	Fixer *Fixer
	// OnAutofix observes the start and resolution of autofix sub-calls.
	OnAutofix AutofixNotifier
}

// NewAdapter creates the adapter for the configured protocol.
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Protocol {
	case "chat":
		return NewChatAdapter(cfg), nil
	case "responses":
		return NewResponsesAdapter(cfg), nil
	case "messages":
		return NewMessagesAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown protocol: %q", cfg.Protocol)
	}
}

// usageDelta computes the token-usage delta of a completion relative to the
// token count of the IR that was sent, so windowing can reason in pure
// deltas instead of re-summing full context each step.
func usageDelta(sent []ir.Entry, usage TokenUsage) int {
	delta := usage.Total() - ir.TotalUsage(sent)
	if delta < 0 {
		delta = 0
	}
	return delta
}
