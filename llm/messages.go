// Streaming messages-protocol adapter using the official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Typed content blocks (text/thinking/redacted-thinking/tool-use)
// - Signed thinking-block continuation data, round-tripped via the sidecar
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/tools"
)

const messagesEndpoint = "https://api.anthropic.com/v1/messages"

// MessagesAdapter implements the Adapter contract for the messages protocol.
type MessagesAdapter struct {
	client      anthropic.Client
	cfg         Config
	model       string
	maxTokens   int64
	temperature float64
}

// NewMessagesAdapter creates a messages adapter.
func NewMessagesAdapter(cfg Config) *MessagesAdapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &MessagesAdapter{
		client:      anthropic.NewClient(opts...),
		cfg:         cfg,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: float64(cfg.Temperature),
	}
}

// Name returns the adapter name.
func (a *MessagesAdapter) Name() string {
	return "messages"
}

// Model returns the configured model.
func (a *MessagesAdapter) Model() string {
	return a.model
}

// Complete issues one streaming messages call.
func (a *MessagesAdapter) Complete(ctx context.Context, req Request) (Result, error) {
	system, err := req.systemPrompt(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("system prompt supplier failed: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    a.renderMessages(req.IR),
		Temperature: anthropic.Float(a.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = renderMessageTools(req.Tools)
	}
	curl := a.renderCurl(params)

	stream := a.client.Messages.NewStreaming(ctx, params)

	var (
		content   string
		reasoning string
		sidecar   ir.Sidecar
		pending   []pendingCall
		inTool    bool
		usage     TokenUsage
	)

	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.Input = int(eventVariant.Message.Usage.InputTokens)

		case anthropic.ContentBlockStartEvent:
			inTool = false
			switch block := eventVariant.ContentBlock.AsAny().(type) {
			case anthropic.ToolUseBlock:
				pending = append(pending, pendingCall{id: block.ID, name: block.Name})
				inTool = true
			case anthropic.RedactedThinkingBlock:
				sidecar.RedactedThinking = block.Data
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				content += delta.Text
				req.emit(ChannelContent, delta.Text)
			case anthropic.ThinkingDelta:
				reasoning += delta.Thinking
				req.emit(ChannelReasoning, delta.Thinking)
			case anthropic.SignatureDelta:
				sidecar.ThinkingSignature += delta.Signature
			case anthropic.InputJSONDelta:
				if inTool && len(pending) > 0 {
					pending[len(pending)-1].args += delta.PartialJSON
					req.emit(ChannelTool, delta.PartialJSON)
				}
			}

		case anthropic.MessageDeltaEvent:
			if eventVariant.Usage.OutputTokens > 0 {
				usage.Output = int(eventVariant.Usage.OutputTokens)
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return partialOutput(req, content, reasoning, usage), fmt.Errorf("stream cancelled: %w", ctx.Err())
		}
		return Result{}, a.classify(err, curl)
	}
	if ctx.Err() != nil {
		return partialOutput(req, content, reasoning, usage), fmt.Errorf("stream cancelled: %w", ctx.Err())
	}

	return buildOutput(ctx, a.cfg, req, content, reasoning, sidecar, pending, usage), nil
}

// renderMessages converts pre-rendered turns to the wire format. The system
// prompt travels in the dedicated request field, and consecutive tool
// results fold into one user message so parallel calls stay well-formed.
func (a *MessagesAdapter) renderMessages(entries []ir.Entry) []anthropic.MessageParam {
	turns := renderTurns(entries)

	var messages []anthropic.MessageParam
	for _, t := range turns {
		switch t.Role {
		case "assistant":
			msg := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if t.Sidecar.ThinkingSignature != "" && t.Reasoning != "" {
				msg.Content = append(msg.Content, anthropic.ContentBlockParamUnion{
					OfThinking: &anthropic.ThinkingBlockParam{
						Thinking:  t.Reasoning,
						Signature: t.Sidecar.ThinkingSignature,
					},
				})
			}
			if t.Sidecar.RedactedThinking != "" {
				msg.Content = append(msg.Content, anthropic.ContentBlockParamUnion{
					OfRedactedThinking: &anthropic.RedactedThinkingBlockParam{Data: t.Sidecar.RedactedThinking},
				})
			}
			if t.Content != "" {
				msg.Content = append(msg.Content, anthropic.NewTextBlock(t.Content))
			}
			for _, call := range t.Calls {
				var input map[string]any
				_ = json.Unmarshal(call.Function.Arguments, &input)
				msg.Content = append(msg.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.CallID,
						Name:  call.Name(),
						Input: input,
					},
				})
			}
			messages = append(messages, msg)

		case "tool":
			block := anthropic.NewToolResultBlock(t.CallID, t.Content, t.IsError)
			if n := len(messages); n > 0 && messages[n-1].Role == anthropic.MessageParamRoleUser && endsInToolResult(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, block)
			} else {
				messages = append(messages, anthropic.NewUserMessage(block))
			}

		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return messages
}

func endsInToolResult(msg anthropic.MessageParam) bool {
	if len(msg.Content) == 0 {
		return false
	}
	return msg.Content[len(msg.Content)-1].OfToolResult != nil
}

// renderMessageTools converts tool schemas to the wire format.
func renderMessageTools(schemas []tools.Schema) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(schemas))
	for i, s := range schemas {
		properties, _ := s.Parameters["properties"].(map[string]any)
		required, _ := s.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// renderCurl builds the reproducible request equivalent for diagnostics.
func (a *MessagesAdapter) renderCurl(params anthropic.MessageNewParams) string {
	body, err := json.Marshal(params)
	if err != nil {
		body = nil
	}
	endpoint := messagesEndpoint
	if a.cfg.BaseURL != "" {
		endpoint = a.cfg.BaseURL + "/v1/messages"
	}
	return renderCurl("POST", endpoint, map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": "2023-06-01",
		"Content-Type":      "application/json",
	}, body)
}

// classify maps a transport failure to a typed request error.
func (a *MessagesAdapter) classify(err error, curl string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return newRequestError(apiErr.StatusCode, apiErr.Error(), curl)
	}
	return &RequestError{Message: err.Error(), Curl: curl}
}

// Verify MessagesAdapter implements Adapter
var _ Adapter = (*MessagesAdapter)(nil)
