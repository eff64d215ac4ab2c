// OpenAI-compatible chat-completions adapter using the go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Streaming via go-openai, with think-tag demultiplexing
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/tools"
)

const defaultChatBaseURL = "https://api.openai.com/v1"

// ChatAdapter implements the Adapter contract for any OpenAI-compatible
// chat-completions backend.
type ChatAdapter struct {
	client      *openai.Client
	cfg         Config
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
}

// NewChatAdapter creates a chat-completions adapter.
func NewChatAdapter(cfg Config) *ChatAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultChatBaseURL
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL

	return &ChatAdapter{
		client:      openai.NewClientWithConfig(clientConfig),
		cfg:         cfg,
		baseURL:     baseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Name returns the adapter name.
func (a *ChatAdapter) Name() string {
	return "chat"
}

// Model returns the configured model.
func (a *ChatAdapter) Model() string {
	return a.model
}

// Complete issues one streaming chat-completion call.
func (a *ChatAdapter) Complete(ctx context.Context, req Request) (Result, error) {
	system, err := req.systemPrompt(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("system prompt supplier failed: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    a.renderMessages(system, req.IR),
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = renderChatTools(req.Tools)
	}
	curl := a.renderCurl(chatReq)

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return Result{}, a.classify(err, curl)
	}
	defer stream.Close()

	var (
		content   string
		reasoning string
		pending   []pendingCall
		usage     TokenUsage
		think     thinkParser
	)
	demux := func(channel Channel, text string) {
		if channel == ChannelReasoning {
			reasoning += text
		} else {
			content += text
		}
		req.emit(channel, text)
	}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return partialOutput(req, content, reasoning, usage), fmt.Errorf("stream cancelled: %w", ctx.Err())
			}
			return Result{}, a.classify(err, curl)
		}

		if chunk.Usage != nil {
			usage = TokenUsage{
				Input:  chunk.Usage.PromptTokens,
				Output: chunk.Usage.CompletionTokens,
			}
			if details := chunk.Usage.CompletionTokensDetails; details != nil {
				usage.Reasoning = details.ReasoningTokens
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" {
			reasoning += delta.ReasoningContent
			req.emit(ChannelReasoning, delta.ReasoningContent)
		}
		if delta.Content != "" {
			think.feed(delta.Content, demux)
		}
		for _, tc := range delta.ToolCalls {
			pending = appendChatToolDelta(pending, tc)
			if tc.Function.Arguments != "" {
				req.emit(ChannelTool, tc.Function.Arguments)
			}
		}
	}
	think.flush(demux)

	return buildOutput(ctx, a.cfg, req, content, reasoning, ir.Sidecar{}, pending, usage), nil
}

// appendChatToolDelta folds one streamed tool-call fragment into the pending
// list. Fragments carry an index; the first fragment of a call also carries
// its id and name.
func appendChatToolDelta(pending []pendingCall, tc openai.ToolCall) []pendingCall {
	idx := len(pending) - 1
	if tc.Index != nil {
		idx = *tc.Index
	}
	for idx >= len(pending) {
		pending = append(pending, pendingCall{})
	}
	if idx < 0 {
		return pending
	}
	if tc.ID != "" {
		pending[idx].id = tc.ID
	}
	if tc.Function.Name != "" {
		pending[idx].name = tc.Function.Name
	}
	pending[idx].args += tc.Function.Arguments
	return pending
}

// renderMessages converts pre-rendered turns to the wire format and prepends
// the system message.
func (a *ChatAdapter) renderMessages(system string, entries []ir.Entry) []openai.ChatCompletionMessage {
	turns := renderTurns(entries)
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, t := range turns {
		switch t.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: t.Content,
			}
			for _, call := range t.Calls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name(),
						Arguments: string(call.Function.Arguments),
					},
				})
			}
			messages = append(messages, msg)
		case "tool":
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    t.Content,
				ToolCallID: t.CallID,
			})
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: t.Content,
			})
		}
	}
	return messages
}

// renderChatTools converts tool schemas to the wire format.
func renderChatTools(schemas []tools.Schema) []openai.Tool {
	result := make([]openai.Tool, len(schemas))
	for i, s := range schemas {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		}
	}
	return result
}

// renderCurl builds the reproducible request equivalent for diagnostics.
func (a *ChatAdapter) renderCurl(chatReq openai.ChatCompletionRequest) string {
	body, err := json.Marshal(chatReq)
	if err != nil {
		body = nil
	}
	return renderCurl("POST", a.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
		"Content-Type":  "application/json",
	}, body)
}

// classify maps a transport failure to a typed request error.
func (a *ChatAdapter) classify(err error, curl string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newRequestError(apiErr.HTTPStatusCode, apiErr.Message, curl)
	}
	return &RequestError{Message: err.Error(), Curl: curl}
}

// Verify ChatAdapter implements Adapter
var _ Adapter = (*ChatAdapter)(nil)
