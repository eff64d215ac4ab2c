// Streaming responses-protocol adapter.
//
// This backend continues reasoning across turns through encrypted reasoning
// items, which the adapter round-trips untouched via the IR sidecar. The
// adapter speaks the wire format directly: the request body it builds is the
// same one rendered into the reproducible diagnostics command.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/tools"
)

const defaultResponsesBaseURL = "https://api.openai.com/v1"

// ResponsesAdapter implements the Adapter contract for the responses
// protocol.
type ResponsesAdapter struct {
	httpClient *http.Client
	cfg        Config
	baseURL    string
	model      string
	maxTokens  int
}

// NewResponsesAdapter creates a responses adapter.
func NewResponsesAdapter(cfg Config) *ResponsesAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultResponsesBaseURL
	}
	return &ResponsesAdapter{
		httpClient: &http.Client{},
		cfg:        cfg,
		baseURL:    baseURL,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
	}
}

// Name returns the adapter name.
func (a *ResponsesAdapter) Name() string {
	return "responses"
}

// Model returns the configured model.
func (a *ResponsesAdapter) Model() string {
	return a.model
}

// responsesRequest is the wire-level request body.
type responsesRequest struct {
	Model           string           `json:"model"`
	Instructions    string           `json:"instructions,omitempty"`
	Input           []map[string]any `json:"input"`
	Tools           []map[string]any `json:"tools,omitempty"`
	Stream          bool             `json:"stream"`
	Store           bool             `json:"store"`
	Include         []string         `json:"include,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

// Complete issues one streaming responses call.
func (a *ResponsesAdapter) Complete(ctx context.Context, req Request) (Result, error) {
	system, err := req.systemPrompt(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("system prompt supplier failed: %w", err)
	}

	wireReq := responsesRequest{
		Model:           a.model,
		Instructions:    system,
		Input:           renderResponsesInput(req.IR),
		Stream:          true,
		Store:           false,
		Include:         []string{"reasoning.encrypted_content"},
		MaxOutputTokens: a.maxTokens,
	}
	if len(req.Tools) > 0 {
		wireReq.Tools = renderResponsesTools(req.Tools)
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request: %w", err)
	}
	endpoint := a.baseURL + "/responses"
	curl := renderCurl("POST", endpoint, map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
		"Content-Type":  "application/json",
		"Accept":        "text/event-stream",
	}, body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &RequestError{Message: err.Error(), Curl: curl}
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return Result{}, &RequestError{Message: err.Error(), Curl: curl}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, newRequestError(resp.StatusCode, readErrorMessage(resp.Body), curl)
	}

	return a.consumeStream(ctx, req, resp.Body, curl)
}

// stream event payload shapes; only the fields the adapter reads.
type responsesEvent struct {
	Delta string `json:"delta"`
	Item  struct {
		Type             string `json:"type"`
		ID               string `json:"id"`
		CallID           string `json:"call_id"`
		Name             string `json:"name"`
		Arguments        string `json:"arguments"`
		EncryptedContent string `json:"encrypted_content"`
	} `json:"item"`
	Response struct {
		Usage struct {
			InputTokens         int `json:"input_tokens"`
			OutputTokens        int `json:"output_tokens"`
			OutputTokensDetails struct {
				ReasoningTokens int `json:"reasoning_tokens"`
			} `json:"output_tokens_details"`
		} `json:"usage"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
	Message string `json:"message"`
}

// consumeStream incrementally parses the SSE stream into the three token
// channels and the pending tool-call list.
func (a *ResponsesAdapter) consumeStream(ctx context.Context, req Request, body io.Reader, curl string) (Result, error) {
	var (
		content   string
		reasoning string
		sidecar   ir.Sidecar
		pending   []pendingCall
		usage     TokenUsage
		failure   string
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	eventName := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case !strings.HasPrefix(line, "data:"):
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event responsesEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch eventName {
		case "response.output_text.delta":
			content += event.Delta
			req.emit(ChannelContent, event.Delta)
		case "response.reasoning_summary_text.delta":
			reasoning += event.Delta
			req.emit(ChannelReasoning, event.Delta)
		case "response.function_call_arguments.delta":
			if len(pending) > 0 {
				pending[len(pending)-1].args += event.Delta
				req.emit(ChannelTool, event.Delta)
			}
		case "response.output_item.added":
			if event.Item.Type == "function_call" {
				pending = append(pending, pendingCall{id: event.Item.CallID, name: event.Item.Name})
			}
		case "response.output_item.done":
			switch event.Item.Type {
			case "reasoning":
				sidecar.ResponseID = event.Item.ID
				sidecar.EncryptedReasoning = event.Item.EncryptedContent
			case "function_call":
				// Arguments may arrive whole on the done event.
				if len(pending) > 0 && pending[len(pending)-1].args == "" {
					pending[len(pending)-1].args = event.Item.Arguments
				}
			}
		case "response.completed":
			usage = TokenUsage{
				Input:     event.Response.Usage.InputTokens,
				Output:    event.Response.Usage.OutputTokens,
				Reasoning: event.Response.Usage.OutputTokensDetails.ReasoningTokens,
			}
		case "response.failed":
			failure = event.Response.Error.Message
		case "error":
			failure = event.Message
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return partialOutput(req, content, reasoning, usage), fmt.Errorf("stream cancelled: %w", ctx.Err())
		}
		return Result{}, &RequestError{Message: err.Error(), Curl: curl}
	}
	if failure != "" {
		return Result{}, &RequestError{Message: failure, Curl: curl}
	}
	if ctx.Err() != nil {
		return partialOutput(req, content, reasoning, usage), fmt.Errorf("stream cancelled: %w", ctx.Err())
	}

	return buildOutput(ctx, a.cfg, req, content, reasoning, sidecar, pending, usage), nil
}

// renderResponsesInput converts pre-rendered turns to wire input items.
// An assistant turn with an encrypted reasoning item replays it first so the
// backend can continue its chain of thought.
func renderResponsesInput(entries []ir.Entry) []map[string]any {
	turns := renderTurns(entries)
	items := make([]map[string]any, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case "assistant":
			if t.Sidecar.EncryptedReasoning != "" {
				items = append(items, map[string]any{
					"type":              "reasoning",
					"id":                t.Sidecar.ResponseID,
					"encrypted_content": t.Sidecar.EncryptedReasoning,
					"summary":           []any{},
				})
			}
			if t.Content != "" {
				items = append(items, map[string]any{
					"type":    "message",
					"role":    "assistant",
					"content": []map[string]any{{"type": "output_text", "text": t.Content}},
				})
			}
			for _, call := range t.Calls {
				items = append(items, map[string]any{
					"type":      "function_call",
					"call_id":   call.CallID,
					"name":      call.Name(),
					"arguments": string(call.Function.Arguments),
				})
			}
		case "tool":
			items = append(items, map[string]any{
				"type":    "function_call_output",
				"call_id": t.CallID,
				"output":  t.Content,
			})
		default:
			items = append(items, map[string]any{
				"type":    "message",
				"role":    "user",
				"content": []map[string]any{{"type": "input_text", "text": t.Content}},
			})
		}
	}
	return items
}

// renderResponsesTools converts tool schemas to the wire format.
func renderResponsesTools(schemas []tools.Schema) []map[string]any {
	result := make([]map[string]any, len(schemas))
	for i, s := range schemas {
		result[i] = map[string]any{
			"type":        "function",
			"name":        s.Name,
			"description": s.Description,
			"parameters":  s.Parameters,
		}
	}
	return result
}

// readErrorMessage extracts a human-readable message from an error body.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return "failed to read error response"
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// Verify ResponsesAdapter implements Adapter
var _ Adapter = (*ResponsesAdapter)(nil)
