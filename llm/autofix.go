// LLM-backed autofix sub-calls.
//
// Two repairs share one small-model client: malformed tool-call JSON and
// file edits whose old text no longer applies. Both are nested, tools-free
// completions; their outcome is observable through two explicit events so
// the caller can show an "autofix in progress" indicator.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/weftlabs/weft/internal/jsonx"
)

// AutofixEvent marks one of the two observable points of an autofix
// sub-call.
type AutofixEvent int

const (
	AutofixStarted AutofixEvent = iota
	AutofixResolved
)

// AutofixNotifier observes autofix sub-calls. ok is meaningful only for
// AutofixResolved.
type AutofixNotifier func(event AutofixEvent, ok bool)

// Fixer issues autofix sub-calls against an OpenAI-compatible endpoint.
type Fixer struct {
	client *openai.Client
	model  string
}

// NewFixer creates a fixer. baseURL may be empty for the default endpoint.
func NewFixer(apiKey, baseURL, model string) *Fixer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Fixer{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// RepairJSON asks the model to turn a malformed tool-argument payload into
// valid JSON matching the given parameter schema.
func (f *Fixer) RepairJSON(ctx context.Context, raw string, parameters map[string]any) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameter schema: %w", err)
	}

	prompt := fmt.Sprintf(
		"The following tool call arguments are not valid JSON. Repair them into a single valid JSON object matching this schema, preserving the intended values. Respond with the JSON object only.\n\nSchema:\n%s\n\nBroken arguments:\n%s",
		schemaJSON, raw,
	)

	content, err := f.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	fixed, err := jsonx.Extract(content)
	if err != nil {
		return nil, fmt.Errorf("autofix returned no usable JSON: %w", err)
	}
	return json.RawMessage(fixed), nil
}

// RepairEdit asks the model to correct an edit whose old text does not
// appear in the file. Satisfies tools.EditRepairer.
func (f *Fixer) RepairEdit(ctx context.Context, fileContent, oldText, newText string) (string, string, error) {
	prompt := fmt.Sprintf(
		"A file edit failed because the text to replace does not appear in the file. Produce a corrected edit with the same intent. Respond with a JSON object {\"old\": ..., \"new\": ...} where \"old\" is an exact substring of the file.\n\nFile content:\n%s\n\nIntended old text:\n%s\n\nIntended new text:\n%s",
		fileContent, oldText, newText,
	)

	content, err := f.complete(ctx, prompt)
	if err != nil {
		return "", "", err
	}

	var repaired struct {
		Old string `json:"old"`
		New string `json:"new"`
	}
	if err := jsonx.ExtractInto(content, &repaired); err != nil {
		return "", "", fmt.Errorf("edit autofix returned no usable JSON: %w", err)
	}
	return repaired.Old, repaired.New, nil
}

func (f *Fixer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: f.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("autofix completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("autofix completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// repairArguments runs the JSON autofix for one in-progress tool call,
// notifying the observer of start and resolution. When no fixer is
// configured or the repair fails, ok is false and the caller falls back to
// a typed parse failure.
func repairArguments(ctx context.Context, fixer *Fixer, notify AutofixNotifier, raw string, parameters map[string]any) (json.RawMessage, bool) {
	if fixer == nil {
		return nil, false
	}
	if notify != nil {
		notify(AutofixStarted, false)
	}
	fixed, err := fixer.RepairJSON(ctx, raw, parameters)
	ok := err == nil
	if notify != nil {
		notify(AutofixResolved, ok)
	}
	if !ok {
		return nil, false
	}
	return fixed, true
}
