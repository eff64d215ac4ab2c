// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// FunctionCall carries the name and raw argument payload of a tool invocation.
// Arguments are kept as raw bytes because the model occasionally emits payloads
// that are not valid JSON; they must survive until the autofix path has had a
// chance to repair them.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCall is a function invocation requested by the model.
// The wire shape is shared by every backend protocol.
type ToolCall struct {
	Kind     string       `json:"kind"`
	Function FunctionCall `json:"function"`
	CallID   string       `json:"toolCallId"`
}

// NewToolCall creates a tool call with a fresh call identifier.
func NewToolCall(name string, arguments json.RawMessage) ToolCall {
	return ToolCall{
		Kind:     "function",
		Function: FunctionCall{Name: name, Arguments: arguments},
		CallID:   uuid.NewString(),
	}
}

// Name returns the invoked tool's name.
func (c ToolCall) Name() string {
	return c.Function.Name
}

// ArgumentsValid reports whether the argument payload parses as a JSON object.
func (c ToolCall) ArgumentsValid() bool {
	var probe map[string]any
	return json.Unmarshal(c.Function.Arguments, &probe) == nil
}

// StringArgument extracts a top-level string argument by key.
// Returns "" when the payload is malformed or the key is absent.
func (c ToolCall) StringArgument(key string) string {
	var args map[string]json.RawMessage
	if err := json.Unmarshal(c.Function.Arguments, &args); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[key], &s); err != nil {
		return ""
	}
	return s
}
