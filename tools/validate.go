// Tool call validation and the failure taxonomy.
//
// Each failure mode carries distinct retry semantics in the trajectory
// driver: schema errors are injected back into the conversation, stale files
// trigger a forced re-read, edit mismatches route through the diff autofix
// sub-flow, and unreadable files surface as typed entries.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/transport"
)

// ValidationError reports a tool name outside the enabled set or arguments
// that do not satisfy the tool's schema.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Message)
}

// StaleFileError reports that a file changed on disk since it was last read
// by this session.
type StaleFileError struct {
	Path string
}

func (e *StaleFileError) Error() string {
	return fmt.Sprintf("file %q changed on disk since it was last read", e.Path)
}

// UnreadableFileError reports a file the transport could not read.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("file %q could not be read: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error { return e.Err }

// RejectedError reports that the user declined a tool call.
type RejectedError struct {
	Tool string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("tool %q rejected by the user", e.Tool)
}

// EditMismatchError reports an edit whose old text does not appear in the
// file. This is the single most common recoverable failure and routes
// through the diff autofix sub-flow before giving up.
type EditMismatchError struct {
	Path    string
	OldText string
}

func (e *EditMismatchError) Error() string {
	return fmt.Sprintf("edit does not apply: old text not found in %q", e.Path)
}

// ExecutionError wraps a generic failure raised while running a tool.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Validate checks a proposed call against the enabled set: name membership,
// argument schema, and - for mutating tools - file staleness on disk.
// Returns nil on acceptance or one of the typed errors above.
func Validate(ctx context.Context, call model.ToolCall, set *Set, tracker *Tracker, tp transport.Transport) error {
	schema, ok := set.Get(call.Name())
	if !ok {
		return &ValidationError{Tool: call.Name(), Message: "not in the enabled tool set"}
	}

	var args map[string]any
	if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
		return &ValidationError{Tool: call.Name(), Message: fmt.Sprintf("arguments are not a JSON object: %v", err)}
	}
	if err := checkSchema(schema.Parameters, args); err != nil {
		return &ValidationError{Tool: call.Name(), Message: err.Error()}
	}

	if schema.Access != ir.AccessMutate {
		return nil
	}
	return checkFreshness(ctx, call, tracker, tp)
}

// checkFreshness guards mutating tools against files that changed on disk
// since the session last read them.
func checkFreshness(ctx context.Context, call model.ToolCall, tracker *Tracker, tp transport.Transport) error {
	path := call.StringArgument("path")
	if path == "" {
		return &ValidationError{Tool: call.Name(), Message: "missing path argument"}
	}

	exists, err := tp.PathExists(ctx, path)
	if err != nil {
		return &UnreadableFileError{Path: path, Err: err}
	}
	if !exists {
		// write_file may create new files; edit_file cannot.
		if call.Name() == "edit_file" {
			return &UnreadableFileError{Path: path, Err: fmt.Errorf("file does not exist")}
		}
		return nil
	}

	content, err := tp.ReadFile(ctx, path)
	if err != nil {
		return &UnreadableFileError{Path: path, Err: err}
	}
	if !tracker.Fresh(path, content) {
		return &StaleFileError{Path: path}
	}

	if call.Name() == "edit_file" {
		old := call.StringArgument("old")
		if old == "" || !strings.Contains(content, old) {
			return &EditMismatchError{Path: path, OldText: old}
		}
	}
	return nil
}

// checkSchema performs a minimal JSON-Schema object check: required keys
// must be present and primitive property types must match.
func checkSchema(schema, args map[string]any) error {
	required, _ := schema["required"].([]string)
	if required == nil {
		// Schemas deserialized from configuration carry []any.
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required argument %q", key)
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, value := range args {
		propAny, ok := properties[key]
		if !ok {
			return fmt.Errorf("unexpected argument %q", key)
		}
		prop, _ := propAny.(map[string]any)
		wantType, _ := prop["type"].(string)
		if wantType == "" {
			continue
		}
		if err := checkType(key, wantType, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(key, wantType string, value any) error {
	ok := false
	switch wantType {
	case "string":
		_, ok = value.(string)
	case "number", "integer":
		_, ok = value.(float64)
	case "boolean":
		_, ok = value.(bool)
	case "object":
		_, ok = value.(map[string]any)
	case "array":
		_, ok = value.([]any)
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("argument %q must be of type %s", key, wantType)
	}
	return nil
}
