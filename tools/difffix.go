// Diff autofix sub-flow for edits that do not apply.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/transport"
)

// EditRepairer re-asks a model to repair an edit whose old text does not
// appear in the file. Implemented by the llm package's fixer.
type EditRepairer interface {
	RepairEdit(ctx context.Context, fileContent, oldText, newText string) (repairedOld, repairedNew string, err error)
}

// FixEdit runs the diff autofix sub-flow for a failing edit_file call:
// it reads the current file content, asks the repairer for a corrected edit,
// verifies the corrected old text applies, and returns a call with the same
// identifier carrying the repaired arguments.
func FixEdit(ctx context.Context, call model.ToolCall, tp transport.Transport, repairer EditRepairer) (model.ToolCall, error) {
	if repairer == nil {
		return model.ToolCall{}, fmt.Errorf("no edit repairer configured")
	}

	path := call.StringArgument("path")
	content, err := tp.ReadFile(ctx, path)
	if err != nil {
		return model.ToolCall{}, &UnreadableFileError{Path: path, Err: err}
	}

	repairedOld, repairedNew, err := repairer.RepairEdit(ctx, content, call.StringArgument("old"), call.StringArgument("new"))
	if err != nil {
		return model.ToolCall{}, fmt.Errorf("edit repair failed: %w", err)
	}
	if repairedOld == "" || !strings.Contains(content, repairedOld) {
		return model.ToolCall{}, &EditMismatchError{Path: path, OldText: repairedOld}
	}

	arguments, err := json.Marshal(map[string]string{
		"path": path,
		"old":  repairedOld,
		"new":  repairedNew,
	})
	if err != nil {
		return model.ToolCall{}, fmt.Errorf("failed to encode repaired arguments: %w", err)
	}

	fixed := call
	fixed.Function.Arguments = arguments
	return fixed, nil
}
