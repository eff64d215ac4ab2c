// Tool execution boundary.
//
// The orchestration core only validates calls and requests execution; the
// Runner collaborator actually runs them. LocalRunner is the reference
// implementation used by the CLI, executing the builtin set over a Transport.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/transport"
)

// Runner executes a validated tool call and returns its output.
// Failures are reported as typed tool errors.
type Runner interface {
	Run(ctx context.Context, call model.ToolCall) (string, error)
}

// LocalRunner executes the builtin tool set over a transport, recording
// file reads in the tracker so later mutations pass the staleness check.
type LocalRunner struct {
	Transport transport.Transport
	Tracker   *Tracker
}

// NewLocalRunner creates a runner over the given transport.
func NewLocalRunner(tp transport.Transport, tracker *Tracker) *LocalRunner {
	return &LocalRunner{Transport: tp, Tracker: tracker}
}

// Run executes one call.
func (r *LocalRunner) Run(ctx context.Context, call model.ToolCall) (string, error) {
	switch call.Name() {
	case "read_file":
		return r.readFile(ctx, call)
	case "list_dir":
		path := call.StringArgument("path")
		out, err := r.Transport.Shell(ctx, fmt.Sprintf("ls -p %q", path))
		if err != nil {
			return "", &ExecutionError{Tool: call.Name(), Err: err}
		}
		return out, nil
	case "write_file":
		return r.writeFile(ctx, call)
	case "edit_file":
		return r.editFile(ctx, call)
	case "shell":
		out, err := r.Transport.Shell(ctx, call.StringArgument("command"))
		if err != nil {
			return "", &ExecutionError{Tool: call.Name(), Err: err}
		}
		return out, nil
	default:
		return "", &ExecutionError{Tool: call.Name(), Err: fmt.Errorf("no local implementation")}
	}
}

func (r *LocalRunner) readFile(ctx context.Context, call model.ToolCall) (string, error) {
	path := call.StringArgument("path")
	content, err := r.Transport.ReadFile(ctx, path)
	if err != nil {
		return "", &UnreadableFileError{Path: path, Err: err}
	}
	if r.Tracker != nil {
		r.Tracker.NoteRead(path, content)
	}
	return content, nil
}

func (r *LocalRunner) writeFile(ctx context.Context, call model.ToolCall) (string, error) {
	path := call.StringArgument("path")
	content := call.StringArgument("content")
	if err := r.Transport.WriteFile(ctx, path, content); err != nil {
		return "", &ExecutionError{Tool: call.Name(), Err: err}
	}
	if r.Tracker != nil {
		r.Tracker.NoteRead(path, content)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

func (r *LocalRunner) editFile(ctx context.Context, call model.ToolCall) (string, error) {
	path := call.StringArgument("path")
	old := call.StringArgument("old")
	replacement := call.StringArgument("new")

	content, err := r.Transport.ReadFile(ctx, path)
	if err != nil {
		return "", &UnreadableFileError{Path: path, Err: err}
	}
	if !strings.Contains(content, old) {
		return "", &EditMismatchError{Path: path, OldText: old}
	}

	updated := strings.Replace(content, old, replacement, 1)
	if err := r.Transport.WriteFile(ctx, path, updated); err != nil {
		return "", &ExecutionError{Tool: call.Name(), Err: err}
	}
	if r.Tracker != nil {
		r.Tracker.NoteRead(path, updated)
	}
	return fmt.Sprintf("Edited %s", path), nil
}

// Verify LocalRunner implements Runner
var _ Runner = (*LocalRunner)(nil)
