package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/weftlabs/weft/model"
)

// fakeTransport is an in-memory filesystem for tests.
type fakeTransport struct {
	files map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: make(map[string]string)}
}

func (f *fakeTransport) ReadFile(ctx context.Context, path string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return content, nil
}

func (f *fakeTransport) WriteFile(ctx context.Context, path, content string) error {
	f.files[path] = content
	return nil
}

func (f *fakeTransport) PathExists(ctx context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeTransport) Shell(ctx context.Context, command string) (string, error) {
	return "", fmt.Errorf("shell not supported in tests")
}

func testCall(name, args string) model.ToolCall {
	return model.ToolCall{
		Kind:     "function",
		Function: model.FunctionCall{Name: name, Arguments: json.RawMessage(args)},
		CallID:   "c-1",
	}
}

func testSetup() (*Set, *Tracker, *fakeTransport) {
	return NewSet(Builtin()...), NewTracker(), newFakeTransport()
}

func TestValidateUnknownTool(t *testing.T) {
	set, tracker, tp := testSetup()
	err := Validate(context.Background(), testCall("launch_missiles", `{}`), set, tracker, tp)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateNonObjectArguments(t *testing.T) {
	set, tracker, tp := testSetup()
	err := Validate(context.Background(), testCall("shell", `"ls"`), set, tracker, tp)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	set, tracker, tp := testSetup()
	err := Validate(context.Background(), testCall("shell", `{}`), set, tracker, tp)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing command, got %v", err)
	}
}

func TestValidateWrongType(t *testing.T) {
	set, tracker, tp := testSetup()
	err := Validate(context.Background(), testCall("shell", `{"command": 42}`), set, tracker, tp)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for wrong type, got %v", err)
	}
}

func TestValidateAcceptsGoodCall(t *testing.T) {
	set, tracker, tp := testSetup()
	if err := Validate(context.Background(), testCall("shell", `{"command":"ls"}`), set, tracker, tp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateWriteMayCreate(t *testing.T) {
	set, tracker, tp := testSetup()
	call := testCall("write_file", `{"path":"/tmp/new.txt","content":"hi"}`)
	if err := Validate(context.Background(), call, set, tracker, tp); err != nil {
		t.Fatalf("creating a new file must be allowed: %v", err)
	}
}

func TestValidateMutationRequiresRead(t *testing.T) {
	set, tracker, tp := testSetup()
	tp.files["/tmp/a.txt"] = "content"

	call := testCall("write_file", `{"path":"/tmp/a.txt","content":"hi"}`)
	err := Validate(context.Background(), call, set, tracker, tp)

	var stale *StaleFileError
	if !errors.As(err, &stale) {
		t.Fatalf("mutating an unread file must be stale, got %v", err)
	}
}

func TestValidateStaleAfterExternalChange(t *testing.T) {
	set, tracker, tp := testSetup()
	tp.files["/tmp/a.txt"] = "original"
	tracker.NoteRead("/tmp/a.txt", "original")
	tp.files["/tmp/a.txt"] = "changed externally"

	call := testCall("write_file", `{"path":"/tmp/a.txt","content":"hi"}`)
	err := Validate(context.Background(), call, set, tracker, tp)

	var stale *StaleFileError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleFileError, got %v", err)
	}
	if stale.Path != "/tmp/a.txt" {
		t.Errorf("unexpected path: %q", stale.Path)
	}
}

func TestValidateFreshMutation(t *testing.T) {
	set, tracker, tp := testSetup()
	tp.files["/tmp/a.txt"] = "original"
	tracker.NoteRead("/tmp/a.txt", "original")

	call := testCall("write_file", `{"path":"/tmp/a.txt","content":"hi"}`)
	if err := Validate(context.Background(), call, set, tracker, tp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEditMissingFile(t *testing.T) {
	set, tracker, tp := testSetup()
	call := testCall("edit_file", `{"path":"/tmp/gone.txt","old":"a","new":"b"}`)
	err := Validate(context.Background(), call, set, tracker, tp)

	var unreadable *UnreadableFileError
	if !errors.As(err, &unreadable) {
		t.Fatalf("editing a missing file must be unreadable, got %v", err)
	}
}

func TestValidateEditMismatch(t *testing.T) {
	set, tracker, tp := testSetup()
	tp.files["/tmp/a.txt"] = "hello world"
	tracker.NoteRead("/tmp/a.txt", "hello world")

	call := testCall("edit_file", `{"path":"/tmp/a.txt","old":"goodbye","new":"farewell"}`)
	err := Validate(context.Background(), call, set, tracker, tp)

	var mismatch *EditMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected EditMismatchError, got %v", err)
	}
}

func TestTrackerUnseenNeverFresh(t *testing.T) {
	tracker := NewTracker()
	if tracker.Fresh("/tmp/a.txt", "anything") {
		t.Error("an unseen path must never be fresh")
	}
	tracker.NoteRead("/tmp/a.txt", "anything")
	if !tracker.Fresh("/tmp/a.txt", "anything") {
		t.Error("expected path fresh after read")
	}
	if tracker.Fresh("/tmp/a.txt", "different") {
		t.Error("changed content must not be fresh")
	}
}

// fakeRepairer returns a canned repaired edit.
type fakeRepairer struct {
	old, new string
	err      error
}

func (f *fakeRepairer) RepairEdit(ctx context.Context, fileContent, oldText, newText string) (string, string, error) {
	return f.old, f.new, f.err
}

func TestFixEditRepairs(t *testing.T) {
	tp := newFakeTransport()
	tp.files["/tmp/a.txt"] = "func main() {\n\tprintln(\"hi\")\n}\n"

	call := testCall("edit_file", `{"path":"/tmp/a.txt","old":"println(\"hello\")","new":"println(\"bye\")"}`)
	repairer := &fakeRepairer{old: `println("hi")`, new: `println("bye")`}

	fixed, err := FixEdit(context.Background(), call, tp, repairer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fixed.CallID != call.CallID {
		t.Errorf("repaired call must keep its identifier")
	}
	if got := fixed.StringArgument("old"); got != `println("hi")` {
		t.Errorf("unexpected repaired old text: %q", got)
	}
	if got := fixed.StringArgument("path"); got != "/tmp/a.txt" {
		t.Errorf("repaired arguments lost the path: %q", got)
	}
}

func TestFixEditRejectsBadRepair(t *testing.T) {
	tp := newFakeTransport()
	tp.files["/tmp/a.txt"] = "hello world"

	call := testCall("edit_file", `{"path":"/tmp/a.txt","old":"x","new":"y"}`)
	repairer := &fakeRepairer{old: "still not in the file", new: "y"}

	_, err := FixEdit(context.Background(), call, tp, repairer)
	var mismatch *EditMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected EditMismatchError for a bad repair, got %v", err)
	}
}

func TestLocalRunnerEditReplacesFirstOccurrence(t *testing.T) {
	tp := newFakeTransport()
	tp.files["/tmp/a.txt"] = "aaa bbb aaa"
	runner := NewLocalRunner(tp, NewTracker())

	call := testCall("edit_file", `{"path":"/tmp/a.txt","old":"aaa","new":"ccc"}`)
	if _, err := runner.Run(context.Background(), call); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tp.files["/tmp/a.txt"]; got != "ccc bbb aaa" {
		t.Errorf("expected first occurrence replaced, got %q", got)
	}
}

func TestLocalRunnerReadNotesTracker(t *testing.T) {
	tp := newFakeTransport()
	tp.files["/tmp/a.txt"] = "content"
	tracker := NewTracker()
	runner := NewLocalRunner(tp, tracker)

	if _, err := runner.Run(context.Background(), testCall("read_file", `{"path":"/tmp/a.txt"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tracker.Fresh("/tmp/a.txt", "content") {
		t.Error("expected read recorded in the tracker")
	}
}
