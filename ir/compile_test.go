package ir

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/weftlabs/weft/history"
	"github.com/weftlabs/weft/model"
)

func testAccess(tool string) FileAccess {
	switch tool {
	case "read_file":
		return AccessRead
	case "write_file", "edit_file":
		return AccessMutate
	default:
		return AccessNone
	}
}

func call(id, name, args string) model.ToolCall {
	return model.ToolCall{
		Kind:     "function",
		Function: model.FunctionCall{Name: name, Arguments: json.RawMessage(args)},
		CallID:   id,
	}
}

func callItem(c model.ToolCall) history.Item {
	return history.Item{Kind: history.KindToolCall, Call: &c}
}

func TestLowerCollapsesToolCall(t *testing.T) {
	read := call("call-1", "read_file", `{"path":"/tmp/a.txt"}`)
	items := []history.Item{
		history.User("show me a.txt"),
		{Kind: history.KindAssistant, Content: "Reading it now."},
		callItem(read),
		{Kind: history.KindToolOutput, CallID: "call-1", ToolName: "read_file", Content: "hello"},
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	assistant := entries[1]
	if assistant.ToolCall == nil || assistant.ToolCall.CallID != "call-1" {
		t.Errorf("expected call collapsed onto assistant, got %+v", assistant)
	}
	if assistant.ToolCalls != nil {
		t.Error("single call must use the singular field, not the array")
	}

	result := entries[2]
	if result.Kind != KindFileRead {
		t.Errorf("expected file-read specialization, got %q", result.Kind)
	}
	if result.Path != "/tmp/a.txt" {
		t.Errorf("expected resolved path, got %q", result.Path)
	}
	if result.Content != "hello" {
		t.Errorf("unexpected content: %q", result.Content)
	}
}

func TestLowerPromotesParallelCalls(t *testing.T) {
	items := []history.Item{
		{Kind: history.KindAssistant},
		callItem(call("c-1", "shell", `{"command":"ls"}`)),
		callItem(call("c-2", "shell", `{"command":"pwd"}`)),
		callItem(call("c-3", "shell", `{"command":"date"}`)),
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ToolCall != nil {
		t.Error("parallel calls must clear the singular field")
	}
	if got := len(entries[0].ToolCalls); got != 3 {
		t.Fatalf("expected 3 parallel calls, got %d", got)
	}
	for i, id := range []string{"c-1", "c-2", "c-3"} {
		if entries[0].ToolCalls[i].CallID != id {
			t.Errorf("call %d: expected %s, got %s", i, id, entries[0].ToolCalls[i].CallID)
		}
	}
}

func TestLowerInterleavedParallelResults(t *testing.T) {
	items := []history.Item{
		{Kind: history.KindAssistant},
		callItem(call("c-1", "read_file", `{"path":"/tmp/a.txt"}`)),
		callItem(call("c-2", "read_file", `{"path":"/tmp/b.txt"}`)),
		{Kind: history.KindToolOutput, CallID: "c-2", ToolName: "read_file", Content: "bbb"},
		{Kind: history.KindToolOutput, CallID: "c-1", ToolName: "read_file", Content: "aaa"},
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Path != "/tmp/b.txt" || entries[2].Path != "/tmp/a.txt" {
		t.Errorf("results matched to wrong calls: %q, %q", entries[1].Path, entries[2].Path)
	}
}

func TestLowerUnmatchedIDUsesFirstCall(t *testing.T) {
	items := []history.Item{
		{Kind: history.KindAssistant},
		callItem(call("c-1", "read_file", `{"path":"/tmp/a.txt"}`)),
		{Kind: history.KindToolOutput, CallID: "c-unknown", ToolName: "read_file", Content: "aaa"},
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("expected best-effort match, got error: %v", err)
	}
	if entries[1].Path != "/tmp/a.txt" {
		t.Errorf("expected fallback to the first call's path, got %q", entries[1].Path)
	}
}

func TestLowerOrphanToolCall(t *testing.T) {
	items := []history.Item{
		history.User("hi"),
		callItem(call("c-1", "shell", `{"command":"ls"}`)),
	}
	_, err := FromHistory(items, testAccess)
	if !errors.Is(err, ErrOrphanToolCall) {
		t.Fatalf("expected ErrOrphanToolCall, got %v", err)
	}
}

func TestLowerOrphanToolResult(t *testing.T) {
	items := []history.Item{
		history.User("hi"),
		{Kind: history.KindToolOutput, CallID: "c-1", ToolName: "shell", Content: "out"},
	}
	_, err := FromHistory(items, testAccess)
	if !errors.Is(err, ErrOrphanToolResult) {
		t.Fatalf("expected ErrOrphanToolResult, got %v", err)
	}
}

func TestLowerMalformedSynthesizesCall(t *testing.T) {
	items := []history.Item{
		history.User("hi"),
		{
			Kind:         history.KindToolMalformed,
			CallID:       "c-1",
			ToolName:     "edit_file",
			RawArguments: `{"path": broken`,
			Error:        "unexpected token",
		},
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected synthesized assistant plus result, got %d entries", len(entries))
	}

	host := entries[1]
	if host.Kind != KindAssistant || !host.HasCall("c-1") {
		t.Fatalf("expected synthesized assistant carrying the call, got %+v", host)
	}
	// Invalid raw text must still round-trip as valid JSON.
	var probe any
	if err := json.Unmarshal(host.ToolCall.Function.Arguments, &probe); err != nil {
		t.Errorf("synthesized arguments are not valid JSON: %v", err)
	}
	if entries[2].Kind != KindToolMalformed || entries[2].Error != "unexpected token" {
		t.Errorf("expected tool-malformed result entry, got %+v", entries[2])
	}
}

func TestLowerMalformedAfterRecordedCall(t *testing.T) {
	// When the assistant already carries the call, synthesis must not
	// duplicate it.
	items := []history.Item{
		{Kind: history.KindAssistant},
		callItem(call("c-1", "edit_file", `{}`)),
		{Kind: history.KindToolMalformed, CallID: "c-1", ToolName: "edit_file", RawArguments: `{}`, Error: "missing path"},
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(entries[0].Calls()); got != 1 {
		t.Errorf("expected 1 call on the assistant, got %d", got)
	}
}

func TestLowerFiltersEphemeralKinds(t *testing.T) {
	items := []history.Item{
		history.Notification("session resumed"),
		history.User("hi"),
		{Kind: history.KindRequestFailed, Error: "HTTP 500"},
		history.Checkpoint("earlier work summary"),
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected notification and request-failed filtered, got %d entries", len(entries))
	}
	if entries[0].Kind != KindUser || entries[1].Kind != KindCheckpoint {
		t.Errorf("unexpected kinds: %q, %q", entries[0].Kind, entries[1].Kind)
	}
}

func TestRoundTripIsIdempotent(t *testing.T) {
	items := []history.Item{
		history.User("fix the bug"),
		{Kind: history.KindAssistant, Content: "Looking.", UsageDelta: 100, OutputTokens: 12},
		callItem(call("c-1", "read_file", `{"path":"/tmp/a.txt"}`)),
		{Kind: history.KindToolOutput, CallID: "c-1", ToolName: "read_file", Content: "hello"},
		{Kind: history.KindAssistant, Content: "Done."},
	}

	first, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := FromHistory(ToHistory(first), testAccess)
	if err != nil {
		t.Fatalf("unexpected error on relowering: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("lowering is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestLowerCarriesSidecar(t *testing.T) {
	side := Sidecar{
		ResponseID:         "resp-1",
		EncryptedReasoning: "blob",
		ThinkingSignature:  "sig",
	}
	items := []history.Item{
		history.User("think about it"),
		{Kind: history.KindAssistant, Content: "Thought.", Sidecar: side},
	}

	entries, err := FromHistory(items, testAccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[1].Sidecar != side {
		t.Errorf("expected sidecar carried through lowering, got %+v", entries[1].Sidecar)
	}

	back := ToHistory(entries[1:])
	if back[0].Sidecar != side {
		t.Errorf("expected sidecar preserved on raising, got %+v", back[0].Sidecar)
	}
}
