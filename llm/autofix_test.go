package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/tools"
)

// autofixServer serves a canned chat completion and counts requests.
func autofixServer(t *testing.T, content string) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

type autofixRecorder struct {
	events  []AutofixEvent
	results []bool
}

func (r *autofixRecorder) notify(event AutofixEvent, ok bool) {
	r.events = append(r.events, event)
	r.results = append(r.results, ok)
}

func readFileRequest() Request {
	return Request{Tools: []tools.Schema{{
		Name: "read_file",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
		},
	}}}
}

func TestBuildOutputRepairsMalformedArguments(t *testing.T) {
	srv, calls := autofixServer(t, `{"path": "/tmp/a.txt"}`)
	rec := &autofixRecorder{}
	cfg := Config{Fixer: NewFixer("test-key", srv.URL+"/v1", "small-model"), OnAutofix: rec.notify}

	pending := []pendingCall{{id: "c-1", name: "read_file", args: `{"path": /tmp/a.txt}`}}
	result := buildOutput(context.Background(), cfg, readFileRequest(), "On it.", "", ir.Sidecar{}, pending, TokenUsage{Output: 5})

	if len(result.Output) != 1 {
		t.Fatalf("expected one assistant entry, got %+v", result.Output)
	}
	assistant := result.Output[0]
	if assistant.ToolCall == nil || assistant.ToolCall.CallID != "c-1" {
		t.Fatalf("expected the repaired call kept, got %+v", assistant)
	}
	if got := assistant.ToolCall.StringArgument("path"); got != "/tmp/a.txt" {
		t.Errorf("expected repaired arguments, got %q", got)
	}
	if *calls != 1 {
		t.Errorf("expected one repair sub-call, got %d", *calls)
	}
	if len(rec.events) != 2 || rec.events[0] != AutofixStarted || rec.events[1] != AutofixResolved {
		t.Fatalf("expected a started/resolved pair, got %v", rec.events)
	}
	if !rec.results[1] {
		t.Error("expected the repair reported as successful")
	}
}

func TestBuildOutputRepairFailureYieldsMalformed(t *testing.T) {
	srv, calls := autofixServer(t, "I cannot help with that.")
	rec := &autofixRecorder{}
	cfg := Config{Fixer: NewFixer("test-key", srv.URL+"/v1", "small-model"), OnAutofix: rec.notify}

	raw := `{"path": broken`
	pending := []pendingCall{{id: "c-2", name: "read_file", args: raw}}
	result := buildOutput(context.Background(), cfg, readFileRequest(), "", "", ir.Sidecar{}, pending, TokenUsage{})

	if len(result.Output) != 2 {
		t.Fatalf("expected assistant plus malformed entry, got %+v", result.Output)
	}
	if result.Output[0].ToolCall != nil || result.Output[0].ToolCalls != nil {
		t.Error("expected no call on the assistant entry after a failed repair")
	}
	malformed := result.Output[1]
	if malformed.Kind != ir.KindToolMalformed || malformed.CallID != "c-2" {
		t.Fatalf("expected a tool-malformed entry, got %+v", malformed)
	}
	if malformed.RawArguments != raw {
		t.Errorf("expected the original arguments preserved, got %q", malformed.RawArguments)
	}
	if *calls != 1 {
		t.Errorf("expected one repair sub-call, got %d", *calls)
	}
	if len(rec.events) != 2 || rec.results[1] {
		t.Errorf("expected a started/resolved pair with failure, got %v %v", rec.events, rec.results)
	}
}

func TestBuildOutputRepairsOncePerCall(t *testing.T) {
	srv, calls := autofixServer(t, `{"path": "/tmp/b.txt"}`)
	rec := &autofixRecorder{}
	cfg := Config{Fixer: NewFixer("test-key", srv.URL+"/v1", "small-model"), OnAutofix: rec.notify}

	pending := []pendingCall{
		{id: "c-1", name: "read_file", args: `{"path": "/tmp/ok.txt"}`},
		{id: "c-2", name: "read_file", args: `{"path": broken`},
		{id: "c-3", name: "read_file", args: `not json either`},
	}
	result := buildOutput(context.Background(), cfg, readFileRequest(), "", "", ir.Sidecar{}, pending, TokenUsage{})

	// Well-formed arguments never reach the fixer; each malformed call
	// gets exactly one repair attempt.
	if *calls != 2 {
		t.Errorf("expected two repair sub-calls, got %d", *calls)
	}
	if len(rec.events) != 4 {
		t.Errorf("expected two started/resolved pairs, got %v", rec.events)
	}
	if len(result.Output) != 1 || len(result.Output[0].ToolCalls) != 3 {
		t.Fatalf("expected three calls on the assistant entry, got %+v", result.Output)
	}
}

func TestBuildOutputWithoutFixer(t *testing.T) {
	rec := &autofixRecorder{}
	cfg := Config{OnAutofix: rec.notify}

	pending := []pendingCall{{id: "c-1", name: "read_file", args: `{"path": broken`}}
	result := buildOutput(context.Background(), cfg, readFileRequest(), "", "", ir.Sidecar{}, pending, TokenUsage{})

	if len(result.Output) != 2 || result.Output[1].Kind != ir.KindToolMalformed {
		t.Fatalf("expected a tool-malformed fallback, got %+v", result.Output)
	}
	if len(rec.events) != 0 {
		t.Errorf("expected no autofix events without a fixer, got %v", rec.events)
	}
}
