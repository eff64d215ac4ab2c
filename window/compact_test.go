package window

import (
	"context"
	"testing"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/llm"
)

// fakeAdapter returns a canned completion and records the request it saw.
type fakeAdapter struct {
	output  []ir.Entry
	usage   llm.TokenUsage
	err     error
	lastReq llm.Request
}

func (f *fakeAdapter) Name() string  { return "fake" }
func (f *fakeAdapter) Model() string { return "fake-model" }

func (f *fakeAdapter) Complete(ctx context.Context, req llm.Request) (llm.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Output: f.output, Usage: f.usage}, nil
}

func TestMaybeCompactBelowThreshold(t *testing.T) {
	adapter := &fakeAdapter{}
	c := &Compactor{Adapter: adapter, Threshold: 1000}

	entries := []ir.Entry{{Kind: ir.KindAssistant, UsageDelta: 100}}
	checkpoint, usage, err := c.MaybeCompact(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkpoint != nil {
		t.Error("expected no compaction below threshold")
	}
	if usage != (llm.TokenUsage{}) {
		t.Errorf("expected zero usage when no call was made, got %+v", usage)
	}
}

func TestMaybeCompactProducesCheckpoint(t *testing.T) {
	adapter := &fakeAdapter{
		output: []ir.Entry{ir.Assistant(`{"summary": "The user fixed the parser."}`)},
		usage:  llm.TokenUsage{Input: 400, Output: 30},
	}
	c := &Compactor{Adapter: adapter, Threshold: 100}

	entries := []ir.Entry{{Kind: ir.KindAssistant, UsageDelta: 500}}
	checkpoint, usage, err := c.MaybeCompact(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkpoint == nil {
		t.Fatal("expected a checkpoint")
	}
	if checkpoint.Kind != ir.KindCheckpoint {
		t.Errorf("expected checkpoint kind, got %q", checkpoint.Kind)
	}
	if checkpoint.Content != "The user fixed the parser." {
		t.Errorf("unexpected summary: %q", checkpoint.Content)
	}
	if usage != adapter.usage {
		t.Errorf("expected the summarization call's usage returned, got %+v", usage)
	}
	// The summarization call must not offer tools.
	if len(adapter.lastReq.Tools) != 0 {
		t.Error("compaction request must run with tools disabled")
	}
}

func TestMaybeCompactHandlesCodeFences(t *testing.T) {
	adapter := &fakeAdapter{
		output: []ir.Entry{ir.Assistant("```json\n{\"summary\": \"Work happened.\"}\n```")},
	}
	c := &Compactor{Adapter: adapter, Threshold: 100}

	checkpoint, _, err := c.MaybeCompact(context.Background(), []ir.Entry{{Kind: ir.KindAssistant, UsageDelta: 500}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkpoint == nil || checkpoint.Content != "Work happened." {
		t.Errorf("expected fenced JSON to parse, got %+v", checkpoint)
	}
}

func TestMaybeCompactInvalidSummary(t *testing.T) {
	adapter := &fakeAdapter{output: []ir.Entry{ir.Assistant("not json at all")}}
	c := &Compactor{Adapter: adapter, Threshold: 100}

	checkpoint, _, err := c.MaybeCompact(context.Background(), []ir.Entry{{Kind: ir.KindAssistant, UsageDelta: 500}})
	if err == nil {
		t.Fatal("expected an error for an unparseable summary")
	}
	if checkpoint != nil {
		t.Error("expected no checkpoint on failure")
	}
}
