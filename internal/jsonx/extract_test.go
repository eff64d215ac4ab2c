package jsonx

import "testing"

func TestExtractPureJSON(t *testing.T) {
	got, err := Extract(`{"summary": "done"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"summary": "done"}` {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractFromCodeBlock(t *testing.T) {
	got, err := Extract("```json\n{\"a\": 1}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a": 1}` {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractEmbeddedInText(t *testing.T) {
	got, err := Extract(`Here is the result: {"a": 1} hope that helps!`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a": 1}` {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractNoJSON(t *testing.T) {
	if _, err := Extract("no json here"); err == nil {
		t.Error("expected an error")
	}
}

func TestExtractInto(t *testing.T) {
	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := ExtractInto("```json\n{\"summary\": \"x\"}\n```", &parsed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Summary != "x" {
		t.Errorf("unexpected value: %q", parsed.Summary)
	}
}
