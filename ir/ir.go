// Package ir provides the lowered, protocol-agnostic turn representation.
//
// Entries are rebuilt fresh from history items at the start of every
// trajectory step and are never persisted directly. The collapsing compiler in
// compile.go converts between the two forms.
package ir

import (
	"github.com/weftlabs/weft/history"
	"github.com/weftlabs/weft/model"
)

// Sidecar is the backend side-channel payload carried on assistant entries.
// It is an alias of the persisted form so lowering it is a field copy.
type Sidecar = history.Sidecar

// Kind discriminates lowered entry variants.
type Kind string

const (
	KindAssistant      Kind = "assistant"
	KindUser           Kind = "user"
	KindToolOutput     Kind = "tool-output"
	KindFileRead       Kind = "file-read"
	KindFileMutate     Kind = "file-mutate"
	KindToolReject     Kind = "tool-reject"
	KindToolError      Kind = "tool-error"
	KindToolMalformed  Kind = "tool-malformed"
	KindFileOutdated   Kind = "file-outdated"
	KindFileUnreadable Kind = "file-unreadable"
	KindCheckpoint     Kind = "compaction-checkpoint"
)

// Entry is one lowered conversation element.
//
// An assistant entry carries zero or one ToolCall, or a ToolCalls array when
// the backend emitted parallel invocations. Every tool-result-shaped entry
// (tool-output, file-read, file-mutate, tool-error, tool-reject,
// file-outdated, file-unreadable, tool-malformed) references its originating
// call via CallID and must follow an assistant entry carrying that call.
type Entry struct {
	Kind         Kind
	Content      string
	Reasoning    string
	ToolCall     *model.ToolCall
	ToolCalls    []model.ToolCall
	CallID       string
	ToolName     string
	Path         string
	RawArguments string
	Error        string
	UsageDelta   int
	OutputTokens int
	Sidecar      Sidecar
}

// Calls returns every tool call carried by an assistant entry.
func (e Entry) Calls() []model.ToolCall {
	if e.ToolCall != nil {
		return []model.ToolCall{*e.ToolCall}
	}
	return e.ToolCalls
}

// HasCall reports whether the entry carries a call with the given identifier.
func (e Entry) HasCall(callID string) bool {
	for _, call := range e.Calls() {
		if call.CallID == callID {
			return true
		}
	}
	return false
}

// IsToolResult reports whether the entry is tool-result-shaped and therefore
// must collapse onto a preceding assistant entry.
func (e Entry) IsToolResult() bool {
	switch e.Kind {
	case KindToolOutput, KindFileRead, KindFileMutate, KindToolError,
		KindToolReject, KindToolMalformed, KindFileOutdated, KindFileUnreadable:
		return true
	}
	return false
}

// Assistant creates an assistant entry with plain content.
func Assistant(content string) Entry {
	return Entry{Kind: KindAssistant, Content: content}
}

// User creates a user entry.
func User(content string) Entry {
	return Entry{Kind: KindUser, Content: content}
}

// Checkpoint creates a compaction checkpoint entry carrying a summary.
func Checkpoint(summary string) Entry {
	return Entry{Kind: KindCheckpoint, Content: summary}
}

// TotalUsage sums the assistant token-usage deltas across entries. Windowing
// reasons in these pure deltas instead of re-summing full context each step.
func TotalUsage(entries []Entry) int {
	total := 0
	for _, e := range entries {
		if e.Kind == KindAssistant {
			total += e.UsageDelta
		}
	}
	return total
}
