// Collapsing compiler between the persisted history log and the lowered IR.
//
// Lowering filters out history kinds the model never sees, then folds the
// remainder left-to-right: tool calls collapse onto the preceding assistant
// entry, tool results collapse onto the nearest assistant entry carrying the
// matching call, and tool outputs are specialized by the access class of the
// tool that produced them.
package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/weftlabs/weft/history"
	"github.com/weftlabs/weft/model"
)

// FileAccess classifies how a tool touches the filesystem. Read-like tools
// produce file-read entries so later steps can detect "already shown this
// file"; mutating tools produce file-mutate entries.
type FileAccess int

const (
	AccessNone FileAccess = iota
	AccessRead
	AccessMutate
)

// AccessFunc reports the access class of a tool by name.
type AccessFunc func(tool string) FileAccess

// Ordering violations indicate a programming defect in the caller, never a
// recoverable runtime condition. They are returned, not swallowed.
var (
	ErrOrphanToolCall   = errors.New("ir: tool call without a preceding assistant entry")
	ErrOrphanToolResult = errors.New("ir: tool result without a preceding assistant entry carrying a call")
)

// FromHistory lowers a history log into the protocol-agnostic IR.
// access may be nil, in which case no tool output is specialized.
func FromHistory(items []history.Item, access AccessFunc) ([]Entry, error) {
	if access == nil {
		access = func(string) FileAccess { return AccessNone }
	}

	var entries []Entry
	for _, item := range items {
		switch item.Kind {
		case history.KindNotification, history.KindRequestFailed:
			// Ephemeral; the model never sees these.

		case history.KindUser:
			entries = append(entries, User(item.Content))

		case history.KindAssistant:
			entries = append(entries, Entry{
				Kind:         KindAssistant,
				Content:      item.Content,
				Reasoning:    item.Reasoning,
				UsageDelta:   item.UsageDelta,
				OutputTokens: item.OutputTokens,
				Sidecar:      item.Sidecar,
			})

		case history.KindToolCall:
			if item.Call == nil {
				return nil, fmt.Errorf("ir: tool-call item %d has no call", item.Seq)
			}
			if len(entries) == 0 || entries[len(entries)-1].Kind != KindAssistant {
				return nil, fmt.Errorf("%w (seq %d)", ErrOrphanToolCall, item.Seq)
			}
			attachCall(&entries[len(entries)-1], *item.Call)

		case history.KindToolMalformed:
			// Synthesize a best-effort assistant call so the model sees what
			// it attempted, then report the parse failure separately.
			synth := model.ToolCall{
				Kind:     "function",
				Function: model.FunctionCall{Name: item.ToolName, Arguments: bestEffortArguments(item.RawArguments)},
				CallID:   item.CallID,
			}
			if n := len(entries); n > 0 && entries[n-1].Kind == KindAssistant {
				if !entries[n-1].HasCall(item.CallID) {
					attachCall(&entries[n-1], synth)
				}
			} else {
				host := Entry{Kind: KindAssistant}
				attachCall(&host, synth)
				entries = append(entries, host)
			}
			entries = append(entries, Entry{
				Kind:         KindToolMalformed,
				CallID:       item.CallID,
				ToolName:     item.ToolName,
				RawArguments: item.RawArguments,
				Error:        item.Error,
			})

		case history.KindToolOutput:
			call, err := matchCall(entries, item.CallID, item.Seq)
			if err != nil {
				return nil, err
			}
			entry := Entry{
				Kind:     KindToolOutput,
				Content:  item.Content,
				CallID:   item.CallID,
				ToolName: item.ToolName,
			}
			switch access(item.ToolName) {
			case AccessRead:
				entry.Kind = KindFileRead
				entry.Path = resolvePath(call)
			case AccessMutate:
				entry.Kind = KindFileMutate
				entry.Path = resolvePath(call)
			}
			entries = append(entries, entry)

		case history.KindToolFailed:
			if _, err := matchCall(entries, item.CallID, item.Seq); err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Kind: KindToolError, CallID: item.CallID, Error: item.Error})

		case history.KindToolReject:
			if _, err := matchCall(entries, item.CallID, item.Seq); err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Kind: KindToolReject, CallID: item.CallID})

		case history.KindFileOutdated:
			if _, err := matchCall(entries, item.CallID, item.Seq); err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Kind: KindFileOutdated, CallID: item.CallID, Path: item.Path, Content: item.Content})

		case history.KindFileUnreadable:
			if _, err := matchCall(entries, item.CallID, item.Seq); err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Kind: KindFileUnreadable, CallID: item.CallID, Path: item.Path})

		case history.KindCheckpoint:
			entries = append(entries, Checkpoint(item.Content))

		default:
			return nil, fmt.Errorf("ir: unknown history kind %q (seq %d)", item.Kind, item.Seq)
		}
	}
	return entries, nil
}

// ToHistory decompiles agent output back into loggable history items.
// Sequence identifiers are left zero; the store assigns them on append.
func ToHistory(output []Entry) []history.Item {
	var items []history.Item
	for _, e := range output {
		switch e.Kind {
		case KindAssistant:
			items = append(items, history.Item{
				Kind:         history.KindAssistant,
				Content:      e.Content,
				Reasoning:    e.Reasoning,
				UsageDelta:   e.UsageDelta,
				OutputTokens: e.OutputTokens,
				Sidecar:      e.Sidecar,
			})
			for _, call := range e.Calls() {
				call := call
				items = append(items, history.Item{Kind: history.KindToolCall, Call: &call})
			}
		case KindUser:
			items = append(items, history.User(e.Content))
		case KindToolOutput, KindFileRead, KindFileMutate:
			items = append(items, history.Item{
				Kind:     history.KindToolOutput,
				Content:  e.Content,
				CallID:   e.CallID,
				ToolName: e.ToolName,
			})
		case KindToolError:
			items = append(items, history.Item{Kind: history.KindToolFailed, CallID: e.CallID, Error: e.Error})
		case KindToolReject:
			items = append(items, history.Item{Kind: history.KindToolReject, CallID: e.CallID})
		case KindToolMalformed:
			items = append(items, history.Item{
				Kind:         history.KindToolMalformed,
				CallID:       e.CallID,
				ToolName:     e.ToolName,
				RawArguments: e.RawArguments,
				Error:        e.Error,
			})
		case KindFileOutdated:
			items = append(items, history.Item{Kind: history.KindFileOutdated, CallID: e.CallID, Path: e.Path, Content: e.Content})
		case KindFileUnreadable:
			items = append(items, history.Item{Kind: history.KindFileUnreadable, CallID: e.CallID, Path: e.Path})
		case KindCheckpoint:
			items = append(items, history.Checkpoint(e.Content))
		}
	}
	return items
}

// attachCall collapses a call onto an assistant entry, promoting the single
// toolCall field into a parallel-call array when a second call arrives.
func attachCall(e *Entry, call model.ToolCall) {
	switch {
	case e.ToolCall == nil && e.ToolCalls == nil:
		e.ToolCall = &call
	case e.ToolCall != nil:
		e.ToolCalls = []model.ToolCall{*e.ToolCall, call}
		e.ToolCall = nil
	default:
		e.ToolCalls = append(e.ToolCalls, call)
	}
}

// matchCall scans backward through the built buffer for the nearest assistant
// entry and matches the call by identifier. Several results from a parallel
// call may interleave, so the scan skips other tool results along the way.
// When the id is not found among the assistant's calls the first call is used;
// this is best-effort, not guaranteed-correct, behavior.
func matchCall(entries []Entry, callID string, seq int64) (model.ToolCall, error) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind != KindAssistant {
			if entries[i].IsToolResult() {
				continue
			}
			break
		}
		calls := entries[i].Calls()
		if len(calls) == 0 {
			break
		}
		for _, call := range calls {
			if call.CallID == callID {
				return call, nil
			}
		}
		return calls[0], nil
	}
	return model.ToolCall{}, fmt.Errorf("%w (call %q, seq %d)", ErrOrphanToolResult, callID, seq)
}

// bestEffortArguments keeps valid JSON as-is and encodes anything else as a
// JSON string so the raw captured text survives the round trip.
func bestEffortArguments(raw string) json.RawMessage {
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err == nil {
		return json.RawMessage(raw)
	}
	quoted, err := json.Marshal(raw)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return quoted
}

// resolvePath extracts and absolutizes the "path" argument of a call.
func resolvePath(call model.ToolCall) string {
	path := call.StringArgument("path")
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
