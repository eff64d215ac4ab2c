// Package history defines the persisted conversation log.
//
// Items are append-only: each carries a strictly increasing sequence
// identifier used for ordering and for rewind-to-here operations. An item is
// never mutated after append, only superseded by later items. The trajectory
// driver is the sole writer; every other component reads items or returns new
// ones for the driver to append.
package history

import "github.com/weftlabs/weft/model"

// Kind discriminates history item variants.
type Kind string

const (
	KindUser           Kind = "user"
	KindAssistant      Kind = "assistant"
	KindToolCall       Kind = "tool-call"
	KindToolOutput     Kind = "tool-output"
	KindToolMalformed  Kind = "tool-malformed"
	KindToolFailed     Kind = "tool-failed"
	KindToolReject     Kind = "tool-reject"
	KindFileOutdated   Kind = "file-outdated"
	KindFileUnreadable Kind = "file-unreadable"
	KindCheckpoint     Kind = "compaction-checkpoint"
	KindNotification   Kind = "notification"
	KindRequestFailed  Kind = "request-failed"
)

// Sidecar holds backend-specific side-channel data attached to an assistant
// item. Each backend round-trips its own fields untouched.
type Sidecar struct {
	ResponseID         string `json:"responseId,omitempty"`
	EncryptedReasoning string `json:"encryptedReasoning,omitempty"`
	ThinkingSignature  string `json:"thinkingSignature,omitempty"`
	RedactedThinking   string `json:"redactedThinking,omitempty"`
}

// Empty reports whether no side-channel data is present.
func (s Sidecar) Empty() bool {
	return s == Sidecar{}
}

// Item is one persisted log entry.
//
// Field usage by kind:
//   - user, notification: Content
//   - assistant: Content, Reasoning, UsageDelta, OutputTokens, Sidecar
//   - tool-call: Call
//   - tool-output: CallID, ToolName, Content
//   - tool-malformed: CallID, ToolName, RawArguments, Error
//   - tool-failed: CallID, Error
//   - tool-reject: CallID
//   - file-outdated: CallID, Path, Content (fresh file content, when re-read)
//   - file-unreadable: CallID, Path
//   - compaction-checkpoint: Content (the summary)
//   - request-failed: Error
type Item struct {
	Seq          int64           `json:"seq"`
	Kind         Kind            `json:"kind"`
	Content      string          `json:"content,omitempty"`
	Reasoning    string          `json:"reasoning,omitempty"`
	UsageDelta   int             `json:"usageDelta,omitempty"`
	OutputTokens int             `json:"outputTokens,omitempty"`
	Call         *model.ToolCall `json:"call,omitempty"`
	CallID       string          `json:"callId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	RawArguments string          `json:"rawArguments,omitempty"`
	Path         string          `json:"path,omitempty"`
	Error        string          `json:"error,omitempty"`
	Sidecar      Sidecar         `json:"sidecar,omitempty"`
}

// User creates a user item.
func User(content string) Item {
	return Item{Kind: KindUser, Content: content}
}

// Notification creates an ephemeral UI notification item.
// Notifications are persisted but never shown to the model.
func Notification(content string) Item {
	return Item{Kind: KindNotification, Content: content}
}

// Checkpoint creates a compaction checkpoint carrying a summary.
func Checkpoint(summary string) Item {
	return Item{Kind: KindCheckpoint, Content: summary}
}
