// Shared IR pre-rendering used by every adapter.
//
// The IR list is walked in reverse so the most recent read of each file is
// the one that keeps its content; older reads of the same path are elided to
// a short success notice. Order is restored afterwards and the adapter
// prepends its rendered system message.
package llm

import (
	"fmt"

	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/model"
)

const elidedFileNotice = "Tool ran successfully."

// turn is a protocol-neutral rendering of one IR entry. Adapters map turns
// to their wire format.
type turn struct {
	Role      string // "user", "assistant", or "tool"
	Content   string
	Reasoning string
	Calls     []model.ToolCall
	CallID    string
	IsError   bool
	Sidecar   ir.Sidecar
}

// renderTurns lowers IR entries to turns, eliding repeated file content.
func renderTurns(entries []ir.Entry) []turn {
	turns := make([]turn, 0, len(entries))
	seen := make(map[string]bool)

	// Reverse walk: the first occurrence of a path is its most recent one.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		switch e.Kind {
		case ir.KindAssistant:
			turns = append(turns, turn{
				Role:      "assistant",
				Content:   e.Content,
				Reasoning: e.Reasoning,
				Calls:     e.Calls(),
				Sidecar:   e.Sidecar,
			})
		case ir.KindUser:
			turns = append(turns, turn{Role: "user", Content: e.Content})
		case ir.KindCheckpoint:
			turns = append(turns, turn{
				Role:    "user",
				Content: "Summary of the conversation so far:\n\n" + e.Content,
			})
		case ir.KindFileRead:
			content := e.Content
			if e.Path != "" {
				if seen[e.Path] {
					content = elidedFileNotice
				}
				seen[e.Path] = true
			}
			turns = append(turns, turn{Role: "tool", CallID: e.CallID, Content: content})
		case ir.KindFileMutate:
			if e.Path != "" {
				seen[e.Path] = true
			}
			turns = append(turns, turn{Role: "tool", CallID: e.CallID, Content: e.Content})
		case ir.KindToolOutput:
			turns = append(turns, turn{Role: "tool", CallID: e.CallID, Content: e.Content})
		case ir.KindToolError:
			turns = append(turns, turn{
				Role:    "tool",
				CallID:  e.CallID,
				Content: "Tool failed: " + e.Error,
				IsError: true,
			})
		case ir.KindToolReject:
			turns = append(turns, turn{
				Role:    "tool",
				CallID:  e.CallID,
				Content: "The user declined this tool call. Ask before retrying it.",
				IsError: true,
			})
		case ir.KindToolMalformed:
			turns = append(turns, turn{
				Role:    "tool",
				CallID:  e.CallID,
				Content: "Tool call arguments were not valid JSON: " + e.Error,
				IsError: true,
			})
		case ir.KindFileOutdated:
			content := fmt.Sprintf("File %s changed on disk since it was last read.", e.Path)
			if e.Content != "" {
				content += "\n\nCurrent content:\n" + e.Content
			}
			turns = append(turns, turn{Role: "tool", CallID: e.CallID, Content: content, IsError: true})
		case ir.KindFileUnreadable:
			turns = append(turns, turn{
				Role:    "tool",
				CallID:  e.CallID,
				Content: fmt.Sprintf("File %s could not be read.", e.Path),
				IsError: true,
			})
		}
	}

	// Restore original order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}
