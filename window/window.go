// Context window management for long conversations.
//
// Information Hiding: encapsulates how a conversation is cut down to fit a
// model's context. Callers see three stages: checkpoint slicing, a sliding
// window over token estimates, and summary compaction. The estimation model
// (usage deltas attributed to assistant entries) stays internal.
package window

import (
	"errors"

	"github.com/weftlabs/weft/ir"
)

// ErrOversizedEntry reports that no suffix of the conversation fits inside
// the window budget. There is nothing left to drop, so the caller must fail
// rather than send a request the backend will reject.
var ErrOversizedEntry = errors.New("window: conversation suffix exceeds context budget")

// Slice returns the entries from the most recent compaction checkpoint
// onward, including the checkpoint itself. With no checkpoint it returns the
// input unchanged.
func Slice(entries []ir.Entry) []ir.Entry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == ir.KindCheckpoint {
			return entries[i:]
		}
	}
	return entries
}

// Apply enforces the sliding window. Token load is estimated from the usage
// deltas recorded on assistant entries; the budget is 80% of the model's
// context length, leaving headroom for the next completion. Entries are
// dropped oldest-first, never separating an assistant entry from its tool
// results. The second return value reports whether anything was dropped.
func Apply(entries []ir.Entry, contextLength int) ([]ir.Entry, bool, error) {
	if contextLength <= 0 || len(entries) == 0 {
		return entries, false, nil
	}
	budget := contextLength * 8 / 10
	total := ir.TotalUsage(entries)
	if total <= budget {
		return entries, false, nil
	}

	start := 0
	for start < len(entries) && total > budget {
		end := start + 1
		if entries[start].Kind == ir.KindAssistant && len(entries[start].Calls()) > 0 {
			for end < len(entries) && entries[end].IsToolResult() {
				end++
			}
		}
		for i := start; i < end; i++ {
			if entries[i].Kind == ir.KindAssistant {
				total -= entries[i].UsageDelta
			}
		}
		start = end
	}
	if start >= len(entries) {
		return nil, false, ErrOversizedEntry
	}
	return entries[start:], true, nil
}
