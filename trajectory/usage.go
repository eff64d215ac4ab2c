package trajectory

import "github.com/weftlabs/weft/llm"

// UsageAccumulator totals token usage across every backend call a run makes,
// including compaction sub-calls. Autofix repairs go through the fixer's own
// client and are not counted here. Callers own the accumulator; nothing here
// is global.
type UsageAccumulator struct {
	Input     int
	Output    int
	Reasoning int
	LLMCalls  int
}

// Add folds one call's usage into the running totals.
func (u *UsageAccumulator) Add(usage llm.TokenUsage) {
	u.Input += usage.Input
	u.Output += usage.Output
	u.Reasoning += usage.Reasoning
	u.LLMCalls++
}

// Total returns input plus output tokens across all calls.
func (u *UsageAccumulator) Total() int {
	return u.Input + u.Output
}
