// Package trajectory drives one agent step from the current history to a
// terminal outcome.
//
// Information Hiding: encapsulates the retry loop between the model and the
// tool validators. Callers hand in a history log and get back the items to
// append plus a terminal reason; they never see the intermediate lowering,
// windowing, compaction, or validation traffic. The loop is explicit and
// bounded, and all token accounting flows through the caller's accumulator.
package trajectory

import (
	"context"
	"errors"
	"fmt"

	"github.com/weftlabs/weft/history"
	"github.com/weftlabs/weft/ir"
	"github.com/weftlabs/weft/llm"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tools"
	"github.com/weftlabs/weft/transport"
	"github.com/weftlabs/weft/window"
)

// DefaultMaxRetries bounds how many recoverable failures (malformed or
// invalid tool calls) a single run absorbs before giving up.
const DefaultMaxRetries = 8

// Reason is the terminal state of a run.
type Reason string

const (
	// ReasonNeedsResponse: the model answered in prose; the user's turn.
	ReasonNeedsResponse Reason = "needs-response"
	// ReasonRequestTool: the model proposed valid tool calls awaiting
	// execution approval.
	ReasonRequestTool Reason = "request-tool"
	// ReasonRequestError: the backend request failed, or the retry budget
	// ran out.
	ReasonRequestError Reason = "request-error"
	// ReasonAbort: the context was cancelled; partial output is kept.
	ReasonAbort Reason = "abort"
)

// Params configures one run.
type Params struct {
	Adapter   llm.Adapter
	History   []history.Item
	System    llm.SystemPromptFunc
	Tools     *tools.Set
	Tracker   *tools.Tracker
	Transport transport.Transport
	Repairer  tools.EditRepairer

	// ContextLength is the model's context window in tokens; zero disables
	// the sliding window.
	ContextLength int
	// CompactThreshold triggers summary compaction when the conversation's
	// estimated token load exceeds it; zero disables compaction.
	CompactThreshold int
	// MaxRetries bounds recoverable-failure retries; zero means
	// DefaultMaxRetries.
	MaxRetries int

	OnToken llm.TokenSink
	Usage   *UsageAccumulator
}

// Outcome is the result of a run. Appended holds every history item the run
// produced, in order, already sequenced if the caller persists them through
// the store. Calls is populated only for ReasonRequestTool.
type Outcome struct {
	Reason   Reason
	Appended []history.Item
	Calls    []model.ToolCall
	Error    string
	Curl     string
}

// Run drives the loop: lower history, maybe compact, window, complete, then
// either finish or inject a recovery item and go around again.
//
// Returned errors are programming or persistence defects (ordering
// violations, an oversized conversation). Backend failures and exhausted
// retries terminate normally with ReasonRequestError.
func Run(ctx context.Context, p Params) (Outcome, error) {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	compactor := &window.Compactor{Adapter: p.Adapter, Threshold: p.CompactThreshold}

	log := append([]history.Item{}, p.History...)
	var appended []history.Item
	record := func(items ...history.Item) {
		log = append(log, items...)
		appended = append(appended, items...)
	}

	retries := 0
	for {
		entries, err := ir.FromHistory(log, p.Tools.Access)
		if err != nil {
			return Outcome{}, err
		}

		checkpoint, cusage, cerr := compactor.MaybeCompact(ctx, entries)
		if p.Usage != nil && (checkpoint != nil || cerr != nil) {
			p.Usage.Add(cusage)
		}
		if cerr != nil {
			record(history.Notification(fmt.Sprintf("compaction skipped: %v", cerr)))
		} else if checkpoint != nil {
			record(history.Checkpoint(checkpoint.Content))
			entries = append(entries, *checkpoint)
		}

		sliced := window.Slice(entries)
		windowed, applied, err := window.Apply(sliced, p.ContextLength)
		if err != nil {
			return Outcome{}, err
		}

		result, err := p.Adapter.Complete(ctx, llm.Request{
			IR:       windowed,
			Windowed: applied || len(sliced) < len(entries),
			System:   p.System,
			Tools:    p.Tools.Schemas(),
			OnToken:  p.OnToken,
		})
		if p.Usage != nil {
			p.Usage.Add(result.Usage)
		}
		if err != nil {
			if ctx.Err() != nil {
				record(ir.ToHistory(result.Output)...)
				return Outcome{Reason: ReasonAbort, Appended: appended}, nil
			}
			reqErr, ok := asRequestError(err)
			if !ok {
				return Outcome{}, err
			}
			record(history.Item{Kind: history.KindRequestFailed, Error: reqErr.Message})
			return Outcome{
				Reason:   ReasonRequestError,
				Appended: appended,
				Error:    reqErr.Error(),
				Curl:     reqErr.Curl,
			}, nil
		}
		record(ir.ToHistory(result.Output)...)

		if hasMalformed(result.Output) {
			if retries++; retries > maxRetries {
				return giveUp(appended, retries)
			}
			continue
		}

		calls := outputCalls(result.Output)
		if len(calls) == 0 {
			return Outcome{Reason: ReasonNeedsResponse, Appended: appended}, nil
		}

		recovered, items := validateCalls(ctx, p, calls)
		if len(items) == 0 {
			return Outcome{Reason: ReasonRequestTool, Appended: appended, Calls: recovered}, nil
		}
		record(items...)
		if retries++; retries > maxRetries {
			return giveUp(appended, retries)
		}
	}
}

// validateCalls checks each proposed call, repairing what it can. It returns
// the (possibly repaired) calls and, when any call failed validation, the
// recovery items to inject so the model can try again. A non-empty item list
// means the batch was not accepted.
func validateCalls(ctx context.Context, p Params, calls []model.ToolCall) ([]model.ToolCall, []history.Item) {
	var items []history.Item
	accepted := make([]model.ToolCall, len(calls))
	copy(accepted, calls)

	for i, call := range calls {
		err := tools.Validate(ctx, call, p.Tools, p.Tracker, p.Transport)
		if err == nil {
			continue
		}

		var stale *tools.StaleFileError
		var mismatch *tools.EditMismatchError
		var unreadable *tools.UnreadableFileError
		switch {
		case errors.As(err, &stale):
			items = append(items, refreshFile(ctx, p, call.CallID, stale.Path))

		case errors.As(err, &mismatch):
			fixed, ferr := tools.FixEdit(ctx, call, p.Transport, p.Repairer)
			if ferr != nil {
				items = append(items, history.Item{Kind: history.KindToolFailed, CallID: call.CallID, Error: err.Error()})
				continue
			}
			accepted[i] = fixed

		case errors.As(err, &unreadable):
			items = append(items, history.Item{Kind: history.KindFileUnreadable, CallID: call.CallID, Path: unreadable.Path})

		default:
			items = append(items, history.Item{Kind: history.KindToolFailed, CallID: call.CallID, Error: err.Error()})
		}
	}
	return accepted, items
}

// refreshFile re-reads a stale file and injects its fresh content so the
// model can reconcile before mutating. An unreadable file degrades to a
// file-unreadable item.
func refreshFile(ctx context.Context, p Params, callID, path string) history.Item {
	content, err := p.Transport.ReadFile(ctx, path)
	if err != nil {
		return history.Item{Kind: history.KindFileUnreadable, CallID: callID, Path: path}
	}
	if p.Tracker != nil {
		p.Tracker.NoteRead(path, content)
	}
	return history.Item{Kind: history.KindFileOutdated, CallID: callID, Path: path, Content: content}
}

// giveUp terminates a run whose retry budget is exhausted.
func giveUp(appended []history.Item, retries int) (Outcome, error) {
	msg := fmt.Sprintf("giving up after %d failed attempts", retries)
	appended = append(appended, history.Item{Kind: history.KindRequestFailed, Error: msg})
	return Outcome{Reason: ReasonRequestError, Appended: appended, Error: msg}, nil
}

// outputCalls gathers the tool calls proposed by the assistant entries of
// one completion.
func outputCalls(output []ir.Entry) []model.ToolCall {
	var calls []model.ToolCall
	for _, e := range output {
		if e.Kind == ir.KindAssistant {
			calls = append(calls, e.Calls()...)
		}
	}
	return calls
}

// hasMalformed reports whether a completion produced any unparseable call.
func hasMalformed(output []ir.Entry) bool {
	for _, e := range output {
		if e.Kind == ir.KindToolMalformed {
			return true
		}
	}
	return false
}

// asRequestError unwraps any of the typed request errors to the embedded
// RequestError.
func asRequestError(err error) (*llm.RequestError, bool) {
	var rateLimit *llm.RateLimitError
	if errors.As(err, &rateLimit) {
		return &rateLimit.RequestError, true
	}
	var payment *llm.PaymentRequiredError
	if errors.As(err, &payment) {
		return &payment.RequestError, true
	}
	var reqErr *llm.RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}
