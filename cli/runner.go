// Command execution for CLI commands.
//
// Information Hiding:
// - Session and adapter setup hidden
// - Tool approval and execution hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/weftlabs/weft/config"
	"github.com/weftlabs/weft/history"
	"github.com/weftlabs/weft/llm"
	"github.com/weftlabs/weft/model"
	"github.com/weftlabs/weft/tools"
	"github.com/weftlabs/weft/trajectory"
	"github.com/weftlabs/weft/transport"
)

// Options holds CLI execution options.
type Options struct {
	Provider    string
	Session     string
	DBPath      string
	AutoApprove bool
	Verbose     bool
}

const basePrompt = `You are a careful coding assistant working in the user's repository.
Read files before you change them, keep edits minimal, and say what you
changed when you finish. Use the shell tool for anything the file tools
cannot do.`

func systemPrompt(ctx context.Context, windowed bool) (string, error) {
	if windowed {
		return basePrompt + "\n\nEarlier turns may have been summarized or dropped to fit the context window.", nil
	}
	return basePrompt, nil
}

// session wires one conversation's adapter, tool set, and persistence.
type session struct {
	opts     Options
	settings config.Settings
	adapter  llm.Adapter
	fixer    *llm.Fixer
	set      *tools.Set
	tracker  *tools.Tracker
	tp       transport.Transport
	runner   tools.Runner
	store    *history.Store
	id       string
	log      []history.Item
	usage    trajectory.UsageAccumulator
	stdin    *bufio.Reader
}

func newSession(ctx context.Context, opts Options, persistent bool) (*session, error) {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, err
	}

	// The repair endpoint speaks chat completions; a messages-protocol
	// provider cannot serve it, so autofix is simply off there.
	var fixer *llm.Fixer
	if settings.LLM.Protocol != "messages" {
		fixer = llm.NewFixer(settings.LLM.APIKey, settings.LLM.BaseURL, settings.LLM.Model)
	}

	var notify llm.AutofixNotifier
	if opts.Verbose {
		notify = func(event llm.AutofixEvent, ok bool) {
			switch {
			case event == llm.AutofixStarted:
				fmt.Fprintln(os.Stderr, "[autofix] repairing malformed tool call...")
			case ok:
				fmt.Fprintln(os.Stderr, "[autofix] repaired")
			default:
				fmt.Fprintln(os.Stderr, "[autofix] could not repair")
			}
		}
	}

	adapter, err := llm.NewAdapter(llm.Config{
		Protocol:    settings.LLM.Protocol,
		APIKey:      settings.LLM.APIKey,
		BaseURL:     settings.LLM.BaseURL,
		Model:       settings.LLM.Model,
		MaxTokens:   settings.LLM.MaxTokens,
		Temperature: float32(settings.LLM.Temperature),
		Fixer:       fixer,
		OnAutofix:   notify,
	})
	if err != nil {
		return nil, err
	}

	schemas := tools.Builtin()
	if remote, ok := tools.Remote(settings.Agent.MCPServers); ok {
		schemas = append(schemas, remote)
	}
	tp := transport.NewLocal()
	tracker := tools.NewTracker()

	s := &session{
		opts:     opts,
		settings: settings,
		adapter:  adapter,
		fixer:    fixer,
		set:      tools.NewSet(schemas...),
		tracker:  tracker,
		tp:       tp,
		runner:   tools.NewLocalRunner(tp, tracker),
		stdin:    bufio.NewReader(os.Stdin),
	}

	if persistent {
		dbPath := opts.DBPath
		if dbPath == "" {
			dbPath = settings.Agent.HistoryPath
		}
		store, err := history.OpenStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.store = store
		s.id = opts.Session
		if s.id == "" {
			s.id = "default"
		}
		s.log, err = store.Load(ctx, s.id)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}
	return s, nil
}

func (s *session) close() {
	if s.store != nil {
		s.store.Close()
	}
}

// append persists new items (assigning sequence identifiers) and extends the
// in-memory log.
func (s *session) append(ctx context.Context, items []history.Item) error {
	if len(items) == 0 {
		return nil
	}
	if s.store != nil {
		sequenced, err := s.store.Append(ctx, s.id, items)
		if err != nil {
			return fmt.Errorf("failed to persist history: %w", err)
		}
		items = sequenced
	}
	s.log = append(s.log, items...)
	return nil
}

func (s *session) repairer() tools.EditRepairer {
	if s.fixer == nil {
		return nil
	}
	return s.fixer
}

func (s *session) onToken() llm.TokenSink {
	verbose := s.opts.Verbose
	return func(channel llm.Channel, token string) {
		switch channel {
		case llm.ChannelContent:
			fmt.Print(token)
		case llm.ChannelReasoning:
			if verbose {
				fmt.Fprint(os.Stderr, token)
			}
		}
	}
}

// step drives trajectory runs until the model needs the user again, executing
// approved tool calls between runs.
func (s *session) step(ctx context.Context) error {
	for {
		outcome, err := trajectory.Run(ctx, trajectory.Params{
			Adapter:          s.adapter,
			History:          s.log,
			System:           systemPrompt,
			Tools:            s.set,
			Tracker:          s.tracker,
			Transport:        s.tp,
			Repairer:         s.repairer(),
			ContextLength:    s.settings.LLM.ContextLength,
			CompactThreshold: s.settings.Agent.CompactThreshold,
			MaxRetries:       s.settings.Agent.MaxRetries,
			OnToken:          s.onToken(),
			Usage:            &s.usage,
		})
		if err != nil {
			return err
		}
		if err := s.append(ctx, outcome.Appended); err != nil {
			return err
		}

		switch outcome.Reason {
		case trajectory.ReasonNeedsResponse:
			fmt.Println()
			return nil

		case trajectory.ReasonRequestTool:
			fmt.Println()
			items := s.executeCalls(ctx, outcome.Calls)
			if err := s.append(ctx, items); err != nil {
				return err
			}

		case trajectory.ReasonRequestError:
			fmt.Fprintf(os.Stderr, "\nError: %s\n", outcome.Error)
			if outcome.Curl != "" && s.opts.Verbose {
				fmt.Fprintf(os.Stderr, "Reproduce with:\n%s\n", outcome.Curl)
			}
			return errors.New(outcome.Error)

		case trajectory.ReasonAbort:
			fmt.Fprintln(os.Stderr, "\nInterrupted.")
			return nil

		default:
			return fmt.Errorf("unknown outcome reason: %q", outcome.Reason)
		}
	}
}

// executeCalls runs each approved call and converts outcomes to history
// items. Rejections and failures are recorded so the model sees them.
func (s *session) executeCalls(ctx context.Context, calls []model.ToolCall) []history.Item {
	var items []history.Item
	for _, call := range calls {
		if !s.approve(call) {
			items = append(items, history.Item{Kind: history.KindToolReject, CallID: call.CallID})
			continue
		}
		output, err := s.runner.Run(ctx, call)
		if err != nil {
			items = append(items, history.Item{Kind: history.KindToolFailed, CallID: call.CallID, Error: err.Error()})
			continue
		}
		items = append(items, history.Item{
			Kind:     history.KindToolOutput,
			CallID:   call.CallID,
			ToolName: call.Name(),
			Content:  output,
		})
	}
	return items
}

// approve asks the user unless auto-approval is on.
func (s *session) approve(call model.ToolCall) bool {
	fmt.Printf("[tool] %s %s\n", call.Name(), string(call.Function.Arguments))
	if s.opts.AutoApprove {
		return true
	}
	fmt.Print("Run it? [y/N] ")
	line, err := s.stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (s *session) printUsage() {
	fmt.Printf("(%d calls, %d in / %d out", s.usage.LLMCalls, s.usage.Input, s.usage.Output)
	if s.usage.Reasoning > 0 {
		fmt.Printf(", %d reasoning", s.usage.Reasoning)
	}
	fmt.Println(" tokens)")
}

// RunTask executes a single task and exits. Tool calls are auto-approved.
func RunTask(ctx context.Context, task string, opts Options) error {
	opts.AutoApprove = true
	s, err := newSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.append(ctx, []history.Item{history.User(task)}); err != nil {
		return err
	}
	if err := s.step(ctx); err != nil {
		return err
	}
	if opts.Verbose {
		s.printUsage()
	}
	return nil
}

// Chat starts an interactive session persisted under a session ID.
func Chat(ctx context.Context, opts Options) error {
	s, err := newSession(ctx, opts, true)
	if err != nil {
		return err
	}
	defer s.close()

	if len(s.log) > 0 {
		fmt.Printf("Resuming session %q (%d items)\n", s.id, len(s.log))
	}
	fmt.Printf("Chatting with %s. Type 'exit' to quit, '/usage' for token totals.\n\n", s.adapter.Model())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return scanner.Err()
		case input == "/usage":
			s.printUsage()
			continue
		}

		if err := s.append(ctx, []history.Item{history.User(input)}); err != nil {
			return err
		}
		if err := s.step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	return scanner.Err()
}

// ListTools prints the built-in tool set.
func ListTools(verbose bool) {
	for _, schema := range tools.Builtin() {
		fmt.Printf("%-12s %s\n", schema.Name, schema.Description)
		if verbose {
			if props, ok := schema.Parameters["properties"].(map[string]any); ok {
				names := make([]string, 0, len(props))
				for name := range props {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("    - %s\n", name)
				}
			}
		}
	}
}

// ListSessions prints the session IDs stored in the database, most recently
// used first.
func ListSessions(ctx context.Context, opts Options) error {
	dbPath := opts.DBPath
	if dbPath == "" {
		if env := os.Getenv("AGENT_HISTORY_PATH"); env != "" {
			dbPath = env
		} else {
			dbPath = config.DefaultHistoryPath()
		}
	}

	store, err := history.OpenStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ids, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
