// Package main provides the weft CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/weftlabs/weft/cli"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "A coding assistant that works inside your repository",
		Long: `A coding assistant driven by an LLM backend of your choice.

The assistant reads, edits, and runs things through a small set of tools,
asking before every tool call unless told otherwise. Conversations persist
in SQLite and can be resumed by session ID.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, anthropic, deepseek, openai-compatible)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show reasoning tokens and diagnostics")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(sessionsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [task]",
		Short: "Execute a single task and exit",
		Long: `Execute a single task and exit. Tool calls are auto-approved, so only
run tasks you trust against the current directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider: provider,
				Verbose:  verbose,
			}
			return cli.RunTask(cmd.Context(), args[0], opts)
		},
	}
}

func chatCmd() *cobra.Command {
	var sessionID string
	var dbPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Each proposed tool call is shown and must
be approved before it runs; pass --yes to approve everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider:    provider,
				Session:     sessionID,
				DBPath:      dbPath,
				AutoApprove: yes,
				Verbose:     verbose,
			}
			return cli.Chat(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path for history storage")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Auto-approve all tool calls")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListTools(verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

func sessionsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListSessions(cmd.Context(), cli.Options{DBPath: dbPath})
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database path for history storage")

	return cmd
}
