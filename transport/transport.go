// Package transport provides the file and shell access boundary.
//
// The core validates tool calls and drives autofix flows through this
// interface; it never touches the filesystem or spawns processes directly.
// Implementations may target the local machine or a containerized sandbox.
package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Error wraps any transport-level failure so callers can distinguish the
// boundary that failed from the operation that was attempted.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport is the execution-environment collaborator. Every operation is
// cancellation-aware and may fail with a *Error.
type Transport interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	PathExists(ctx context.Context, path string) (bool, error)
	Shell(ctx context.Context, command string) (string, error)
}

// Local implements Transport against the local machine.
type Local struct{}

// NewLocal creates a local transport.
func NewLocal() *Local {
	return &Local{}
}

// ReadFile reads a file's content.
func (l *Local) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Op: "read " + path, Err: err}
	}
	return string(data), nil
}

// WriteFile writes content to a file, creating it if necessary.
func (l *Local) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return &Error{Op: "write " + path, Err: err}
	}
	return nil
}

// PathExists reports whether a path exists.
func (l *Local) PathExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &Error{Op: "stat " + path, Err: err}
}

// Shell executes a command via sh -c and returns combined output.
func (l *Local) Shell(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return strings.TrimSpace(string(out)), ctx.Err()
		}
		return strings.TrimSpace(string(out)), &Error{Op: "shell", Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// Verify Local implements Transport
var _ Transport = (*Local)(nil)
