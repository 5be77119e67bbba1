// Package executor runs entry commands as shell scripts.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command is a script to run and the context it runs in
type Command struct {
	Script string
	Dir    string
	// Env is appended to the ambient environment
	Env []string
}

// Result holds the outcome of a successful run
type Result struct {
	Output   []byte
	Duration time.Duration
}

// Executor runs commands to completion
type Executor interface {
	// Execute runs cmd and returns an *ExecutionError unless it exits zero
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// ExecutionError reports a command that exited non-zero or failed to start
type ExecutionError struct {
	// ExitCode is -1 when the process never ran to completion
	ExitCode int
	Output   []byte
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("command failed to run: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Shell implements Executor by running scripts through a shell
type Shell struct {
	// Path is the shell binary, invoked as "<Path> -c <script>"
	Path string
	// Trace echoes each command before it runs (set -x)
	Trace bool
	// Stream receives output as it is produced; nil discards it. Output is
	// captured in the result either way.
	Stream io.Writer
	// WaitDelay bounds how long Execute waits for output pipes to close
	// after the shell exits or is killed. Background processes started by
	// the script would otherwise hold them open.
	WaitDelay time.Duration
}

// DefaultWaitDelay is the WaitDelay set by NewShell
const DefaultWaitDelay = 5 * time.Second

// NewShell creates a shell executor, preferring bash and falling back to sh
func NewShell(stream io.Writer, trace bool) *Shell {
	path := "bash"
	if _, err := exec.LookPath(path); err != nil {
		path = "sh"
	}
	return &Shell{Path: path, Trace: trace, Stream: stream, WaitDelay: DefaultWaitDelay}
}

// Execute runs the script with errexit set, stderr merged into stdout
func (s *Shell) Execute(ctx context.Context, cmd Command) (*Result, error) {
	opts := "set -e"
	if s.Trace {
		opts = "set -ex"
	}
	script := opts + "\n" + cmd.Script

	c := exec.CommandContext(ctx, s.Path, "-c", script)
	c.Dir = cmd.Dir
	c.WaitDelay = s.WaitDelay
	c.Env = append(os.Environ(), cmd.Env...)

	var captured bytes.Buffer
	var out io.Writer = &captured
	if s.Stream != nil {
		out = io.MultiWriter(&captured, s.Stream)
	}
	c.Stdout = out
	c.Stderr = out

	start := time.Now()
	err := c.Run()
	duration := time.Since(start)

	if err != nil {
		execErr := &ExecutionError{ExitCode: -1, Output: captured.Bytes(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.Exited() {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return nil, execErr
	}

	return &Result{Output: captured.Bytes(), Duration: duration}, nil
}

// ListEnv formats a path list for the command environment, one per line
func ListEnv(name string, paths []string) string {
	return name + "=" + strings.Join(paths, "\n")
}
