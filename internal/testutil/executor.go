package testutil

import (
	"context"
	"sync"

	"github.com/schaermu/resha/internal/executor"
)

// FakeExecutor implements executor.Executor without spawning processes.
// Run, when set, is called for every command and decides the outcome.
type FakeExecutor struct {
	Run func(cmd executor.Command) error

	mu    sync.Mutex
	calls []executor.Command
}

// Execute records cmd and delegates to Run
func (f *FakeExecutor) Execute(_ context.Context, cmd executor.Command) (*executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.Run != nil {
		if err := f.Run(cmd); err != nil {
			return nil, err
		}
	}
	return &executor.Result{}, nil
}

// Calls returns the commands executed so far, in order
func (f *FakeExecutor) Calls() []executor.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Command(nil), f.calls...)
}

// Scripts returns the script text of each executed command
func (f *FakeExecutor) Scripts() []string {
	calls := f.Calls()
	scripts := make([]string, 0, len(calls))
	for _, c := range calls {
		scripts = append(scripts, c.Script)
	}
	return scripts
}
