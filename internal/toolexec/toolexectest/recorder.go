// Package toolexectest provides a recording toolexec.Runner for tests.
package toolexectest

import (
	"context"
	"sync"

	"github.com/dosanma1/octobuild/internal/toolexec"
)

// Recorder records every command it is asked to run. Handler, when set,
// decides the outcome; otherwise every command succeeds with empty output.
type Recorder struct {
	Handler func(cmd toolexec.Command) (toolexec.Result, error)

	mu       sync.Mutex
	commands []toolexec.Command
}

func (r *Recorder) Run(ctx context.Context, cmd toolexec.Command) (toolexec.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return toolexec.Result{}, err
	}
	if r.Handler != nil {
		return r.Handler(cmd)
	}
	return toolexec.Result{}, nil
}

// Commands returns a copy of the recorded commands in call order.
func (r *Recorder) Commands() []toolexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolexec.Command(nil), r.commands...)
}

// Names returns the tool name of every recorded command.
func (r *Recorder) Names() []string {
	var names []string
	for _, c := range r.Commands() {
		names = append(names, c.Name)
	}
	return names
}
