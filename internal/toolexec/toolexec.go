// Package toolexec runs the external tools the build delegates to
// (dotnet, nuget, signtool, azuresigntool, octoversion).
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/dosanma1/octobuild/internal/logfields"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current process environment.
	Env []string
	// Secrets are masked wherever the command line or tool output is logged
	// or reported.
	Secrets []string
}

// String renders the command line. Arguments equal to a secret are masked
// as a whole; other arguments are left intact.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if c.isSecret(a) {
			a = mask
		}
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func (c Command) isSecret(arg string) bool {
	for _, secret := range c.Secrets {
		if secret != "" && arg == secret {
			return true
		}
	}
	return false
}

// Result carries the captured standard output of a finished process.
type Result struct {
	Stdout string
}

// Runner runs external processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Executor is the os/exec backed Runner. Standard output is captured and
// logged at debug level; standard error lines are logged as warnings.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor logging through logger (slog.Default when nil).
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Run executes cmd and waits for it to exit.
func (e *Executor) Run(ctx context.Context, cmd Command) (Result, error) {
	log := e.logger.With(logfields.Tool(cmd.Name))
	log.Info("Running tool", slog.String("command", cmd.String()))

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	outLines := &lineWriter{emit: func(line string) {
		log.Debug(Redact(line, cmd.Secrets))
	}}
	errLines := &lineWriter{emit: func(line string) {
		log.Warn(Redact(line, cmd.Secrets))
	}}
	c.Stdout = &teeWriter{buf: &stdout, lines: outLines}
	c.Stderr = &teeWriter{buf: &stderr, lines: errLines}

	err := c.Run()
	outLines.flush()
	errLines.flush()

	res := Result{Stdout: stdout.String()}
	if err != nil {
		return res, newToolError(cmd, err, stdout.String(), stderr.String())
	}
	return res, nil
}

// ToolError reports a tool that could not be started or exited non-zero.
type ToolError struct {
	Tool     string
	Command  string
	ExitCode int
	// Stderr holds the tail of the tool's standard error, or its error
	// lines from standard output when standard error was empty.
	Stderr string
	Hint   string
	Err    error
}

func newToolError(cmd Command, err error, stdout, stderr string) *ToolError {
	detail := tail(stderr, 20)
	if detail == "" {
		detail = strings.Join(errorLines(stdout, 5), "\n")
	}
	te := &ToolError{
		Tool:     cmd.Name,
		Command:  cmd.String(),
		ExitCode: -1,
		Stderr:   Redact(detail, cmd.Secrets),
		Hint:     Hint(cmd.Name, stdout+"\n"+stderr, err),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	return te
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

const mask = "****"

// Redact replaces every occurrence of the given secrets in free-form tool
// output.
func Redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// tail keeps the last n non-empty lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type teeWriter struct {
	buf   *bytes.Buffer
	lines *lineWriter
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.lines.Write(p)
}

// lineWriter splits a byte stream into lines.
type lineWriter struct {
	pending []byte
	emit    func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emitLine(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.emitLine(w.pending)
		w.pending = nil
	}
}

func (w *lineWriter) emitLine(b []byte) {
	line := strings.TrimRight(string(b), "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.emit(line)
}
