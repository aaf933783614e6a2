package target

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dosanma1/octobuild/internal/logfields"
)

// Status is the outcome of one target in a run.
type Status string

const (
	StatusExecuted  Status = "executed"
	StatusSkipped   Status = "skipped"
	StatusSatisfied Status = "satisfied"
	StatusFailed    Status = "failed"
	StatusNotRun    Status = "not-run"
)

// Result records what happened to one target.
type Result struct {
	Target   string
	Status   Status
	Duration time.Duration
	Err      error
}

// Report lists the results of a run in plan order.
type Report struct {
	Goal    string
	Results []Result
}

// Status returns the status of the named target, or "" when it was not part of the run.
func (r *Report) Status(name string) Status {
	for _, res := range r.Results {
		if res.Target == name {
			return res.Status
		}
	}
	return ""
}

// Executed returns the names of the targets whose action ran successfully.
func (r *Report) Executed() []string {
	var names []string
	for _, res := range r.Results {
		if res.Status == StatusExecuted {
			names = append(names, res.Target)
		}
	}
	return names
}

// Print writes a one-line-per-target summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\n%-24s %-10s %s\n", "Target", "Status", "Duration")
	for _, res := range r.Results {
		d := "-"
		if res.Status == StatusExecuted || res.Status == StatusFailed {
			d = res.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%-24s %-10s %s\n", res.Target, res.Status, d)
	}
}

// Executor runs targets of a graph.
type Executor struct {
	graph  *Graph
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor for g.
func NewExecutor(g *Graph, opts ...Option) *Executor {
	e := &Executor{graph: g, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the closure of goal. Targets listed in satisfied are not
// executed; those within the closure are reported as satisfied. The report is returned even
// when the run fails.
func (e *Executor) Run(ctx context.Context, goal string, satisfied ...string) (*Report, error) {
	plan, err := e.graph.Plan(goal, satisfied...)
	if err != nil {
		return nil, err
	}

	report := &Report{Goal: goal}
	closure := e.graph.reachable(goal)
	for _, name := range satisfied {
		if !closure[name] || report.Status(name) != "" {
			continue
		}
		report.Results = append(report.Results, Result{Target: name, Status: StatusSatisfied})
	}

	for i, name := range plan {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, notRun(plan[i:])...)
			return report, err
		}

		res := e.runOne(ctx, e.graph.targets[name])
		report.Results = append(report.Results, res)
		if res.Status == StatusFailed {
			report.Results = append(report.Results, notRun(plan[i+1:])...)
			return report, &TargetError{Target: name, Err: res.Err}
		}
	}
	return report, nil
}

func (e *Executor) runOne(ctx context.Context, t *Target) Result {
	log := e.logger.With(logfields.Target(t.Name))

	if t.Condition != nil && !t.Condition() {
		log.Info("Skipping target, condition not met")
		return Result{Target: t.Name, Status: StatusSkipped}
	}

	log.Info("Running target")
	start := e.now()
	var err error
	if t.Action != nil {
		err = t.Action(ctx)
	}
	res := Result{Target: t.Name, Status: StatusExecuted, Duration: e.now().Sub(start)}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		log.Error("Target failed", logfields.Duration(res.Duration), logfields.Error(err))
		return res
	}
	log.Info("Target finished", logfields.Duration(res.Duration))
	return res
}

func notRun(names []string) []Result {
	results := make([]Result, 0, len(names))
	for _, n := range names {
		results = append(results, Result{Target: n, Status: StatusNotRun})
	}
	return results
}
