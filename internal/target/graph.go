// Package target runs a fixed graph of named build targets.
//
// A target runs after all of its dependencies, at most once per run, and is
// skipped when its condition is false. Skipped targets count as satisfied
// for their dependents. The first failing action stops the run.
package target

import (
	"context"
)

// Action is the body of a target.
type Action func(ctx context.Context) error

// Target is a named build step.
type Target struct {
	Name        string
	Description string
	DependsOn   []string
	// Condition is evaluated right before the target would run. Nil means always.
	Condition func() bool
	Action    Action
}

// Graph is an immutable, validated set of targets.
type Graph struct {
	targets map[string]*Target
	order   []string
}

// NewGraph validates targets and builds the graph. Names must be unique,
// dependencies must exist and the dependency relation must be acyclic.
func NewGraph(targets ...*Target) (*Graph, error) {
	g := &Graph{targets: make(map[string]*Target, len(targets))}
	for _, t := range targets {
		if t == nil || t.Name == "" {
			return nil, invalidf("target name is required")
		}
		if _, dup := g.targets[t.Name]; dup {
			return nil, invalidf("duplicate target %q", t.Name)
		}
		g.targets[t.Name] = t
		g.order = append(g.order, t.Name)
	}

	for _, name := range g.order {
		for _, dep := range g.targets[name].DependsOn {
			if dep == name {
				return nil, cycleError([]string{name, name})
			}
			if _, ok := g.targets[dep]; !ok {
				return nil, invalidf("target %q depends on unknown target %q", name, dep)
			}
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// Target returns the named target.
func (g *Graph) Target(name string) (*Target, bool) {
	t, ok := g.targets[name]
	return t, ok
}

// Names returns the target names in declaration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

const (
	unvisited = iota
	visiting
	visited
)

func (g *Graph) detectCycles() error {
	state := make(map[string]int, len(g.order))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), name)
			return cycleError(path)
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range g.targets[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = visited
		return nil
	}

	for _, name := range g.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Plan returns the closure of goal in execution order: every dependency
// before its dependents, each target once. Dependencies are visited in
// declared order. Targets in satisfied are left out together with anything
// reachable only through them.
func (g *Graph) Plan(goal string, satisfied ...string) ([]string, error) {
	if _, ok := g.targets[goal]; !ok {
		return nil, &GraphError{Kind: ErrUnknownTarget, Msg: goal}
	}
	skip := make(map[string]bool, len(satisfied))
	for _, name := range satisfied {
		if _, ok := g.targets[name]; !ok {
			return nil, &GraphError{Kind: ErrUnknownTarget, Msg: name}
		}
		skip[name] = true
	}

	seen := make(map[string]bool)
	var plan []string
	var visit func(name string)
	visit = func(name string) {
		if seen[name] || skip[name] {
			return
		}
		seen[name] = true
		for _, dep := range g.targets[name].DependsOn {
			visit(dep)
		}
		plan = append(plan, name)
	}
	visit(goal)
	return plan, nil
}

// reachable returns goal and every target it depends on, directly or not.
func (g *Graph) reachable(goal string) map[string]bool {
	out := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if out[name] {
			return
		}
		out[name] = true
		for _, dep := range g.targets[name].DependsOn {
			visit(dep)
		}
	}
	visit(goal)
	return out
}
