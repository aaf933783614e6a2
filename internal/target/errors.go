package target

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph  = errors.New("invalid target graph")
	ErrCycle         = errors.New("dependency cycle")
	ErrUnknownTarget = errors.New("unknown target")
)

// GraphError reports a graph that cannot be built or planned.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	return &GraphError{Kind: ErrCycle, Msg: strings.Join(path, " -> ")}
}

// TargetError is returned by Run when a target's action fails.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %q failed: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }
