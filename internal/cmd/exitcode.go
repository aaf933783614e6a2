package cmd

import (
	"errors"

	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/target"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	ExitTarget  = 3
)

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var te *target.TargetError
	if errors.As(err, &te) {
		return ExitTarget
	}

	var ve *config.ValidationError
	if errors.As(err, &ve) ||
		errors.Is(err, target.ErrUnknownTarget) ||
		errors.Is(err, target.ErrInvalidGraph) ||
		errors.Is(err, target.ErrCycle) {
		return ExitUsage
	}
	return ExitFailure
}
