package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/clinicops/coverage/internal/domain"
)

// Exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitUsage         = 2
	exitInput         = 3
	exitConfiguration = 4
	exitConflict      = 5
)

type usageError string

func (e usageError) Error() string { return string(e) }

func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage):
		return exitUsage
	case domain.IsConfigurationError(err):
		return exitConfiguration
	case domain.IsInputError(err):
		return exitInput
	case errors.Is(err, domain.ErrConflict):
		return exitConflict
	default:
		return exitFailure
	}
}

// reportError prints err for a human and returns the process exit code.
func reportError(w io.Writer, err error) int {
	code := exitCode(err)
	switch code {
	case exitOK:
		return code
	case exitConfiguration:
		fmt.Fprintf(w, "Error: %v\nFlagged for administrator review.\n", err)
	case exitConflict:
		fmt.Fprintf(w, "Error: %v\nRecords are append-only; correct the latest record in the chain instead.\n", err)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return code
}
