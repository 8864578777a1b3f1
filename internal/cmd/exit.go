package cmd

import (
	"errors"
	"fmt"
)

// SilentExitError signals an exit code without any further output.
// Scripting commands use it when the result was already written to stdout
// and only the exit code needs to carry the verdict, so callers can test
// `mu acquire ... && edit` without parsing our output.
type SilentExitError struct {
	Code int
}

func (e *SilentExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// NewSilentExit returns a SilentExitError carrying code.
func NewSilentExit(code int) error {
	return &SilentExitError{Code: code}
}

// IsSilentExit reports whether err carries a silent exit code.
func IsSilentExit(err error) (int, bool) {
	var se *SilentExitError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
