package fit

import (
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching. Each matches any error of its type.
var (
	ErrDegenerateInput      = &DegenerateInputError{}
	ErrNonConvergence       = &NonConvergenceError{}
	ErrInvalidConfiguration = &InvalidConfigurationError{}
)

// DegenerateInputError reports control-point data that cannot produce a
// defined score, e.g. every point at the same distance from the center.
type DegenerateInputError struct {
	Reason string
}

func (e *DegenerateInputError) Error() string {
	if e.Reason == "" {
		return "degenerate input"
	}
	return "degenerate input: " + e.Reason
}

func (e *DegenerateInputError) Is(target error) bool {
	_, ok := target.(*DegenerateInputError)
	return ok
}

// InvalidConfigurationError reports a malformed optimizer configuration or
// mismatched input columns.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return "invalid configuration: " + e.Field + " " + e.Reason
}

func (e *InvalidConfigurationError) Is(target error) bool {
	_, ok := target.(*InvalidConfigurationError)
	return ok
}

// NonConvergenceError lists the methods whose search ran out of budget
// before meeting either tolerance. The corresponding results are still
// returned, flagged with Converged=false.
type NonConvergenceError struct {
	Methods []Method
}

func (e *NonConvergenceError) Error() string {
	if len(e.Methods) == 0 {
		return "optimizer did not converge"
	}
	names := make([]string, len(e.Methods))
	for i, m := range e.Methods {
		names[i] = m.String()
	}
	return fmt.Sprintf("optimizer did not converge for %s", strings.Join(names, ", "))
}

func (e *NonConvergenceError) Is(target error) bool {
	_, ok := target.(*NonConvergenceError)
	return ok
}
