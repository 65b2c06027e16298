package agent

import (
	"errors"
	"fmt"
)

// ErrorPrefix marks a failed run in entry point results.
const ErrorPrefix = "Error: "

// IncompletePrefix marks a run that used its whole round budget.
const IncompletePrefix = "Incomplete: "

var (
	// ErrRoundsExhausted is reported by Outcome.Err when no final answer
	// arrived within the round budget.
	ErrRoundsExhausted = errors.New("maximum rounds reached without a final answer")

	// ErrUnexpectedFormat is returned when the last round's response had
	// neither function calls nor a message.
	ErrUnexpectedFormat = errors.New("backend response had neither function calls nor a message")
)

// ToolExecutionError is a failed tool call. It is rendered into the result
// text for the model and never ends a run.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
