package dispatcher

import (
	"errors"
	"fmt"
)

// ErrHandlerPanic indicates a handler that panicked instead of returning an error.
var ErrHandlerPanic = errors.New("handler panicked")

// TaskError is the normalized failure of one task execution.
type TaskError struct {
	TaskID  string
	Message string
	Err     error
}

func newTaskError(taskID string, err error) *TaskError {
	return &TaskError{TaskID: taskID, Message: err.Error(), Err: err}
}

func (e *TaskError) Error() string {
	return e.Message
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Value is the JSON result recorded for the failed task.
func (e *TaskError) Value() map[string]any {
	return map[string]any{"error": e.Message}
}

// IsTaskError checks if an error is a normalized task failure.
func IsTaskError(err error) bool {
	var taskErr *TaskError

	return errors.As(err, &taskErr)
}

func recoveredError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}

	return fmt.Errorf("%w: %v", ErrHandlerPanic, recovered)
}
