package template

import (
	"errors"
	"fmt"
)

var (
	// ErrUnclosedVariable indicates an opening delimiter without a matching closing one.
	ErrUnclosedVariable = errors.New("unclosed template variable")

	// ErrVariableNotFound indicates a placeholder path that does not resolve against the context.
	ErrVariableNotFound = errors.New("variable not found in context")

	// ErrTemplateNotFound indicates a named template that was never registered.
	ErrTemplateNotFound = errors.New("template not found")
)

// TemplateError describes a failure to render or inspect a template.
type TemplateError struct {
	Message  string
	Variable string

	kind error
}

func newTemplateError(kind error, variable string) *TemplateError {
	return &TemplateError{
		Message:  kind.Error(),
		Variable: variable,
		kind:     kind,
	}
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error for variable '%s': %s", e.Variable, e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.kind
}

// IsVariableNotFound checks if an error is caused by an unresolved placeholder.
func IsVariableNotFound(err error) bool {
	return errors.Is(err, ErrVariableNotFound)
}

// IsUnclosedVariable checks if an error is caused by a missing closing delimiter.
func IsUnclosedVariable(err error) bool {
	return errors.Is(err, ErrUnclosedVariable)
}
