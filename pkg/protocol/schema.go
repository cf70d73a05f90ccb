package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidInput indicates a rendered task input that does not satisfy the handler schema.
var ErrInvalidInput = errors.New("invalid task input")

// ValidateInput checks input against a JSON schema document.
func ValidateInput(schema map[string]any, input any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(details, "; "))
}
