package template

import (
	"iter"
	"maps"
	"slices"
)

// Variables lists the body of every placeholder in tmpl without resolving
// anything. Object members are visited in key order. The sequence stops with
// an error at the first unclosed placeholder; it can be ranged over any number
// of times.
func Variables(tmpl any) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stack := []any{tmpl}

		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			switch value := current.(type) {
			case map[string]any:
				keys := slices.Sorted(maps.Keys(value))
				for i := len(keys) - 1; i >= 0; i-- {
					stack = append(stack, value[keys[i]])
				}
			case []any:
				for i := len(value) - 1; i >= 0; i-- {
					stack = append(stack, value[i])
				}
			case string:
				if !stringVariables(value, yield) {
					return
				}
			}
		}
	}
}

func stringVariables(s string, yield func(string, error) bool) bool {
	spans, err := placeholderSpans(s)
	if err != nil {
		yield("", err)

		return false
	}

	for _, span := range spans {
		if !yield(span.variable, nil) {
			return false
		}
	}

	return true
}

// ExtractVariables collects Variables into a slice.
func ExtractVariables(tmpl any) ([]string, error) {
	var variables []string

	for variable, err := range Variables(tmpl) {
		if err != nil {
			return nil, err
		}

		variables = append(variables, variable)
	}

	return variables, nil
}
