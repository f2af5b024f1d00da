package nodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cesilk/comfy-nodes/internal/tensor"
)

var (
	ErrMissingInput = errors.New("required input is missing")
	ErrInputType    = errors.New("input has the wrong type")
)

// Inputs are the resolved values of a node's inputs: literals from the prompt,
// upstream outputs for linked inputs and hidden values injected by the executor.
type Inputs map[string]any

type ValidationError struct {
	Input   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Input, e.Message)
}

func (in Inputs) Value(name string) (any, bool) {
	v, ok := in[name]
	return v, ok && v != nil
}

func (in Inputs) String(name string) (string, error) {
	v, ok := in.Value(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingInput, name)
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrInputType, name, v)
	}
	return s, nil
}

func (in Inputs) Bool(name string) (bool, error) {
	v, ok := in.Value(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingInput, name)
	}

	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrInputType, name, v)
	}
	return b, nil
}

func (in Inputs) Int(name string) (int, error) {
	v, ok := in.Value(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingInput, name)
	}

	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %v, want integer", ErrInputType, name, v)
	}
	return n, nil
}

func (in Inputs) Images(name string) (tensor.Batch, error) {
	v, ok := in.Value(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, name)
	}

	switch images := v.(type) {
	case tensor.Batch:
		return images, nil
	case []*tensor.Image:
		return images, nil
	case *tensor.Image:
		return tensor.Batch{images}, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want IMAGE", ErrInputType, name, v)
	}
}

// Map returns a JSON-like object input such as the hidden extra_pnginfo.
func (in Inputs) Map(name string) (map[string]any, bool) {
	v, ok := in.Value(name)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// ApplyDefaults fills missing required and optional literals from the schema.
func ApplyDefaults(def *Definition, in Inputs) {
	for _, group := range [][]Input{def.Required, def.Optional} {
		for _, input := range group {
			if _, ok := in[input.Name]; !ok && input.Default != nil {
				in[input.Name] = input.Default
			}
		}
	}
}

// Validate checks literal values against the schema the way the host does before
// running a node: presence, combo membership and integer ranges. Values coming
// from links are only checked for presence.
func Validate(def *Definition, in Inputs) []error {
	var errs []error
	for _, input := range def.Required {
		v, ok := in.Value(input.Name)
		if !ok {
			errs = append(errs, &ValidationError{Input: input.Name, Message: "required input is missing"})
			continue
		}
		if err := validateValue(input, v); err != nil {
			errs = append(errs, err)
		}
	}

	for _, input := range def.Optional {
		if v, ok := in.Value(input.Name); ok {
			if err := validateValue(input, v); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}

func validateValue(input Input, v any) error {
	if len(input.Options) > 0 {
		s, ok := v.(string)
		if !ok || !slices.Contains(input.Options, s) {
			return &ValidationError{Input: input.Name, Message: fmt.Sprintf("value %v not in list", v)}
		}
		return nil
	}

	switch input.Type {
	case IntType:
		n, ok := asInt(v)
		if !ok {
			return &ValidationError{Input: input.Name, Message: fmt.Sprintf("invalid integer %v", v)}
		}
		if input.Min != nil && n < *input.Min {
			return &ValidationError{Input: input.Name, Message: fmt.Sprintf("value %d smaller than min of %d", n, *input.Min)}
		}
		if input.Max != nil && n > *input.Max {
			return &ValidationError{Input: input.Name, Message: fmt.Sprintf("value %d bigger than max of %d", n, *input.Max)}
		}
	case StringType:
		if _, ok := v.(string); !ok {
			return &ValidationError{Input: input.Name, Message: fmt.Sprintf("invalid string %v", v)}
		}
	case BoolType:
		if _, ok := v.(bool); !ok {
			return &ValidationError{Input: input.Name, Message: fmt.Sprintf("invalid boolean %v", v)}
		}
	}

	return nil
}
