package nodetype

import (
	"encoding/json"
	"fmt"
)

// Primitive input type names that the editor renders as widgets.
const (
	TypeInt     = "INT"
	TypeFloat   = "FLOAT"
	TypeString  = "STRING"
	TypeBoolean = "BOOLEAN"
	TypeCombo   = "COMBO"
)

// InputSpec is one decoded input descriptor.
type InputSpec struct {
	Name string
	// Type is the declared type name. It is TypeCombo for choice inputs
	// regardless of which wire shape was used.
	Type string
	// Choices holds the allowed values of a choice input.
	Choices []any
	// Options is the optional second descriptor element (default, min, max...).
	Options map[string]any
}

// IsChoice reports whether the input is a choice (enum) input.
func (s InputSpec) IsChoice() bool {
	return s.Type == TypeCombo
}

// IsWidget reports whether the editor builds a widget for this input.
// Link-only inputs (MODEL, LATENT...) and primitives marked forceInput do not
// get one.
func (s InputSpec) IsWidget() bool {
	switch s.Type {
	case TypeInt, TypeFloat, TypeString, TypeBoolean, TypeCombo:
		if force, ok := s.Options["forceInput"].(bool); ok && force {
			return false
		}
		return true
	}
	return false
}

// Default returns the descriptor's default value, falling back to the first
// choice for choice inputs.
func (s InputSpec) Default() any {
	if v, ok := s.Options["default"]; ok {
		return v
	}
	if s.IsChoice() && len(s.Choices) > 0 {
		return s.Choices[0]
	}
	return nil
}

// UnmarshalJSON decodes the [typeOrChoices, options?] descriptor array.
// Hidden inputs use a bare type name string.
func (s *InputSpec) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		s.Type = bare
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("input descriptor must be an array: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("input descriptor is empty")
	}

	if len(parts) > 1 {
		if err := json.Unmarshal(parts[1], &s.Options); err != nil {
			return fmt.Errorf("input options must be an object: %w", err)
		}
	}

	var typeName string
	if err := json.Unmarshal(parts[0], &typeName); err == nil {
		s.Type = typeName
		if typeName == TypeCombo {
			if opts, ok := s.Options["options"].([]any); ok {
				s.Choices = opts
			}
		}
		return nil
	}

	var choices []any
	if err := json.Unmarshal(parts[0], &choices); err != nil {
		return fmt.Errorf("input descriptor head must be a type name or a choice list: %w", err)
	}
	s.Type = TypeCombo
	s.Choices = choices
	return nil
}

// MarshalJSON encodes the descriptor back into its wire array. Choice lists
// that arrived inside options stay there.
func (s InputSpec) MarshalJSON() ([]byte, error) {
	var head any = s.Type
	if s.IsChoice() {
		if _, inOptions := s.Options["options"]; !inOptions {
			head = s.Choices
			if s.Choices == nil {
				head = []any{}
			}
		}
	}
	if len(s.Options) == 0 {
		return json.Marshal([]any{head})
	}
	return json.Marshal([]any{head, s.Options})
}
