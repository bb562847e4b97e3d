package nodetype

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// TypeID names a node type. It is the key of the type table.
type TypeID string

var (
	// ErrInvalidJSON is returned when the response body is not a JSON object.
	ErrInvalidJSON = errors.New("response is not a JSON object")
	// ErrMissingDefinition is returned when the body parses but has no entry
	// for the requested type.
	ErrMissingDefinition = errors.New("response has no definition for type")
	// ErrMissingInput is returned when a definition has no input section.
	ErrMissingInput = errors.New("definition has no input section")
)

// Definition is the decoded description of one node type.
type Definition struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	PythonModule string   `json:"python_module"`
	OutputNode   bool     `json:"output_node"`
	Output       []string `json:"output"`
	OutputName   []string `json:"output_name"`
	Input        *Inputs  `json:"input"`
	InputOrder   struct {
		Required []string `json:"required"`
		Optional []string `json:"optional"`
	} `json:"input_order"`
}

// Inputs groups input specs by their section.
type Inputs struct {
	Required map[string]InputSpec `json:"required"`
	Optional map[string]InputSpec `json:"optional"`
	Hidden   map[string]InputSpec `json:"hidden"`
}

// Decode extracts the definition keyed by id from an object_info response
// body.
func Decode(body []byte, id TypeID) (*Definition, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	raw, ok := envelope[string(id)]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w %q", ErrMissingDefinition, id)
	}

	def := &Definition{}
	if err := json.Unmarshal(raw, def); err != nil {
		return nil, fmt.Errorf("%w: definition of %q: %v", ErrInvalidJSON, id, err)
	}
	if def.Input == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingInput, id)
	}
	if def.Name == "" {
		def.Name = string(id)
	}
	for name, spec := range def.Input.Required {
		spec.Name = name
		def.Input.Required[name] = spec
	}
	for name, spec := range def.Input.Optional {
		spec.Name = name
		def.Input.Optional[name] = spec
	}
	for name, spec := range def.Input.Hidden {
		spec.Name = name
		def.Input.Hidden[name] = spec
	}
	return def, nil
}

// Lookup finds a required or optional input by name. Hidden inputs never
// back a widget and are not considered.
func (d *Definition) Lookup(name string) (InputSpec, bool) {
	if d == nil || d.Input == nil {
		return InputSpec{}, false
	}
	if spec, ok := d.Input.Required[name]; ok {
		return spec, true
	}
	spec, ok := d.Input.Optional[name]
	return spec, ok
}

// ChoiceList returns the allowed values of the named input when it is a
// choice input.
func (d *Definition) ChoiceList(name string) ([]any, bool) {
	spec, ok := d.Lookup(name)
	if !ok || !spec.IsChoice() {
		return nil, false
	}
	return spec.Choices, true
}

// WidgetInputs lists the inputs that are edited through a widget, required
// ones first. Order follows input_order when the backend sends it and falls
// back to name order otherwise.
func (d *Definition) WidgetInputs() []InputSpec {
	if d == nil || d.Input == nil {
		return nil
	}
	var specs []InputSpec
	specs = appendOrdered(specs, d.Input.Required, d.InputOrder.Required)
	specs = appendOrdered(specs, d.Input.Optional, d.InputOrder.Optional)
	return specs
}

func appendOrdered(dst []InputSpec, section map[string]InputSpec, order []string) []InputSpec {
	seen := make(map[string]struct{}, len(section))
	for _, name := range order {
		if spec, ok := section[name]; ok && spec.IsWidget() {
			dst = append(dst, spec)
			seen[name] = struct{}{}
		}
	}

	rest := make([]string, 0, len(section))
	for name, spec := range section {
		if _, done := seen[name]; !done && spec.IsWidget() {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		dst = append(dst, section[name])
	}
	return dst
}
