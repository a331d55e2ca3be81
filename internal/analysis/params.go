package analysis

import (
	"encoding/json"
	"fmt"
)

// Params is the validated, default-filled parameter map handed to a
// method's compute functions.
type Params map[string]any

// Float returns a numeric parameter.
func (p Params) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// FloatOr returns a numeric parameter or a default.
func (p Params) FloatOr(name string, def float64) float64 {
	if v, ok := p.Float(name); ok {
		return v
	}
	return def
}

// Int returns an integer parameter (json numbers are accepted).
func (p Params) Int(name string) (int, bool) {
	f, ok := p.Float(name)
	return int(f), ok
}

// IntOr returns an integer parameter or a default.
func (p Params) IntOr(name string, def int) int {
	if v, ok := p.Int(name); ok {
		return v
	}
	return def
}

// String returns a string parameter.
func (p Params) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok
}

// StringOr returns a string parameter or a default.
func (p Params) StringOr(name, def string) string {
	if s, ok := p.String(name); ok {
		return s
	}
	return def
}

// Bool returns a boolean parameter, false when absent.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Floats returns an array parameter as float64s.
func (p Params) Floats(name string) ([]float64, bool) {
	v, ok := p[name]
	if !ok {
		return nil, false
	}
	switch arr := v.(type) {
	case []float64:
		return arr, true
	case []any:
		out := make([]float64, 0, len(arr))
		for _, el := range arr {
			f, ok := Params{"v": el}.Float("v")
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

// Strings returns an array parameter as strings.
func (p Params) Strings(name string) ([]string, bool) {
	v, ok := p[name]
	if !ok {
		return nil, false
	}
	switch arr := v.(type) {
	case []string:
		return arr, true
	case []any:
		out := make([]string, 0, len(arr))
		for _, el := range arr {
			s, ok := el.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// ParamSpec declares one parameter of a method schema.
type ParamSpec struct {
	Type         string   // "number", "integer", "string", "boolean", "array"
	Items        string   // element type for arrays
	Required     bool
	Default      any      // applied before execution when absent
	Minimum      *float64
	Maximum      *float64
	ExclusiveMin bool
	Enum         []string
	FieldRef     bool     // value names a dataset attribute column
	Description  string
}

// ParamSchema is a method's declared parameter schema.
type ParamSchema map[string]ParamSpec

// Float64Ptr is a convenience for schema bounds.
func Float64Ptr(v float64) *float64 { return &v }

// JSONSchema compiles the declared schema into a draft-07 JSON Schema
// document suitable for gojsonschema.
func (s ParamSchema) JSONSchema() (string, error) {
	properties := make(map[string]any, len(s))
	var required []string
	for name, spec := range s {
		prop := map[string]any{"type": spec.Type}
		if spec.Type == "array" && spec.Items != "" {
			prop["items"] = map[string]any{"type": spec.Items}
		}
		if spec.Minimum != nil {
			if spec.ExclusiveMin {
				prop["exclusiveMinimum"] = *spec.Minimum
			} else {
				prop["minimum"] = *spec.Minimum
			}
		}
		if spec.Maximum != nil {
			prop["maximum"] = *spec.Maximum
		}
		if len(spec.Enum) > 0 {
			prop["enum"] = spec.Enum
		}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		properties[name] = prop
		if spec.Required {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal parameter schema: %w", err)
	}
	return string(raw), nil
}

// ApplyDefaults returns a copy of raw with declared defaults filled in
// for absent parameters. The input map is never modified.
func (s ParamSchema) ApplyDefaults(raw map[string]any) Params {
	out := make(Params, len(raw)+len(s))
	for k, v := range raw {
		out[k] = v
	}
	for name, spec := range s {
		if _, ok := out[name]; !ok && spec.Default != nil {
			out[name] = spec.Default
		}
	}
	return out
}
