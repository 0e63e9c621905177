// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package template materializes a parameterized workflow template into a
// concrete domain.WorkflowDefinition: validate the caller's parameter map
// against typed parameter definitions, merge in defaults, substitute
// {{param}} placeholders through the canonicalized template body, then
// parse the result back into a workflow definition.
package template

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/skeinhq/skein/internal/domain"
	"github.com/skeinhq/skein/internal/dynamictask"
	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// ParamType is a template parameter's declared value type.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ParamValidation holds the optional range/enum constraints spec.md §4.10
// names alongside type and required/default.
type ParamValidation struct {
	Min  *float64 `yaml:"min,omitempty"`
	Max  *float64 `yaml:"max,omitempty"`
	Enum []any    `yaml:"enum,omitempty"`
}

// ParamDefinition declares one template parameter's type, default,
// required flag, and validation constraints.
type ParamDefinition struct {
	Type       ParamType        `yaml:"type"`
	Default    any              `yaml:"default,omitempty"`
	Required   bool             `yaml:"required,omitempty"`
	Validation *ParamValidation `yaml:"validation,omitempty"`
}

// Template is a parameterized workflow body: Body is the canonical
// workflow definition shape with {{param}} placeholders in place of
// literal values, resolved by Instantiate.
type Template struct {
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description,omitempty"`
	Parameters  map[string]ParamDefinition `yaml:"parameters,omitempty"`
	Body        map[string]any             `yaml:"body"`
}

// Parse reads a Template from its on-disk YAML form.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	return &t, nil
}

// Validate checks params against t.Parameters — every required parameter
// present, every value's declared type matched, every min/max/enum
// constraint satisfied — and returns params merged with defaults for any
// parameter the caller omitted. An unrecognized key in params is itself a
// validation failure: templates don't silently ignore stray input.
func (t *Template) Validate(params map[string]any) (map[string]any, error) {
	for name := range params {
		if _, known := t.Parameters[name]; !known {
			return nil, &skeinerrors.ValidationError{Field: name, Message: "unknown template parameter"}
		}
	}

	merged := make(map[string]any, len(t.Parameters))
	for name, def := range t.Parameters {
		value, present := params[name]
		if !present {
			if def.Required {
				return nil, &skeinerrors.ValidationError{Field: name, Message: "required parameter missing"}
			}
			if def.Default == nil {
				continue
			}
			value = def.Default
		}

		typed, err := coerce(name, def.Type, value)
		if err != nil {
			return nil, err
		}
		if err := checkValidation(name, def.Validation, typed); err != nil {
			return nil, err
		}
		merged[name] = typed
	}
	return merged, nil
}

// Instantiate validates params, merges defaults, interpolates every
// {{param}} placeholder in t.Body, and parses the result into a
// domain.WorkflowDefinition. Interpolation is delegated to
// internal/dynamictask.InterpolateTemplate — the same quoted/bare
// placeholder substitution a dynamic task group's per-item template uses,
// since both components resolve "{{name}}" against a flat value map and
// must preserve non-string types through the substitution.
func (t *Template) Instantiate(params map[string]any) (*domain.WorkflowDefinition, error) {
	merged, err := t.Validate(params)
	if err != nil {
		return nil, err
	}

	instantiated, err := dynamictask.InterpolateTemplate(t.Body, merged)
	if err != nil {
		return nil, fmt.Errorf("instantiating template %q: %w", t.Name, err)
	}

	raw, err := json.Marshal(instantiated)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing instantiated body: %w", err)
	}
	var def domain.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing instantiated template into workflow definition: %w", err)
	}
	if def.Name == "" {
		def.Name = t.Name
	}
	return &def, nil
}

func coerce(name string, typ ParamType, value any) (any, error) {
	switch typ {
	case ParamString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case ParamInteger:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
		}
	case ParamFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
	case ParamBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case ParamArray:
		if arr, ok := value.([]any); ok {
			return arr, nil
		}
	case ParamObject:
		if obj, ok := value.(map[string]any); ok {
			return obj, nil
		}
	default:
		return nil, &skeinerrors.ValidationError{Field: name, Message: fmt.Sprintf("unknown parameter type %q", typ)}
	}
	return nil, &skeinerrors.ValidationError{Field: name, Message: fmt.Sprintf("expected type %s, got %T", typ, value)}
}

func checkValidation(name string, v *ParamValidation, value any) error {
	if v == nil {
		return nil
	}

	if v.Min != nil || v.Max != nil {
		if num, ok := toFloat(value); ok {
			if v.Min != nil && num < *v.Min {
				return &skeinerrors.ValidationError{Field: name, Message: fmt.Sprintf("value %v below minimum %v", value, *v.Min)}
			}
			if v.Max != nil && num > *v.Max {
				return &skeinerrors.ValidationError{Field: name, Message: fmt.Sprintf("value %v above maximum %v", value, *v.Max)}
			}
		}
	}

	if len(v.Enum) > 0 {
		match := false
		for _, allowed := range v.Enum {
			if jsonEqual(allowed, value) {
				match = true
				break
			}
		}
		if !match {
			return &skeinerrors.ValidationError{Field: name, Message: fmt.Sprintf("value %v not in allowed set %v", value, v.Enum)}
		}
	}

	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func jsonEqual(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}
