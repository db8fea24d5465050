// Package schema provides JSON Schema validation for collection payloads.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError describes the first constraint a payload violated.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func fail(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a payload against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil.
//
// Supported JSON Schema keywords:
//   - type (string, number, integer, boolean, object)
//   - properties, required, additionalProperties
//   - minimum, maximum, exclusiveMinimum, exclusiveMaximum
//   - minLength, maxLength
//   - enum
func Validate(schema map[string]any, payload map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateObject(schema, payload, true)
}

// ValidatePartial is Validate without the required check, for the partial
// payload of an update.
func ValidatePartial(schema map[string]any, payload map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateObject(schema, payload, false)
}

func validateObject(schema map[string]any, obj map[string]any, checkRequired bool) error {
	const path = "$"
	if t, ok := schema["type"].(string); ok && t != "object" {
		return fail(path, "expected type %q, got %q", t, "object")
	}

	if checkRequired {
		if reqList, ok := schema["required"].([]any); ok {
			for _, r := range reqList {
				if field, ok := r.(string); ok {
					if _, exists := obj[field]; !exists {
						return fail(path, "missing required field %q", field)
					}
				}
			}
		}
	}

	propsMap, _ := schema["properties"].(map[string]any)

	// Visit fields in a fixed order so the reported error is deterministic.
	fields := make([]string, 0, len(obj))
	for field := range obj {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var extra []string
	for _, field := range fields {
		ps, defined := propsMap[field].(map[string]any)
		if !defined {
			if _, listed := propsMap[field]; !listed {
				extra = append(extra, field)
			}
			continue
		}
		if err := validateValue(ps, obj[field], path+"."+field); err != nil {
			return err
		}
	}

	if ap, ok := schema["additionalProperties"].(bool); ok && !ap && len(extra) > 0 {
		return fail(path, "additional properties not allowed: %s", strings.Join(extra, ", "))
	}
	return nil
}

func validateValue(schema map[string]any, value any, path string) error {
	if ts, ok := schema["type"].(string); ok {
		if err := checkType(ts, value, path); err != nil {
			return err
		}
	}

	if enumList, ok := schema["enum"].([]any); ok {
		if err := checkEnum(enumList, value, path); err != nil {
			return err
		}
	}

	switch v := value.(type) {
	case string:
		return validateString(schema, v, path)
	case float64:
		return validateNumber(schema, v, path)
	case json.Number:
		f, _ := v.Float64()
		return validateNumber(schema, f, path)
	}
	return nil
}

func checkType(expected string, value any, path string) error {
	actual := jsonType(value)
	if expected == "integer" {
		// Accept float64 values that are whole numbers
		if f, ok := value.(float64); ok && f == float64(int64(f)) {
			return nil
		}
		if actual != "integer" {
			return fail(path, "expected type %q, got %q", expected, actual)
		}
		return nil
	}
	if actual != expected {
		// "number" should also accept integer
		if expected == "number" && actual == "integer" {
			return nil
		}
		return fail(path, "expected type %q, got %q", expected, actual)
	}
	return nil
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case int, int64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

// checkEnum compares numbers by value, since YAML-loaded schemas hold ints
// while payloads hold float64.
func checkEnum(allowed []any, value any, path string) error {
	vf, vNum := toFloat(value)
	for _, a := range allowed {
		if af, aNum := toFloat(a); aNum && vNum {
			if af == vf {
				return nil
			}
			continue
		}
		if reflect.DeepEqual(a, value) {
			return nil
		}
	}
	return fail(path, "value not in enum %v", allowed)
}

func validateString(schema map[string]any, s string, path string) error {
	if v, ok := toFloat(schema["minLength"]); ok {
		if float64(len(s)) < v {
			return fail(path, "string length %d is less than minLength %v", len(s), v)
		}
	}
	if v, ok := toFloat(schema["maxLength"]); ok {
		if float64(len(s)) > v {
			return fail(path, "string length %d is greater than maxLength %v", len(s), v)
		}
	}
	return nil
}

func validateNumber(schema map[string]any, n float64, path string) error {
	if v, ok := toFloat(schema["minimum"]); ok {
		if n < v {
			return fail(path, "%v is less than minimum %v", n, v)
		}
	}
	if v, ok := toFloat(schema["maximum"]); ok {
		if n > v {
			return fail(path, "%v is greater than maximum %v", n, v)
		}
	}
	if v, ok := toFloat(schema["exclusiveMinimum"]); ok {
		if n <= v {
			return fail(path, "%v is not greater than exclusiveMinimum %v", n, v)
		}
	}
	if v, ok := toFloat(schema["exclusiveMaximum"]); ok {
		if n >= v {
			return fail(path, "%v is not less than exclusiveMaximum %v", n, v)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
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
