package mcppool

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ArgumentError reports model-supplied arguments that do not fit a tool's
// input schema. It matches mcp.ErrInvalidParams under errors.Is, and its
// text is written for the model to act on.
type ArgumentError struct {
	Path   string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Path == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("argument %q %s", e.Path, e.Reason)
}

func (e *ArgumentError) Is(target error) bool {
	return target == mcp.ErrInvalidParams
}

func argErrorf(path, format string, args ...any) error {
	return &ArgumentError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// argSchema is one node of a JSON schema as decoded from a tool listing.
type argSchema map[string]any

func (s argSchema) kind() string {
	if t, ok := s["type"].(string); ok {
		return strings.ToLower(strings.TrimSpace(t))
	}
	if _, ok := s["properties"]; ok {
		return "object"
	}
	return ""
}

func (s argSchema) properties() map[string]any {
	props, _ := s["properties"].(map[string]any)
	return props
}

func (s argSchema) property(name string) (argSchema, bool) {
	p, ok := s.properties()[name].(map[string]any)
	return p, ok
}

// additional reports whether keys outside properties are allowed and the
// schema their values must fit. Absent or true allows any value; false
// forbids extra keys.
func (s argSchema) additional() (bool, argSchema) {
	switch v := s["additionalProperties"].(type) {
	case bool:
		return v, nil
	case map[string]any:
		return true, v
	default:
		return true, nil
	}
}

func (s argSchema) items() argSchema {
	items, _ := s["items"].(map[string]any)
	return items
}

func (s argSchema) required() []string {
	var out []string
	switch v := s["required"].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if name, ok := item.(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}

func (s argSchema) enum() []string {
	values, _ := s["enum"].([]any)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// coerceArgs fits decoded model arguments to a tool's input schema. Key
// spellings the model commonly gets wrong are mapped onto declared
// properties, and scalar values sent as strings are converted to their
// declared types.
func coerceArgs(raw map[string]any, schema map[string]any) (map[string]any, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	if len(schema) == 0 {
		return raw, nil
	}
	s := argSchema(schema)
	if k := s.kind(); k != "" && k != "object" {
		return nil, argErrorf("", "tool input schema must be an object, got %q", k)
	}
	return coerceObject(raw, s, "")
}

func coerceObject(raw map[string]any, s argSchema, path string) (map[string]any, error) {
	props := s.properties()
	extras, extraSchema := s.additional()
	out := make(map[string]any, len(raw))

	for _, key := range slices.Sorted(maps.Keys(raw)) {
		value := raw[key]

		name, negate, ok := matchProperty(props, key)
		propSchema, _ := s.property(name)
		if !ok {
			if !extras {
				return nil, unacceptedError(props, joinPath(path, key))
			}
			name, propSchema = key, extraSchema
		}
		if _, dup := out[name]; dup {
			return nil, argErrorf(joinPath(path, key), "conflicts with %q", joinPath(path, name))
		}

		coerced, err := coerceValue(value, propSchema, joinPath(path, name))
		if err != nil {
			return nil, err
		}
		if negate {
			b, isBool := coerced.(bool)
			if !isBool {
				return nil, typeError(joinPath(path, key), "boolean", value)
			}
			coerced = !b
		}
		out[name] = coerced
	}

	for _, name := range s.required() {
		if _, ok := out[name]; !ok {
			return nil, argErrorf(joinPath(path, name), "is required")
		}
	}
	return out, nil
}

func unacceptedError(props map[string]any, path string) error {
	if len(props) == 0 {
		return argErrorf(path, "is not accepted; the tool takes no arguments")
	}
	return argErrorf(path, "is not accepted; expected one of %s",
		strings.Join(slices.Sorted(maps.Keys(props)), ", "))
}

// matchProperty finds the declared property a model-supplied key refers to.
// Exact names win, then "no-" negations of boolean properties, then a
// unique match ignoring case and the dash/underscore spelling.
func matchProperty(props map[string]any, key string) (name string, negate bool, ok bool) {
	if _, ok := props[key]; ok {
		return key, false, true
	}
	if base, found := strings.CutPrefix(key, "no-"); found && base != "" {
		if p, isMap := props[base].(map[string]any); isMap && argSchema(p).kind() == "boolean" {
			return base, true, true
		}
	}

	want := foldKey(key)
	for candidate := range props {
		if foldKey(candidate) != want {
			continue
		}
		if ok {
			return "", false, false
		}
		name, ok = candidate, true
	}
	return name, false, ok
}

func foldKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

func coerceValue(value any, s argSchema, path string) (any, error) {
	if s == nil || value == nil {
		return value, nil
	}

	switch s.kind() {
	case "string":
		return coerceString(value, s, path)
	case "integer":
		return coerceInteger(value, path)
	case "number":
		f, ok := toFloat(value)
		if !ok {
			return nil, typeError(path, "number", value)
		}
		return f, nil
	case "boolean":
		return coerceBoolean(value, path)
	case "array":
		return coerceArray(value, s, path)
	case "object":
		obj, err := decodeObject(value, path)
		if err != nil {
			return nil, err
		}
		return coerceObject(obj, s, path)
	default:
		return value, nil
	}
}

func coerceString(value any, s argSchema, path string) (string, error) {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case bool, float64, json.Number, int, int64:
		str = fmt.Sprint(v)
	default:
		return "", typeError(path, "string", value)
	}

	if allowed := s.enum(); len(allowed) > 0 && !slices.Contains(allowed, str) {
		return "", argErrorf(path, "must be one of %s, got %q", strings.Join(allowed, ", "), str)
	}
	return str, nil
}

func coerceInteger(value any, path string) (int64, error) {
	if str, ok := value.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64); err == nil {
			return i, nil
		}
	}
	f, ok := toFloat(value)
	if !ok {
		return 0, typeError(path, "integer", value)
	}
	if math.Trunc(f) != f {
		return 0, argErrorf(path, "must be an integer, got %v", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, argErrorf(path, "is out of range for an integer")
	}
	return int64(f), nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceBoolean(value any, path string) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	}
	return false, typeError(path, "boolean", value)
}

func coerceArray(value any, s argSchema, path string) ([]any, error) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case string:
		if trimmed := strings.TrimSpace(v); strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
				return nil, argErrorf(path, "must be a JSON array: %v", err)
			}
		} else {
			items = []any{v}
		}
	default:
		items = []any{v}
	}

	itemSchema := s.items()
	out := make([]any, len(items))
	for i, item := range items {
		coerced, err := coerceValue(item, itemSchema, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

func decodeObject(value any, path string) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &obj); err != nil || obj == nil {
			return nil, argErrorf(path, "must be a JSON object")
		}
		return obj, nil
	default:
		return nil, typeError(path, "object", value)
	}
}

func typeError(path, want string, got any) error {
	return argErrorf(path, "must be %s, got %T", want, got)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
