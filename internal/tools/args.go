package tools

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

var (
	prStates        = []string{"OPEN", "DECLINED", "MERGED", "ALL"}
	mergeStrategies = []string{"merge-commit", "squash", "fast-forward"}
	lineTypes       = []string{"CONTEXT", "ADDED", "REMOVED"}
	diffTypes       = []string{"COMMIT", "RANGE", "EFFECTIVE"}
	fileTypes       = []string{"FROM", "TO"}
)

// args is the untyped argument bag of a tools/call request. Field probing
// happens only through these accessors, inside the validators.
// A key holding JSON null counts as absent.
type args map[string]any

func (a args) has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a args) requiredString(key string) (string, error) {
	if !a.has(key) {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := a[key].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

func (a args) optionalString(key string) (*string, error) {
	if !a.has(key) {
		return nil, nil
	}
	s, ok := a[key].(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &s, nil
}

func (a args) optionalEnum(key string, allowed []string) (*string, error) {
	s, err := a.optionalString(key)
	if err != nil || s == nil {
		return s, err
	}
	if !slices.Contains(allowed, *s) {
		return nil, fmt.Errorf("%s must be one of %s", key, strings.Join(allowed, ", "))
	}
	return s, nil
}

func (a args) requiredNumber(key string) (float64, error) {
	if !a.has(key) {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, ok := toNumber(a[key])
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}

func (a args) optionalNumber(key string) (*float64, error) {
	if !a.has(key) {
		return nil, nil
	}
	n, ok := toNumber(a[key])
	if !ok {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &n, nil
}

func (a args) requiredInt(key string) (int64, error) {
	n, err := a.requiredNumber(key)
	return int64(n), err
}

func (a args) optionalInt(key string) (*int, error) {
	n, err := a.optionalNumber(key)
	if err != nil || n == nil {
		return nil, err
	}
	v := int(*n)
	return &v, nil
}

func (a args) optionalInt64(key string) (*int64, error) {
	n, err := a.optionalNumber(key)
	if err != nil || n == nil {
		return nil, err
	}
	v := int64(*n)
	return &v, nil
}

func (a args) optionalStringSlice(key string) ([]string, error) {
	if !a.has(key) {
		return nil, nil
	}
	var items []any
	switch v := a[key].(type) {
	case []any:
		items = v
	case []string:
		return slices.Clone(v), nil
	default:
		return nil, fmt.Errorf("%s must be an array", key)
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
