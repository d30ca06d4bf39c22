package agent

import (
	"encoding/json"
	"math"
	"slices"
	"strings"

	xerrors "KOL-Agent/internal/errors"
)

// Arguments are the decoded JSON arguments of a tool call.
type Arguments map[string]any

func (a Arguments) present(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a Arguments) optionalString(key string) (string, error) {
	if !a.present(key) {
		return "", nil
	}
	s, ok := a[key].(string)
	if !ok {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func (a Arguments) requiredString(key string) (string, error) {
	s, err := a.optionalString(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "%s is required", key)
	}
	return s, nil
}

func (a Arguments) enum(key, fallback string, allowed ...string) (string, error) {
	s, err := a.optionalString(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return fallback, nil
	}
	if !slices.Contains(allowed, s) {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be one of %s", key, strings.Join(allowed, ", "))
	}
	return s, nil
}

func (a Arguments) number(key string, fallback float64) (float64, error) {
	if !a.present(key) {
		return fallback, nil
	}
	var f float64
	switch v := a[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a number", key)
		}
		f = parsed
	default:
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a number", key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a finite number", key)
	}
	return f, nil
}

// integer reads a whole number within [lo, hi].
func (a Arguments) integer(key string, fallback, lo, hi float64) (float64, error) {
	f, err := a.number(key, fallback)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be an integer", key)
	}
	if f < lo || f > hi {
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be between %s and %s", key, formatBound(lo), formatBound(hi))
	}
	return f, nil
}

func (a Arguments) boolean(key string, fallback bool) (bool, error) {
	if !a.present(key) {
		return fallback, nil
	}
	b, ok := a[key].(bool)
	if !ok {
		return false, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a boolean", key)
	}
	return b, nil
}

func (a Arguments) stringList(key string) ([]string, error) {
	if !a.present(key) {
		return nil, nil
	}
	switch v := a[key].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a list of strings", key)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a list of strings", key)
	}
}

func formatBound(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
