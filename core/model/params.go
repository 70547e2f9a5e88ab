package model

import (
	"math"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Hyperparameter maps come from YAML, JSON or Go literals, so numbers may arrive as
// int, int64, uint64 or float64. These helpers normalise them.

// ParamFloat reads a numeric parameter, returning def when key is absent.
func ParamFloat(params map[string]interface{}, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errors.NewValidationError(key, "must be a number", v)
	}
}

// ParamInt reads an integral parameter. Floats are accepted when they carry no
// fractional part.
func ParamInt(params map[string]interface{}, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.NewValidationError(key, "must be an integer", v)
		}
		return int(n), nil
	default:
		return 0, errors.NewValidationError(key, "must be an integer", v)
	}
}

// ParamString reads a string parameter.
func ParamString(params map[string]interface{}, key string, def string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(key, "must be a string", v)
	}
	return s, nil
}

// ParamBool reads a boolean parameter.
func ParamBool(params map[string]interface{}, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewValidationError(key, "must be a boolean", v)
	}
	return b, nil
}

// UnknownParams returns an error naming the first key in params not listed in known.
func UnknownParams(params map[string]interface{}, known ...string) error {
	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[k] = struct{}{}
	}
	for k, v := range params {
		if _, ok := allowed[k]; !ok {
			return errors.NewValidationError(k, "unknown hyperparameter", v)
		}
	}
	return nil
}
