package registry

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// value is one observation or query argument. Every value has a string key
// used by the hashing sketches; numeric values also carry their float form
// for the rank sketches. Numeric values are keyed by their canonical form, so
// "42", 42, 42.0 and "4.2e1" share the key "42".
type value struct {
	key   string
	num   float64
	isNum bool
}

func parseValue(v any) (value, error) {
	switch x := v.(type) {
	case string:
		return textValue(x), nil
	case json.Number:
		return textValue(x.String()), nil
	case float64:
		return floatValue(x)
	case float32:
		return floatValue(float64(x))
	case int:
		return intValue(int64(x)), nil
	case int32:
		return intValue(int64(x)), nil
	case int64:
		return intValue(x), nil
	case uint64:
		return value{key: strconv.FormatUint(x, 10), num: float64(x), isNum: true}, nil
	case bool:
		return value{key: strconv.FormatBool(x)}, nil
	case nil:
		return value{}, errors.Wrap(ErrBadValue, "null value")
	default:
		return value{}, errors.Wrapf(ErrBadValue, "unsupported value type %T", v)
	}
}

// textValue keys numeric text canonically and keeps any other text as is.
// Integers parse exactly so large ids keep all their digits.
func textValue(s string) value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return intValue(i)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return value{key: s}
	}
	return value{key: numKey(f), num: f, isNum: true}
}

func floatValue(f float64) (value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value{}, errors.Wrapf(ErrBadValue, "non-finite number %v", f)
	}
	return value{key: numKey(f), num: f, isNum: true}, nil
}

// numKey formats integral floats in the int64 range as integers and every
// other float in its shortest form.
func numKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func intValue(i int64) value {
	return value{key: strconv.FormatInt(i, 10), num: float64(i), isNum: true}
}

func parseValues(vs []any, numeric bool) ([]value, error) {
	out := make([]value, len(vs))
	for i, v := range vs {
		pv, err := parseValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
		if numeric && !pv.isNum {
			return nil, errors.Wrapf(ErrBadValue, "value %d: %q is not a number", i, pv.key)
		}
		out[i] = pv
	}
	return out, nil
}
