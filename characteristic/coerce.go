package characteristic

import "math"

// Coerce converts a raw decoded JSON value into one valid for format and
// constraints: numeric values outside [min,max] are rejected and values
// inside it snap to step, floats written to integer formats truncate
// toward zero, enum writes outside valid-values are rejected, and strings
// over max-length are rejected. Returns a *Error carrying the appropriate
// Status on any rejection.
func Coerce(v interface{}, format Format, c Constraints) (interface{}, error) {
	switch format {
	case FormatBool:
		return coerceBool(v)
	case FormatUint8, FormatUint16, FormatUint32, FormatUint64, FormatInt32:
		return coerceInt(v, format, c)
	case FormatFloat:
		return coerceFloat(v, c)
	case FormatString:
		return coerceString(v, c)
	case FormatTLV8, FormatData:
		return v, nil
	default:
		return v, nil
	}
}

func coerceBool(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	}
	return nil, &Error{Status: StatusInvalidValue, Msg: "expected bool"}
}

func coerceInt(v interface{}, format Format, c Constraints) (interface{}, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, &Error{Status: StatusInvalidValue, Msg: "expected number"}
	}

	// Truncate toward zero, matching the float->int coercion rule.
	truncated := math.Trunc(f)

	if c.ValidValues != nil {
		n := int(truncated)
		valid := false
		for _, vv := range c.ValidValues {
			if vv == n {
				valid = true
				break
			}
		}
		if !valid {
			return nil, &Error{Status: StatusInvalidValue, Msg: "value not in valid-values"}
		}
		return clampToFormat(truncated, format), nil
	}

	if min, ok := toFloat(c.MinValue); ok && truncated < min {
		return nil, &Error{Status: StatusInvalidValue, Msg: "below minimum"}
	}
	if max, ok := toFloat(c.MaxValue); ok && truncated > max {
		return nil, &Error{Status: StatusInvalidValue, Msg: "above maximum"}
	}
	if step, ok := toFloat(c.StepValue); ok && step > 0 {
		min, _ := toFloat(c.MinValue)
		steps := math.Round((truncated - min) / step)
		truncated = min + steps*step
	}

	return clampToFormat(truncated, format), nil
}

func clampToFormat(f float64, format Format) interface{} {
	switch format {
	case FormatUint8:
		return uint8(f)
	case FormatUint16:
		return uint16(f)
	case FormatUint32:
		return uint32(f)
	case FormatUint64:
		return uint64(f)
	default:
		return int(f)
	}
}

func coerceFloat(v interface{}, c Constraints) (interface{}, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, &Error{Status: StatusInvalidValue, Msg: "expected number"}
	}

	if min, ok := toFloat(c.MinValue); ok && f < min {
		return nil, &Error{Status: StatusInvalidValue, Msg: "below minimum"}
	}
	if max, ok := toFloat(c.MaxValue); ok && f > max {
		return nil, &Error{Status: StatusInvalidValue, Msg: "above maximum"}
	}
	if step, ok := toFloat(c.StepValue); ok && step > 0 {
		min, _ := toFloat(c.MinValue)
		steps := math.Round((f - min) / step)
		f = min + steps*step
	}

	return f, nil
}

func coerceString(v interface{}, c Constraints) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &Error{Status: StatusInvalidValue, Msg: "expected string"}
	}
	if c.MaxLen != nil && len(s) > *c.MaxLen {
		return nil, &Error{Status: StatusInvalidValue, Msg: "string exceeds max-length"}
	}
	return s, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
