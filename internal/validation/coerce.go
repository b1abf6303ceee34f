package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/appspec/pkg/schema"
)

// ConversionError reports a value that cannot be converted to a declared type.
type ConversionError struct {
	Value any
	Type  string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %v (%T) to %s: %s", e.Value, e.Value, e.Type, e.Err.Error())
	}
	return fmt.Sprintf("cannot convert %v (%T) to %s", e.Value, e.Value, e.Type)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Coerce converts value to the declared primitive type. Integers (including
// the "user" and "role" aliases) become int64, numbers float64. A structured
// value coerced to string is rendered as its JSON text.
func Coerce(value any, declaredType string) (any, error) {
	switch declaredType {
	case schema.TypeInteger, schema.TypeUser, schema.TypeRole:
		return toInteger(value, declaredType)
	case schema.TypeNumber:
		return toNumber(value, declaredType)
	case schema.TypeBoolean:
		return toBoolean(value, declaredType)
	case schema.TypeString:
		return toString(value, declaredType)
	default:
		return nil, &ConversionError{Value: value, Type: declaredType, Err: fmt.Errorf("unknown type %q", declaredType)}
	}
}

func toInteger(value any, typ string) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, &ConversionError{Value: value, Type: typ, Err: fmt.Errorf("out of range")}
		}
		return int64(v), nil
	case float32:
		return truncate(float64(v), value, typ)
	case float64:
		return truncate(v, value, typ)
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, &ConversionError{Value: value, Type: typ, Err: err}
		}
		return truncate(f, value, typ)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, &ConversionError{Value: value, Type: typ, Err: err}
		}
		return n, nil
	default:
		return nil, &ConversionError{Value: value, Type: typ}
	}
}

func truncate(f float64, value any, typ string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, &ConversionError{Value: value, Type: typ, Err: fmt.Errorf("out of range")}
	}
	return int64(f), nil
}

func toNumber(value any, typ string) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, &ConversionError{Value: value, Type: typ, Err: err}
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &ConversionError{Value: value, Type: typ, Err: err}
		}
		return f, nil
	default:
		return nil, &ConversionError{Value: value, Type: typ}
	}
}

func toBoolean(value any, typ string) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, &ConversionError{Value: value, Type: typ, Err: fmt.Errorf("invalid boolean value")}
}

func toString(value any, typ string) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return nil, &ConversionError{Value: value, Type: typ}
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, &ConversionError{Value: value, Type: typ, Err: err}
		}
		return string(b), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	default:
		return fmt.Sprint(v), nil
	}
}
