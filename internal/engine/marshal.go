package engine

import (
	"fmt"
	"reflect"
	"strconv"
)

// MarshalValue normalizes an engine value for JSON transport. The mapping
// is fixed: booleans, integers, floats and strings pass through; slices,
// arrays and maps are converted element-wise (map keys coerced to string);
// Vec2 becomes {"x","y"}; every other type degrades to its fmt string
// form. get_property, call_method results and wait_for last_value all go
// through this one function.
func MarshalValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case string:
		return t
	case int:
		return t
	case int64:
		return t
	case float64:
		return t
	case float32:
		return float64(t)
	case Vec2:
		return map[string]any{"x": t.X, "y": t.Y}
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = MarshalValue(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = MarshalValue(el)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = MarshalValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = MarshalValue(iter.Value().Interface())
		}
		return out
	}
	return fmt.Sprint(v)
}

// Stringify renders a value in the canonical string form used for wait_for
// equality checks: primitives in their JSON spelling, everything else via
// MarshalValue and fmt. Both sides of a comparison must pass through this
// function; engine values whose string forms collide compare equal, which
// is the documented limitation of string-based waiting.
func Stringify(v any) string {
	switch m := MarshalValue(v).(type) {
	case nil:
		return "null"
	case string:
		return m
	case bool:
		return strconv.FormatBool(m)
	case int:
		return strconv.Itoa(m)
	case int64:
		return strconv.FormatInt(m, 10)
	case uint64:
		return strconv.FormatUint(m, 10)
	case float64:
		return strconv.FormatFloat(m, 'g', -1, 64)
	default:
		return fmt.Sprint(m)
	}
}
