package content

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// reservedKeyPrefix marks attribute keys reserved for the storage backend.
// Caller-supplied keys carrying it are rewritten with the prefix stripped.
const reservedKeyPrefix = "$"

// SanitizeAttributes deep-copies an arbitrary nested value so it can be
// stored as document attributes.
//
// Map keys that collide with the reserved prefix are rewritten, and values
// that cannot be serialized (functions, channels, unsafe pointers) are
// replaced with a human-readable placeholder string. Everything else is
// copied as-is, so the result shares no mutable state with the input.
func SanitizeAttributes(value any) any {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Func:
		name := runtime.FuncForPC(v.Pointer()).Name()
		return fmt.Sprintf("<function %s>", name)
	case reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("<%s>", v.Kind())
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return SanitizeAttributes(v.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			// Keep []byte opaque; json encodes it as base64.
			return value
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = SanitizeAttributes(v.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, v.Len())
		for _, key := range v.MapKeys() {
			out[sanitizeKey(key)] = SanitizeAttributes(v.MapIndex(key).Interface())
		}
		return out
	default:
		return value
	}
}

func sanitizeKey(key reflect.Value) string {
	var s string
	if key.Kind() == reflect.String {
		s = key.String()
	} else {
		s = fmt.Sprint(key.Interface())
	}
	return strings.TrimPrefix(s, reservedKeyPrefix)
}
