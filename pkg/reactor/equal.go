package reactor

import "reflect"

// defaultEquals provides type-appropriate equality checking.
// Uses == for basic comparable kinds and reflect.DeepEqual for others.
// Values of different dynamic types are never equal.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int8:
		bv, ok := any(b).(int8)
		return ok && av == bv
	case int16:
		bv, ok := any(b).(int16)
		return ok && av == bv
	case int32:
		bv, ok := any(b).(int32)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case uint:
		bv, ok := any(b).(uint)
		return ok && av == bv
	case uint8:
		bv, ok := any(b).(uint8)
		return ok && av == bv
	case uint16:
		bv, ok := any(b).(uint16)
		return ok && av == bv
	case uint32:
		bv, ok := any(b).(uint32)
		return ok && av == bv
	case uint64:
		bv, ok := any(b).(uint64)
		return ok && av == bv
	case float32:
		bv, ok := any(b).(float32)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && av == bv
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	case error:
		bv, ok := any(b).(error)
		if !ok || bv == nil {
			return false
		}
		return equalErrors(av, bv)
	case nil:
		return any(b) == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}

// equalErrors compares two non-nil errors. == would panic on a dynamic
// type that is not comparable, so those go through reflect.DeepEqual.
func equalErrors(a, b error) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// Identity reports whether a and b are the same comparable value.
// Use it with WithEquals to opt out of deep comparison.
func Identity[T comparable](a, b T) bool {
	return a == b
}

// Never treats every write as a change.
func Never[T any](a, b T) bool {
	return false
}
