package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"cloudtrail-notifier/internal/flatten"
)

// tuple is an immutable sequence literal; startswith/endswith accept tuples but not lists.
type tuple []any

type evaluator struct {
	event flatten.FlatEvent
}

func (ev *evaluator) eval(n node) (any, error) {
	switch n := n.(type) {
	case literalNode:
		return n.value, nil
	case nameNode:
		if n.name == "event" {
			return ev.event, nil
		}
		return nil, fmt.Errorf("%w: %q is not defined", ErrUndefinedName, n.name)
	case listNode:
		items := make([]any, 0, len(n.elems))
		for _, e := range n.elems {
			v, err := ev.eval(e)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		if n.tuple {
			return tuple(items), nil
		}
		return items, nil
	case indexNode:
		target, err := ev.eval(n.target)
		if err != nil {
			return nil, err
		}
		key, err := ev.eval(n.key)
		if err != nil {
			return nil, err
		}
		return index(target, key)
	case callNode:
		return ev.call(n)
	case notNode:
		x, err := ev.eval(n.x)
		if err != nil {
			return nil, err
		}
		return !truthy(x), nil
	case negNode:
		x, err := ev.eval(n.x)
		if err != nil {
			return nil, err
		}
		f, ok := number(x)
		if !ok {
			return nil, fmt.Errorf("%w: bad operand type for unary -: %s", ErrType, typeName(x))
		}
		return -f, nil
	case andNode:
		left, err := ev.eval(n.left)
		if err != nil || !truthy(left) {
			return left, err
		}
		return ev.eval(n.right)
	case orNode:
		left, err := ev.eval(n.left)
		if err != nil || truthy(left) {
			return left, err
		}
		return ev.eval(n.right)
	case compareNode:
		left, err := ev.eval(n.first)
		if err != nil {
			return nil, err
		}
		for i, op := range n.ops {
			right, err := ev.eval(n.operands[i])
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil
	}
	return nil, fmt.Errorf("%w: unsupported expression %T", ErrSyntax, n)
}

func (ev *evaluator) call(n callNode) (any, error) {
	target, err := ev.eval(n.target)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch t := target.(type) {
	case flatten.FlatEvent:
		if n.method != "get" {
			break
		}
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("%w: get expects 1 or 2 arguments, got %d", ErrType, len(args))
		}
		var def any
		if len(args) == 2 {
			def = args[1]
		}
		key, ok := args[0].(string)
		if !ok {
			if !hashable(args[0]) {
				return nil, fmt.Errorf("%w: unhashable key type %s", ErrType, typeName(args[0]))
			}
			return def, nil
		}
		if v, ok := t[key]; ok {
			return normalize(v), nil
		}
		return def, nil
	case string:
		var match func(string, string) bool
		switch n.method {
		case "startswith":
			match = strings.HasPrefix
		case "endswith":
			match = strings.HasSuffix
		}
		if match == nil {
			break
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 argument, got %d", ErrType, n.method, len(args))
		}
		switch a := args[0].(type) {
		case string:
			return match(t, a), nil
		case tuple:
			for _, item := range a {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %s tuple must contain only strings, not %s", ErrType, n.method, typeName(item))
				}
				if match(t, s) {
					return true, nil
				}
			}
			return false, nil
		default:
			return nil, fmt.Errorf("%w: %s argument must be a string or a tuple of strings, not %s", ErrType, n.method, typeName(a))
		}
	}
	return nil, fmt.Errorf("%w: %s has no method %q", ErrUnknownMethod, typeName(target), n.method)
}

func index(target, key any) (any, error) {
	switch t := target.(type) {
	case flatten.FlatEvent:
		k, ok := key.(string)
		if !ok {
			if !hashable(key) {
				return nil, fmt.Errorf("%w: unhashable key type %s", ErrType, typeName(key))
			}
			return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
		}
		v, ok := t[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, k)
		}
		return normalize(v), nil
	case string, []any, tuple:
		f, ok := key.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s indices must be integers, not %s", ErrType, typeName(target), typeName(key))
		}
		i := int(f)
		var length int
		switch s := t.(type) {
		case string:
			length = len(s)
		case []any:
			length = len(s)
		case tuple:
			length = len(s)
		}
		if i < 0 {
			i += length
		}
		if i < 0 || i >= length {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, int(f))
		}
		switch s := t.(type) {
		case string:
			return s[i : i+1], nil
		case []any:
			return s[i], nil
		case tuple:
			return s[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not subscriptable", ErrType, typeName(target))
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "is":
		return identical(left, right), nil
	case "is not":
		return !identical(left, right), nil
	case "in":
		return contains(right, left)
	case "not in":
		ok, err := contains(right, left)
		return !ok, err
	}

	if lf, ok := number(left); ok {
		if rf, ok := number(right); ok {
			return order(op, compareFloat(lf, rf)), nil
		}
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return order(op, strings.Compare(ls, rs)), nil
		}
	}
	return false, fmt.Errorf("%w: %q not supported between %s and %s", ErrType, op, typeName(left), typeName(right))
}

func order(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case flatten.FlatEvent:
		k, ok := item.(string)
		if !ok {
			if !hashable(item) {
				return false, fmt.Errorf("%w: unhashable key type %s", ErrType, typeName(item))
			}
			return false, nil
		}
		_, found := c[k]
		return found, nil
	case []any:
		return containsItem(c, item), nil
	case tuple:
		return containsItem(c, item), nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("%w: 'in <string>' requires string as left operand, not %s", ErrType, typeName(item))
		}
		return strings.Contains(c, s), nil
	}
	return false, fmt.Errorf("%w: argument of type %s is not a container", ErrType, typeName(container))
}

func containsItem(items []any, item any) bool {
	for _, candidate := range items {
		if equal(candidate, item) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		return ok && equalItems(av, bv)
	case tuple:
		bv, ok := b.(tuple)
		return ok && equalItems(av, bv)
	case flatten.FlatEvent:
		bv, ok := b.(flatten.FlatEvent)
		return ok && reflect.DeepEqual(av, bv)
	}
	return false
}

func equalItems(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// identical implements "is" for the singletons None, True and False.
func identical(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	return aok && bok && ab == bb
}

func truthy(v any) bool {
	switch t := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case tuple:
		return len(t) > 0
	case flatten.FlatEvent:
		return len(t) > 0
	}
	return true
}

// number returns the numeric value of numbers and booleans.
func number(v any) (float64, bool) {
	switch t := normalize(v).(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func hashable(v any) bool {
	switch normalize(v).(type) {
	case []any, flatten.FlatEvent:
		return false
	}
	return true
}

// normalize folds the numeric types a decoder may produce into float64.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

func typeName(v any) string {
	switch normalize(v).(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "list"
	case tuple:
		return "tuple"
	case flatten.FlatEvent:
		return "event"
	}
	return fmt.Sprintf("%T", v)
}
