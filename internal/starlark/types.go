// Package starlark evaluates template expressions with Starlark against the
// pipeline context, and provides the built-in filters templates can pipe into.
package starlark

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
)

// Record exposes a context mapping (including a result row) to Starlark.
// Keys are reachable both as attributes (row.name) and by index (row["name"]);
// iteration yields keys in sorted order.
type Record struct {
	keys   []string
	values map[string]starlark.Value
	frozen bool
}

var (
	_ starlark.HasAttrs = (*Record)(nil)
	_ starlark.Mapping  = (*Record)(nil)
	_ starlark.Iterable = (*Record)(nil)
	_ starlark.Sequence = (*Record)(nil)
)

// NewRecord converts m into a Record.
func NewRecord(m map[string]any) (*Record, error) {
	r := &Record{
		keys:   make([]string, 0, len(m)),
		values: make(map[string]starlark.Value, len(m)),
	}
	for k, v := range m {
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		r.keys = append(r.keys, k)
		r.values[k] = sv
	}
	sort.Strings(r.keys)
	return r, nil
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(starlark.String(k).String())
		b.WriteString(": ")
		b.WriteString(r.values[k].String())
	}
	b.WriteByte('}')
	return b.String()
}

// Type returns "record".
func (r *Record) Type() string { return "record" }

// Freeze makes the record and its values immutable.
func (r *Record) Freeze() {
	if r.frozen {
		return
	}
	r.frozen = true
	for _, v := range r.values {
		v.Freeze()
	}
}

// Truth reports whether the record has any keys.
func (r *Record) Truth() starlark.Bool { return len(r.keys) > 0 }

// Hash fails: records are mutable mappings.
func (r *Record) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: record") }

// Attr returns the value stored under name, or nil if there is none.
func (r *Record) Attr(name string) (starlark.Value, error) {
	if v, ok := r.values[name]; ok {
		return v, nil
	}
	return nil, nil
}

// AttrNames returns the record's keys.
func (r *Record) AttrNames() []string { return append([]string(nil), r.keys...) }

// Get implements starlark.Mapping.
func (r *Record) Get(k starlark.Value) (starlark.Value, bool, error) {
	s, ok := k.(starlark.String)
	if !ok {
		return nil, false, nil
	}
	v, found := r.values[string(s)]
	return v, found, nil
}

// Len returns the number of keys.
func (r *Record) Len() int { return len(r.keys) }

// Iterate yields the keys in sorted order.
func (r *Record) Iterate() starlark.Iterator {
	return &recordIterator{r: r}
}

// Keys returns the record's keys in sorted order.
func (r *Record) Keys() []string { return append([]string(nil), r.keys...) }

type recordIterator struct {
	r *Record
	i int
}

func (it *recordIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.r.keys) {
		return false
	}
	*p = starlark.String(it.r.keys[it.i])
	it.i++
	return true
}

func (it *recordIterator) Done() {}

// GoToStarlark converts a Go value to a Starlark value.
// Mappings become records, slices become lists, time.Time values become
// RFC 3339 strings. Other unrecognized types are rendered with fmt.
func GoToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return val, nil
	case string:
		return starlark.String(val), nil
	case []byte:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int8, int16, int32, int64:
		return starlark.MakeInt64(widenInt(val)), nil
	case uint:
		return starlark.MakeUint(val), nil
	case uint8, uint16, uint32, uint64:
		return starlark.MakeUint64(widenUint(val)), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case json.Number:
		return numberValue(val), nil
	case time.Time:
		return starlark.String(val.Format(time.RFC3339Nano)), nil
	case map[string]any:
		return NewRecord(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return NewRecord(m)
	case []string:
		return listOf(val, func(s string) (starlark.Value, error) { return starlark.String(s), nil })
	case []any:
		return listOf(val, GoToStarlark)
	case []map[string]any:
		return listOf(val, func(m map[string]any) (starlark.Value, error) { return NewRecord(m) })
	case fmt.Stringer:
		return starlark.String(val.String()), nil
	default:
		return starlark.String(fmt.Sprint(val)), nil
	}
}

func listOf[T any](items []T, convert func(T) (starlark.Value, error)) (starlark.Value, error) {
	elems := make([]starlark.Value, len(items))
	for i, item := range items {
		sv, err := convert(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = sv
	}
	return starlark.NewList(elems), nil
}

// numberValue prefers an int, then a float, then the literal text.
func numberValue(n json.Number) starlark.Value {
	if i, err := n.Int64(); err == nil {
		return starlark.MakeInt64(i)
	}
	if f, err := n.Float64(); err == nil {
		return starlark.Float(f)
	}
	return starlark.String(n.String())
}

func widenInt(v any) int64 {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return n.(int64)
	}
}

func widenUint(v any) uint64 {
	switch n := v.(type) {
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	default:
		return n.(uint64)
	}
}

// ToGo converts a Starlark value to plain Go data: nil, string, int64,
// float64, bool, []any or map[string]any. Integers outside the int64 range
// and values of other types are returned in their Starlark string form.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		if n, ok := val.Int64(); ok {
			return n, nil
		}
		return val.String(), nil
	case *Record:
		out := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			if err := putGo(out, k, val.values[k]); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, kv := range val.Items() {
			k, ok := starlark.AsString(kv[0])
			if !ok {
				return nil, fmt.Errorf("mapping keys must be strings, got %s", kv[0].Type())
			}
			if err := putGo(out, k, kv[1]); err != nil {
				return nil, err
			}
		}
		return out, nil
	case starlark.Indexable:
		// lists and tuples
		out := make([]any, val.Len())
		for i := range out {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("%s element %d: %w", v.Type(), i, err)
			}
			out[i] = gv
		}
		return out, nil
	default:
		return val.String(), nil
	}
}

func putGo(m map[string]any, key string, v starlark.Value) error {
	gv, err := ToGo(v)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	m[key] = gv
	return nil
}
