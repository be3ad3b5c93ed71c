package starlark

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// Filters returns the functions available to every template, both as plain
// calls and as pipe targets ("xs | length").
func Filters() starlark.StringDict {
	return starlark.StringDict{
		"length":            starlark.NewBuiltin("length", length),
		"find_by_key_value": starlark.NewBuiltin("find_by_key_value", findByKeyValue),
		"tojson":            starlark.NewBuiltin("tojson", toJSON),
		"default":           starlark.NewBuiltin("default", defaultValue),
		"join":              starlark.NewBuiltin("join", join),
		"upper":             starlark.NewBuiltin("upper", stringFilter("upper", strings.ToUpper)),
		"lower":             starlark.NewBuiltin("lower", stringFilter("lower", strings.ToLower)),
		"trim":              starlark.NewBuiltin("trim", stringFilter("trim", strings.TrimSpace)),
	}
}

// FilterNames returns the names of all built-in filters, sorted.
func FilterNames() []string {
	f := Filters()
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func length(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	if v == starlark.None {
		return starlark.MakeInt(0), nil
	}
	n := starlark.Len(v)
	if n < 0 {
		return nil, fmt.Errorf("%s: value of type %s has no length", b.Name(), v.Type())
	}
	return starlark.MakeInt(n), nil
}

// findByKeyValue returns the first mapping in haystack whose key equals value.
// A single mapping is matched directly. Anything else yields the default.
func findByKeyValue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		haystack, key, value starlark.Value
		dflt                 starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"haystack", &haystack, "key", &key, "value", &value, "default?", &dflt); err != nil {
		return nil, err
	}

	matches := func(item starlark.Value) (bool, error) {
		m, ok := item.(starlark.Mapping)
		if !ok {
			return false, nil
		}
		got, found, err := m.Get(key)
		if err != nil || !found {
			return false, err
		}
		return starlark.Equal(got, value)
	}

	switch h := haystack.(type) {
	case starlark.Mapping:
		ok, err := matches(h)
		if err != nil {
			return nil, err
		}
		if ok {
			return h, nil
		}
	case starlark.Iterable:
		iter := h.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			ok, err := matches(item)
			if err != nil {
				return nil, err
			}
			if ok {
				return item, nil
			}
		}
	}
	return dflt, nil
}

func toJSON(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	gv, err := ToGo(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	data, err := json.Marshal(gv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(data), nil
}

// defaultValue returns fallback when value is None or an empty string.
func defaultValue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value, fallback starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &value, &fallback); err != nil {
		return nil, err
	}
	if value == starlark.None || value == starlark.String("") {
		return fallback, nil
	}
	return value, nil
}

func join(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		items starlark.Iterable
		sep   string
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &items, &sep); err != nil {
		return nil, err
	}

	var parts []string
	iter := items.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		if s, ok := item.(starlark.String); ok {
			parts = append(parts, string(s))
		} else {
			parts = append(parts, item.String())
		}
	}
	return starlark.String(strings.Join(parts, sep)), nil
}

func stringFilter(name string, fn func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(fn(s)), nil
	}
}
