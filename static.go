package settings

import "context"

// staticSource serves a fixed in-memory mapping. It backs the defaults slot
// of the default source ordering and doubles as a test double.
type staticSource struct {
	desc   Descriptor
	values map[string]any
}

// NewStatic returns a source over a nested or dotted-key mapping. The map is
// deep-copied on every fetch so later merges never mutate the caller's data.
func NewStatic(name string, values map[string]any, rank int) Source {
	if name == "" {
		name = "static"
	}
	return &staticSource{
		desc: Descriptor{
			Kind:      KindStatic,
			Name:      name,
			Rank:      rank,
			Delimiter: ".",
		},
		values: values,
	}
}

func (s *staticSource) Descriptor() Descriptor { return s.desc }

func (s *staticSource) Fetch(_ context.Context) ([]RawValue, error) {
	flat := flattenDocument(s.values)
	out := make([]RawValue, len(flat))
	for i, rv := range flat {
		out[i] = RawValue{Key: rv.Key, Value: deepCopyValue(rv.Value)}
	}
	return out, nil
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, item := range val {
			cp[k] = deepCopyValue(item)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		return val
	}
}
