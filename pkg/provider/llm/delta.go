package llm

import "strconv"

// Kind identifies which variant a [Value] holds.
type Kind int

const (
	// KindString is an append-merged text value. Successive deltas for the
	// same field concatenate, supporting token-by-token growth.
	KindString Kind = iota

	// KindObject is a nested field set. Successive deltas merge recursively.
	KindObject

	// KindScalar is an opaque set-once value (numbers, booleans, arrays,
	// anything that is neither text nor an object). Later deltas for an
	// already-set scalar field are ignored.
	KindScalar
)

// Value is a tagged variant held by a [Fields] map. The zero value is an empty
// string value.
type Value struct {
	kind   Kind
	str    string
	obj    Fields
	scalar any
}

// StringValue returns a Value holding s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// ObjectValue returns a Value holding the nested field set f.
func ObjectValue(f Fields) Value { return Value{kind: KindObject, obj: f} }

// ScalarValue returns a Value holding the opaque scalar v.
func ScalarValue(v any) Value { return Value{kind: KindScalar, scalar: v} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Str returns the text content. Empty unless Kind is [KindString].
func (v Value) Str() string { return v.str }

// Object returns the nested field set. Nil unless Kind is [KindObject].
func (v Value) Object() Fields { return v.obj }

// Scalar returns the opaque value. Nil unless Kind is [KindScalar].
func (v Value) Scalar() any { return v.scalar }

// Fields is a free-form mapping of field name to [Value]. It is both the shape
// of a single streaming delta and the accumulation target that grows as deltas
// are merged in arrival order.
type Fields map[string]Value

// Merge folds delta into prev and returns the merged result, applying one rule
// per field present in delta:
//
//   - absent in prev: the delta value is set directly.
//   - both string: the delta text is appended to the existing text.
//   - existing object and delta object: the merge recurses into the nested
//     field sets.
//   - anything else (kind mismatch, or an already-set scalar): the existing
//     value is left untouched and the delta contribution is dropped.
//
// Malformed or unexpected delta shapes therefore degrade to "field ignored",
// never to an error. prev is mutated and returned; a nil prev is allocated.
func Merge(prev, delta Fields) Fields {
	if prev == nil {
		prev = make(Fields, len(delta))
	}
	for name, dv := range delta {
		pv, ok := prev[name]
		if !ok {
			prev[name] = dv
			continue
		}
		switch {
		case pv.kind == KindString && dv.kind == KindString:
			pv.str += dv.str
			prev[name] = pv
		case pv.kind == KindObject && dv.kind == KindObject:
			pv.obj = Merge(pv.obj, dv.obj)
			prev[name] = pv
		default:
			// Set-once scalars and mismatched kinds: drop the delta.
		}
	}
	return prev
}

// Text returns the accumulated "content" field, or "" when absent or not text.
func (f Fields) Text() string {
	v, ok := f["content"]
	if !ok || v.kind != KindString {
		return ""
	}
	return v.str
}

// ToolCalls extracts the tool invocations accumulated under the "tool_calls"
// field. The wire shape is an object keyed by decimal stream index, each entry
// holding a scalar "id" and a "function" object whose "name" and "arguments"
// fields accumulate as text. Extraction stops at the first missing index so
// the result preserves stream order.
func (f Fields) ToolCalls() []ToolCall {
	calls, ok := f["tool_calls"]
	if !ok || calls.kind != KindObject {
		return nil
	}
	var out []ToolCall
	for i := 0; ; i++ {
		entry, ok := calls.obj[strconv.Itoa(i)]
		if !ok || entry.kind != KindObject {
			break
		}
		tc := ToolCall{}
		if id, ok := entry.obj["id"]; ok {
			if s, isStr := id.scalar.(string); isStr {
				tc.ID = s
			}
		}
		if fn, ok := entry.obj["function"]; ok && fn.kind == KindObject {
			if name, ok := fn.obj["name"]; ok && name.kind == KindString {
				tc.Name = name.str
			}
			if args, ok := fn.obj["arguments"]; ok && args.kind == KindString {
				tc.Arguments = args.str
			}
		}
		out = append(out, tc)
	}
	return out
}
