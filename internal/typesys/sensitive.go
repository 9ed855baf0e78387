package typesys

import "fmt"

// RedactedPlaceholder replaces sensitive values before audit serialization.
const RedactedPlaceholder = "[REDACTED]"

// SensitiveVisitor is invoked once per sensitive node during a walk.
type SensitiveVisitor func(path string, value interface{})

// WalkSensitive walks value and spec in lockstep, invoking visitor exactly
// at nodes whose TypeSpec carries sensitive: true. The walk does not
// descend below a sensitive node: the whole subtree is one sensitive value.
func WalkSensitive(value interface{}, spec *TypeSpec, visitor SensitiveVisitor) {
	walkSensitive(value, spec, "$", visitor)
}

func walkSensitive(value interface{}, spec *TypeSpec, path string, visitor SensitiveVisitor) {
	if spec == nil || value == nil {
		return
	}
	if spec.Sensitive {
		visitor(path, value)
		return
	}
	switch spec.Type {
	case TypeArray:
		items, ok := asSlice(value)
		if !ok {
			return
		}
		for i, item := range items {
			walkSensitive(item, spec.Items, fmt.Sprintf("%s[%d]", path, i), visitor)
		}
	case TypeObject:
		m, ok := value.(map[string]interface{})
		if !ok {
			return
		}
		for name, child := range spec.Properties {
			if v, present := m[name]; present {
				walkSensitive(v, child, path+"."+name, visitor)
			}
		}
	}
}

// Redact returns a deep copy of value with every sensitive value replaced
// by the redaction placeholder. Non-sensitive parts are shared or copied
// as needed; the input is never mutated.
func Redact(value interface{}, spec *TypeSpec) interface{} {
	if spec == nil || value == nil {
		return value
	}
	if spec.Sensitive {
		return RedactedPlaceholder
	}
	switch spec.Type {
	case TypeArray:
		items, ok := asSlice(value)
		if !ok {
			return value
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = Redact(item, spec.Items)
		}
		return out
	case TypeObject:
		m, ok := value.(map[string]interface{})
		if !ok {
			return value
		}
		out := make(map[string]interface{}, len(m))
		for name, v := range m {
			if child, declared := spec.Properties[name]; declared {
				out[name] = Redact(v, child)
			} else {
				out[name] = v
			}
		}
		return out
	default:
		return value
	}
}

// RemoveSensitive returns a deep copy of value with every sensitive value
// removed. Sensitive object properties are dropped; sensitive array
// elements are elided; a sensitive root yields nil.
func RemoveSensitive(value interface{}, spec *TypeSpec) interface{} {
	if spec == nil || value == nil {
		return value
	}
	if spec.Sensitive {
		return nil
	}
	switch spec.Type {
	case TypeArray:
		items, ok := asSlice(value)
		if !ok {
			return value
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if spec.Items != nil && spec.Items.Sensitive {
				continue
			}
			out = append(out, RemoveSensitive(item, spec.Items))
		}
		return out
	case TypeObject:
		m, ok := value.(map[string]interface{})
		if !ok {
			return value
		}
		out := make(map[string]interface{}, len(m))
		for name, v := range m {
			child, declared := spec.Properties[name]
			if declared && child.Sensitive {
				continue
			}
			if declared {
				out[name] = RemoveSensitive(v, child)
			} else {
				out[name] = v
			}
		}
		return out
	default:
		return value
	}
}
