package typesys

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"reflect"
	"time"
)

// Layouts for the string formats that coerce to typed values.
const (
	layoutDate = "2006-01-02"
	layoutTime = "15:04:05"
)

// ValidateAndCoerce validates value against spec and returns the coerced
// value. Coercions performed: temporal formats parse from strings, integers
// are accepted for number, defaults fill absent object properties, arrays
// and objects validate recursively. The operation is idempotent: feeding a
// coerced value back through yields the same value.
func ValidateAndCoerce(value interface{}, spec *TypeSpec) (interface{}, Errors) {
	return coerce(value, spec, "$")
}

// ValidateOutput applies the same rules as ValidateAndCoerce on the output
// side. Row-shape mapping (one row per element, column-to-property) happens
// in the runner before this is called; by the time a value reaches here it
// is a plain object, array, or scalar.
func ValidateOutput(value interface{}, spec *TypeSpec) (interface{}, Errors) {
	return coerce(value, spec, "$")
}

func coerce(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	if value == nil {
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected %s, got null", spec.Type)}
	}

	switch spec.Type {
	case TypeString:
		return coerceString(value, spec, path)
	case TypeInteger:
		return coerceInteger(value, spec, path)
	case TypeNumber:
		return coerceNumber(value, spec, path)
	case TypeBoolean:
		return coerceBoolean(value, spec, path)
	case TypeArray:
		return coerceArray(value, spec, path)
	case TypeObject:
		return coerceObject(value, spec, path)
	default:
		return nil, Errors{newFieldError(KindTypeMismatch, path, "unknown type %q", spec.Type)}
	}
}

func coerceString(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	switch v := value.(type) {
	case string:
		if spec.MinLength != nil && len(v) < *spec.MinLength {
			return nil, Errors{newFieldError(KindRangeViolation, path, "string shorter than minLength %d", *spec.MinLength)}
		}
		if spec.MaxLength != nil && len(v) > *spec.MaxLength {
			return nil, Errors{newFieldError(KindRangeViolation, path, "string longer than maxLength %d", *spec.MaxLength)}
		}
		if err := checkEnum(v, spec, path); err != nil {
			return nil, Errors{err}
		}
		if spec.Format == "" {
			return v, nil
		}
		return parseFormat(v, spec.Format, path)

	case time.Time:
		// Already coerced on a previous pass.
		switch spec.Format {
		case FormatDate, FormatTime, FormatDateTime, FormatTimestamp:
			return v, nil
		}
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected string, got timestamp")}

	case time.Duration:
		if spec.Format == FormatDuration {
			return v, nil
		}
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected string, got duration")}

	default:
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected string, got %T", value)}
	}
}

func parseFormat(v, format, path string) (interface{}, Errors) {
	switch format {
	case FormatEmail:
		if _, err := mail.ParseAddress(v); err != nil {
			return nil, Errors{newFieldError(KindFormatViolation, path, "invalid email address")}
		}
		return v, nil
	case FormatURI:
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" {
			return nil, Errors{newFieldError(KindFormatViolation, path, "invalid URI")}
		}
		return v, nil
	case FormatDate:
		t, err := time.Parse(layoutDate, v)
		if err != nil {
			return nil, Errors{newFieldError(KindFormatViolation, path, "invalid date, expected YYYY-MM-DD")}
		}
		return t, nil
	case FormatTime:
		t, err := time.Parse(layoutTime, v)
		if err != nil {
			return nil, Errors{newFieldError(KindFormatViolation, path, "invalid time, expected HH:MM:SS")}
		}
		return t, nil
	case FormatDateTime, FormatTimestamp:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, Errors{newFieldError(KindFormatViolation, path, "invalid %s, expected RFC 3339", format)}
		}
		return t, nil
	case FormatDuration:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, Errors{newFieldError(KindFormatViolation, path, "invalid duration")}
		}
		return d, nil
	default:
		return v, nil
	}
}

func coerceInteger(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	n, ok := asInt64(value)
	if !ok {
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected integer, got %T", value)}
	}
	if err := checkNumericBounds(float64(n), spec, path); err != nil {
		return nil, Errors{err}
	}
	if err := checkEnum(n, spec, path); err != nil {
		return nil, Errors{err}
	}
	return n, nil
}

func coerceNumber(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	f, ok := asFloat64(value)
	if !ok {
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected number, got %T", value)}
	}
	if err := checkNumericBounds(f, spec, path); err != nil {
		return nil, Errors{err}
	}
	if err := checkEnum(f, spec, path); err != nil {
		return nil, Errors{err}
	}
	return f, nil
}

func coerceBoolean(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	b, ok := value.(bool)
	if !ok {
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected boolean, got %T", value)}
	}
	if err := checkEnum(b, spec, path); err != nil {
		return nil, Errors{err}
	}
	return b, nil
}

func coerceArray(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	items, ok := asSlice(value)
	if !ok {
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected array, got %T", value)}
	}
	if spec.MinItems != nil && len(items) < *spec.MinItems {
		return nil, Errors{newFieldError(KindRangeViolation, path, "array shorter than minItems %d", *spec.MinItems)}
	}
	if spec.MaxItems != nil && len(items) > *spec.MaxItems {
		return nil, Errors{newFieldError(KindRangeViolation, path, "array longer than maxItems %d", *spec.MaxItems)}
	}

	var errs Errors
	out := make([]interface{}, len(items))
	for i, item := range items {
		coerced, itemErrs := coerce(item, spec.Items, fmt.Sprintf("%s[%d]", path, i))
		if len(itemErrs) > 0 {
			errs = append(errs, itemErrs...)
			continue
		}
		out[i] = coerced
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if spec.UniqueItems {
		seen := make(map[string]bool, len(out))
		for i, item := range out {
			key := fmt.Sprintf("%#v", item)
			if seen[key] {
				return nil, Errors{newFieldError(KindRangeViolation, fmt.Sprintf("%s[%d]", path, i), "duplicate item in uniqueItems array")}
			}
			seen[key] = true
		}
	}
	return out, nil
}

func coerceObject(value interface{}, spec *TypeSpec, path string) (interface{}, Errors) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, Errors{newFieldError(KindTypeMismatch, path, "expected object, got %T", value)}
	}

	var errs Errors
	out := make(map[string]interface{}, len(m))

	for name, child := range spec.Properties {
		childPath := path + "." + name
		raw, present := m[name]
		if !present {
			if child.Default == nil {
				continue
			}
			// Defaults pass through the same coercion as supplied
			// values, so a date-formatted default fills in as time.Time
			// rather than its raw string form.
			raw = cloneValue(child.Default)
		}
		coerced, childErrs := coerce(raw, child, childPath)
		if len(childErrs) > 0 {
			errs = append(errs, childErrs...)
			continue
		}
		out[name] = coerced
	}

	for _, req := range spec.Required {
		if _, ok := out[req]; !ok {
			errs = append(errs, newFieldError(KindMissingRequired, path+"."+req, "missing required property"))
		}
	}

	for name, raw := range m {
		if _, declared := spec.Properties[name]; declared {
			continue
		}
		if !spec.AllowsAdditional() {
			errs = append(errs, newFieldError(KindUnknownProperty, path+"."+name, "unknown property"))
			continue
		}
		out[name] = raw
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func checkNumericBounds(f float64, spec *TypeSpec, path string) *FieldError {
	if spec.Minimum != nil && f < *spec.Minimum {
		return newFieldError(KindRangeViolation, path, "value below minimum %v", *spec.Minimum)
	}
	if spec.Maximum != nil && f > *spec.Maximum {
		return newFieldError(KindRangeViolation, path, "value above maximum %v", *spec.Maximum)
	}
	if spec.ExclusiveMinimum != nil && f <= *spec.ExclusiveMinimum {
		return newFieldError(KindRangeViolation, path, "value not above exclusiveMinimum %v", *spec.ExclusiveMinimum)
	}
	if spec.ExclusiveMaximum != nil && f >= *spec.ExclusiveMaximum {
		return newFieldError(KindRangeViolation, path, "value not below exclusiveMaximum %v", *spec.ExclusiveMaximum)
	}
	if spec.MultipleOf != nil && *spec.MultipleOf != 0 {
		q := f / *spec.MultipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			return newFieldError(KindRangeViolation, path, "value is not a multiple of %v", *spec.MultipleOf)
		}
	}
	return nil
}

func checkEnum(v interface{}, spec *TypeSpec, path string) *FieldError {
	if len(spec.Enum) == 0 {
		return nil
	}
	for _, allowed := range spec.Enum {
		if looseEqual(v, allowed) {
			return nil
		}
	}
	return newFieldError(KindEnumViolation, path, "value %v is not one of the allowed values", v)
}

// looseEqual compares scalars with numeric widening, so an enum declared
// as [1, 2, 3] in YAML matches an int64 coerced from JSON.
func looseEqual(a, b interface{}) bool {
	af, aok := asFloat64(a)
	bf, bok := asFloat64(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		if float32(int64(v)) == v {
			return int64(v), true
		}
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	}
	return 0, false
}

func asFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if n, ok := asInt64(value); ok {
		return float64(n), true
	}
	return 0, false
}

func asSlice(value interface{}) ([]interface{}, bool) {
	if s, ok := value.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
