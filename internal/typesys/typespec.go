package typesys

import (
	"fmt"
)

// Base kinds for the restricted schema. The set is closed on purpose:
// every TypeSpec maps to a concrete SQL column family and a statically
// known validation path. $ref, oneOf/anyOf/allOf and pattern properties
// are not supported.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// String formats accepted by the validator.
const (
	FormatEmail     = "email"
	FormatURI       = "uri"
	FormatDate      = "date"
	FormatTime      = "time"
	FormatDateTime  = "date-time"
	FormatDuration  = "duration"
	FormatTimestamp = "timestamp"
)

// TypeSpec is a node in the restricted JSON-Schema subset used for
// endpoint parameters and return shapes.
type TypeSpec struct {
	Type        string        `yaml:"type" json:"type"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Default     interface{}   `yaml:"default,omitempty" json:"default,omitempty"`
	Examples    []interface{} `yaml:"examples,omitempty" json:"examples,omitempty"`
	Enum        []interface{} `yaml:"enum,omitempty" json:"enum,omitempty"`
	Sensitive   bool          `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`

	// string annotations
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	MinLength *int   `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength *int   `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`

	// numeric annotations
	Minimum          *float64 `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum          *float64 `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `yaml:"exclusiveMinimum,omitempty" json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `yaml:"exclusiveMaximum,omitempty" json:"exclusiveMaximum,omitempty"`
	MultipleOf       *float64 `yaml:"multipleOf,omitempty" json:"multipleOf,omitempty"`

	// array annotations
	Items       *TypeSpec `yaml:"items,omitempty" json:"items,omitempty"`
	MinItems    *int      `yaml:"minItems,omitempty" json:"minItems,omitempty"`
	MaxItems    *int      `yaml:"maxItems,omitempty" json:"maxItems,omitempty"`
	UniqueItems bool      `yaml:"uniqueItems,omitempty" json:"uniqueItems,omitempty"`

	// object annotations
	Properties           map[string]*TypeSpec `yaml:"properties,omitempty" json:"properties,omitempty"`
	Required             []string             `yaml:"required,omitempty" json:"required,omitempty"`
	AdditionalProperties *bool                `yaml:"additionalProperties,omitempty" json:"additionalProperties,omitempty"`
}

var validKinds = map[string]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeInteger: true,
	TypeBoolean: true,
	TypeArray:   true,
	TypeObject:  true,
}

var validFormats = map[string]bool{
	FormatEmail:     true,
	FormatURI:       true,
	FormatDate:      true,
	FormatTime:      true,
	FormatDateTime:  true,
	FormatDuration:  true,
	FormatTimestamp: true,
}

// CheckSpec validates the TypeSpec itself (well-formedness, not data).
// Returned errors carry the path of the offending node.
func CheckSpec(spec *TypeSpec) error {
	return checkSpec(spec, "$")
}

func checkSpec(spec *TypeSpec, path string) error {
	if spec == nil {
		return fmt.Errorf("%s: nil type spec", path)
	}
	if !validKinds[spec.Type] {
		return fmt.Errorf("%s: unknown type %q", path, spec.Type)
	}
	if spec.Format != "" {
		if spec.Type != TypeString {
			return fmt.Errorf("%s: format is only valid on string types", path)
		}
		if !validFormats[spec.Format] {
			return fmt.Errorf("%s: unknown format %q", path, spec.Format)
		}
	}
	if spec.Type == TypeArray {
		if spec.Items == nil {
			return fmt.Errorf("%s: array type requires items", path)
		}
		if err := checkSpec(spec.Items, path+"[*]"); err != nil {
			return err
		}
	}
	if spec.Type == TypeObject {
		for name, child := range spec.Properties {
			if err := checkSpec(child, path+"."+name); err != nil {
				return err
			}
		}
		for _, req := range spec.Required {
			if _, ok := spec.Properties[req]; !ok {
				return fmt.Errorf("%s: required property %q is not declared", path, req)
			}
		}
	}
	if spec.Default != nil {
		if _, errs := coerce(spec.Default, spec, path); len(errs) > 0 {
			return fmt.Errorf("%s: default does not match the declared type: %v", path, errs.AsError())
		}
	}
	return nil
}

// AllowsAdditional reports whether unknown object properties are accepted.
// The default when the annotation is omitted is true, at every level.
func (s *TypeSpec) AllowsAdditional() bool {
	if s.AdditionalProperties == nil {
		return true
	}
	return *s.AdditionalProperties
}

// IsScalar reports whether the spec is one of the four scalar kinds.
func (s *TypeSpec) IsScalar() bool {
	switch s.Type {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean:
		return true
	}
	return false
}

// HasSensitive reports whether any node in the spec tree is marked sensitive.
func (s *TypeSpec) HasSensitive() bool {
	if s == nil {
		return false
	}
	if s.Sensitive {
		return true
	}
	if s.Items != nil && s.Items.HasSensitive() {
		return true
	}
	for _, child := range s.Properties {
		if child.HasSensitive() {
			return true
		}
	}
	return false
}

// SchemaJSON renders the spec as a plain JSON-Schema map, used to publish
// tool input schemas over MCP.
func (s *TypeSpec) SchemaJSON() map[string]interface{} {
	out := map[string]interface{}{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if s.MinLength != nil {
		out["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	if s.ExclusiveMinimum != nil {
		out["exclusiveMinimum"] = *s.ExclusiveMinimum
	}
	if s.ExclusiveMaximum != nil {
		out["exclusiveMaximum"] = *s.ExclusiveMaximum
	}
	if s.MultipleOf != nil {
		out["multipleOf"] = *s.MultipleOf
	}
	if s.Items != nil {
		out["items"] = s.Items.SchemaJSON()
	}
	if s.MinItems != nil {
		out["minItems"] = *s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.UniqueItems {
		out["uniqueItems"] = true
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, child := range s.Properties {
			props[name] = child.SchemaJSON()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.AdditionalProperties != nil {
		out["additionalProperties"] = *s.AdditionalProperties
	}
	return out
}
