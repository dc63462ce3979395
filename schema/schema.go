package schema

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// Property types.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

const resourceURL = "mem://input.json"

// Schema is the input schema of one capability.
type Schema struct {
	doc    *jsonschema.Schema
	folded map[string]bool

	once     sync.Once
	compiled *validator.Schema
	err      error
}

// For reflects the schema of T, which must be a struct.
func For[T any]() *Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: false,
	}
	return &Schema{doc: r.Reflect(new(T))}
}

// Object returns an empty object schema for capabilities without arguments.
func Object() *Schema {
	return &Schema{doc: &jsonschema.Schema{
		Version:              jsonschema.Version,
		Type:                 TypeObject,
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}}
}

func (s *Schema) prop(name string) (*jsonschema.Schema, bool) {
	if s.doc.Properties == nil {
		return nil, false
	}
	return s.doc.Properties.Get(name)
}

// Enum restricts a string property to values.
func (s *Schema) Enum(prop string, values ...string) *Schema {
	if p, ok := s.prop(prop); ok {
		p.Enum = make([]any, len(values))
		for i, v := range values {
			p.Enum[i] = v
		}
	}
	return s
}

// CaseInsensitive makes Normalize lower-case string values of props.
func (s *Schema) CaseInsensitive(props ...string) *Schema {
	if s.folded == nil {
		s.folded = make(map[string]bool, len(props))
	}
	for _, p := range props {
		s.folded[p] = true
	}
	return s
}

// Default records the value a property takes when omitted.
func (s *Schema) Default(prop string, v any) *Schema {
	if p, ok := s.prop(prop); ok {
		p.Default = v
	}
	return s
}

// MarshalJSON encodes the schema as advertised to clients.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.doc)
}

// Property summarizes one top-level property.
type Property struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
	Default     any
}

// Properties returns the top-level properties in declaration order.
func (s *Schema) Properties() []Property {
	required := make(map[string]bool, len(s.doc.Required))
	for _, r := range s.doc.Required {
		required[r] = true
	}
	var props []Property
	if s.doc.Properties == nil {
		return nil
	}
	for el := s.doc.Properties.Oldest(); el != nil; el = el.Next() {
		p := Property{
			Name:        el.Key,
			Type:        el.Value.Type,
			Description: el.Value.Description,
			Required:    required[el.Key],
			Default:     el.Value.Default,
		}
		for _, e := range el.Value.Enum {
			if str, ok := e.(string); ok {
				p.Enum = append(p.Enum, str)
			}
		}
		props = append(props, p)
	}
	return props
}

// Property returns the named top-level property.
func (s *Schema) Property(name string) (Property, bool) {
	for _, p := range s.Properties() {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

func (s *Schema) compile() (*validator.Schema, error) {
	s.once.Do(func() {
		data, err := json.Marshal(s.doc)
		if err != nil {
			s.err = errors.Wrap(err, "encode schema")
			return
		}
		c := validator.NewCompiler()
		c.Draft = validator.Draft2020
		if err := c.AddResource(resourceURL, bytes.NewReader(data)); err != nil {
			s.err = errors.Wrap(err, "add schema resource")
			return
		}
		s.compiled, s.err = c.Compile(resourceURL)
		if s.err != nil {
			s.err = errors.Wrap(s.err, "compile schema")
		}
	})
	return s.compiled, s.err
}
