// Package schema builds JSON Schemas for capability arguments and validates
// arguments against them.
//
// Schemas are reflected from Go argument structs with
// github.com/invopop/jsonschema and compiled lazily with
// github.com/santhosh-tekuri/jsonschema/v5 (draft 2020-12):
//
//	type Args struct {
//	    Expression string `json:"expression" jsonschema:"minLength=1,description=Expression to evaluate"`
//	    Digits     int    `json:"digits,omitempty"`
//	}
//
//	s := schema.For[Args]()
//	err := s.Validate(map[string]any{"expression": ""})
//	// err names the first offending field and is marked protocol.ErrInvalidArguments
//
// Fields without omitempty are required. Unknown properties are rejected.
// Enum and Default adjust a property before the schema is first used.
package schema
