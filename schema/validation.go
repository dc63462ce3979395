package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	validator "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// ValidationError describes the first argument that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid arguments: " + e.Message
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Message)
}

// InvalidField names the offending argument.
func (e *ValidationError) InvalidField() string { return e.Field }

func invalid(field, msg string) error {
	return errors.Mark(&ValidationError{Field: field, Message: msg}, protocol.ErrInvalidArguments)
}

// Validate checks args against the schema. A nil map is an empty object.
func (s *Schema) Validate(args map[string]any) error {
	compiled, err := s.compile()
	if err != nil {
		return err
	}
	if args == nil {
		args = map[string]any{}
	}
	err = compiled.Validate(map[string]any(args))
	if err == nil {
		return nil
	}
	var ve *validator.ValidationError
	if !errors.As(err, &ve) {
		return errors.Wrap(err, "validate arguments")
	}
	leaf := firstLeaf(ve)
	return invalid(fieldOf(leaf), leaf.Message)
}

// firstLeaf returns the most specific failure, preferring the lowest
// instance location so the result does not depend on map iteration order.
func firstLeaf(ve *validator.ValidationError) *validator.ValidationError {
	var leaves []*validator.ValidationError
	var walk func(*validator.ValidationError)
	walk = func(e *validator.ValidationError) {
		if len(e.Causes) == 0 {
			leaves = append(leaves, e)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(leaves, func(i, j int) bool {
		if leaves[i].InstanceLocation != leaves[j].InstanceLocation {
			return leaves[i].InstanceLocation < leaves[j].InstanceLocation
		}
		return leaves[i].KeywordLocation < leaves[j].KeywordLocation
	})
	return leaves[0]
}

var quoted = regexp.MustCompile(`'([^']+)'`)

// fieldOf names the property a failure is about. Failures reported on the
// object itself (missing or unexpected properties) quote the property name.
func fieldOf(e *validator.ValidationError) string {
	loc := strings.TrimLeft(e.InstanceLocation, "#/")
	if loc != "" {
		return strings.ReplaceAll(loc, "/", ".")
	}
	if m := quoted.FindStringSubmatch(e.Message); m != nil {
		return m[1]
	}
	return ""
}

// Coerce converts string values of boolean, integer and number properties
// into their typed form. Values that do not parse are left for Validate to
// reject.
func (s *Schema) Coerce(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
		str, ok := v.(string)
		if !ok {
			continue
		}
		p, ok := s.prop(k)
		if !ok {
			continue
		}
		switch p.Type {
		case TypeBoolean:
			if b, err := strconv.ParseBool(str); err == nil {
				out[k] = b
			}
		case TypeInteger, TypeNumber:
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				out[k] = f
			}
		}
	}
	return out
}

// ApplyDefaults fills omitted properties that declare a default.
func (s *Schema) ApplyDefaults(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, p := range s.Properties() {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// Normalize lower-cases the string values of case-insensitive properties.
func (s *Schema) Normalize(args map[string]any) map[string]any {
	if len(s.folded) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if str, ok := v.(string); ok && s.folded[k] {
			v = strings.ToLower(str)
		}
		out[k] = v
	}
	return out
}

// Decode converts validated args into the argument struct v points to.
func Decode(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, "encode arguments")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return invalid("", err.Error())
	}
	return nil
}
