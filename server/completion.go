package server

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// MaxCompletionValues is the most values one completion response carries.
const MaxCompletionValues = 100

// Completion reference types.
const (
	RefPrompt   = "ref/prompt"
	RefResource = "ref/resource"
)

// CompletionRef identifies what is being completed.
type CompletionRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// CompletionArgument is the argument being completed.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompletionResult contains completion suggestions.
type CompletionResult struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// Complete proposes values for an argument of a prompt or resource.
// Prompt arguments complete from their schema enum; resource arguments
// use the resource's completion function.
func (r *Registry) Complete(ctx context.Context, ref CompletionRef, arg CompletionArgument) (*CompletionResult, error) {
	d, err := r.completionTarget(ref)
	if err != nil {
		return nil, err
	}

	var values []string
	if p, ok := d.Input.Property(arg.Name); ok && len(p.Enum) > 0 {
		for _, v := range p.Enum {
			if strings.HasPrefix(v, arg.Value) {
				values = append(values, v)
			}
		}
	} else if d.Complete != nil {
		values, err = d.Complete(ctx, arg.Name, arg.Value)
		if err != nil {
			return nil, err
		}
	}

	res := &CompletionResult{Values: []string{}, Total: len(values)}
	if len(values) > MaxCompletionValues {
		values = values[:MaxCompletionValues]
		res.HasMore = true
	}
	res.Values = append(res.Values, values...)
	return res, nil
}

func (r *Registry) completionTarget(ref CompletionRef) (*Descriptor, error) {
	switch ref.Type {
	case RefPrompt:
		return r.Lookup(KindPrompt, ref.Name)
	case RefResource:
		for _, d := range r.byKind[KindResource] {
			if d.URITemplate == ref.URI || d.URI == ref.URI {
				return d, nil
			}
		}
		d, _, err := r.MatchResource(ref.URI)
		return d, err
	default:
		return nil, errors.Mark(errors.Newf("unsupported completion reference: %q", ref.Type), protocol.ErrInvalidArguments)
	}
}
