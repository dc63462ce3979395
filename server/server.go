package server

import (
	"context"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/yosida95/uritemplate/v3"

	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/schema"
)

// Kind identifies the family a capability belongs to.
type Kind string

// Capability kinds.
const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

var (
	// ErrDuplicateCapability is returned when a (kind, name) pair is
	// registered twice.
	ErrDuplicateCapability = errors.New("duplicate capability")
	// ErrSealed is returned by Register after Seal.
	ErrSealed = errors.New("registry is sealed")
)

// Info contains server identification.
type Info struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Instructions string `json:"-"`
}

// Capabilities describes what the registry offers to clients.
type Capabilities struct {
	Tools                bool
	Resources            bool
	ResourcesListChanged bool
	Prompts              bool
	Completions          bool
}

// CompleteFunc proposes values for one argument of a capability.
type CompleteFunc func(ctx context.Context, arg, prefix string) ([]string, error)

// Descriptor is an immutable capability entry.
type Descriptor struct {
	Kind        Kind
	Name        string
	Title       string
	Description string

	// URITemplate and MimeType apply to resources. URI, when set, is the
	// concrete address advertised by resources/list.
	URITemplate string
	URI         string
	MimeType    string

	Input       *schema.Schema
	Annotations *ToolAnnotations
	Handler     Handler
	Complete    CompleteFunc

	template *uritemplate.Template
}

type key struct {
	kind Kind
	name string
}

// Registry holds every capability the server exposes. It is populated
// once at startup and sealed before the first connection is accepted;
// after that it is read-only and safe for concurrent use.
type Registry struct {
	info    Info
	entries map[key]*Descriptor
	byKind  map[Kind][]*Descriptor
	sealed  bool

	listChanged bool
}

// NewRegistry creates an empty registry.
func NewRegistry(info Info) *Registry {
	return &Registry{
		info:    info,
		entries: make(map[key]*Descriptor),
		byKind:  make(map[Kind][]*Descriptor),
	}
}

// Info returns the server info.
func (r *Registry) Info() Info {
	return r.info
}

// EnableListChanged advertises resources/list_changed notifications.
func (r *Registry) EnableListChanged() {
	r.listChanged = true
}

// Capabilities derives the advertised capabilities from the entries.
func (r *Registry) Capabilities() Capabilities {
	caps := Capabilities{
		Tools:                len(r.byKind[KindTool]) > 0,
		Resources:            len(r.byKind[KindResource]) > 0,
		ResourcesListChanged: r.listChanged,
		Prompts:              len(r.byKind[KindPrompt]) > 0,
	}
	caps.Completions = caps.Prompts || caps.Resources
	return caps
}

// Register adds a descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if r.sealed {
		return errors.Wrapf(ErrSealed, "register %s %q", d.Kind, d.Name)
	}
	if d.Name == "" {
		return errors.Newf("%s name is required", d.Kind)
	}
	if d.Handler == nil {
		return errors.Newf("%s %q has no handler", d.Kind, d.Name)
	}
	if _, ok := d.Handler.(ResolveFunc); ok != (d.Kind == KindResource) {
		return errors.Newf("%s %q: handler %s does not fit kind", d.Kind, d.Name, d.Handler.variant())
	}
	if d.Kind == KindResource {
		tmpl, err := uritemplate.New(d.URITemplate)
		if err != nil {
			return errors.Wrapf(err, "resource %q: uri template", d.Name)
		}
		d.template = tmpl
	}
	if d.Input == nil {
		d.Input = schema.Object()
	}

	k := key{d.Kind, d.Name}
	if _, ok := r.entries[k]; ok {
		return errors.Wrapf(ErrDuplicateCapability, "%s %q", d.Kind, d.Name)
	}
	r.entries[k] = d
	list := append(r.byKind[d.Kind], d)
	slices.SortFunc(list, func(a, b *Descriptor) int { return strings.Compare(a.Name, b.Name) })
	r.byKind[d.Kind] = list
	return nil
}

// Seal ends registration.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Lookup finds the descriptor for (kind, name).
func (r *Registry) Lookup(kind Kind, name string) (*Descriptor, error) {
	d, ok := r.entries[key{kind, name}]
	if !ok {
		return nil, errors.Mark(errors.Newf("unknown %s: %s", kind, name), protocol.ErrUnknownCapability)
	}
	return d, nil
}

// List returns the descriptors of one kind ordered by name.
func (r *Registry) List(kind Kind) []*Descriptor {
	return slices.Clone(r.byKind[kind])
}

// MatchResource finds the resource whose URI template matches uri and
// returns the extracted template variables.
func (r *Registry) MatchResource(uri string) (*Descriptor, map[string]any, error) {
	for _, d := range r.byKind[KindResource] {
		values := d.template.Match(uri)
		if values == nil {
			continue
		}
		params := make(map[string]any, len(d.template.Varnames()))
		for _, name := range d.template.Varnames() {
			if v := values.Get(name); v.Valid() {
				params[name] = v.String()
			}
		}
		return d, params, nil
	}
	return nil, nil, errors.Mark(errors.Newf("unknown resource: %s", uri), protocol.ErrUnknownCapability)
}
