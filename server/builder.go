package server

import "github.com/hjlabs/hjmcpsse/schema"

// Builder assembles a Descriptor with a fluent API. Registration happens
// in one of the Handle methods, which return the registration error.
type Builder struct {
	reg *Registry
	d   *Descriptor
}

// Tool starts a tool registration.
func (r *Registry) Tool(name string) *Builder {
	return &Builder{reg: r, d: &Descriptor{Kind: KindTool, Name: name}}
}

// Resource starts a resource registration addressed by uriTemplate.
func (r *Registry) Resource(name, uriTemplate string) *Builder {
	return &Builder{reg: r, d: &Descriptor{Kind: KindResource, Name: name, URITemplate: uriTemplate}}
}

// Prompt starts a prompt registration.
func (r *Registry) Prompt(name string) *Builder {
	return &Builder{reg: r, d: &Descriptor{Kind: KindPrompt, Name: name}}
}

// Title sets a human-readable title.
func (b *Builder) Title(title string) *Builder {
	b.d.Title = title
	return b
}

// Description sets the description shown in listings.
func (b *Builder) Description(desc string) *Builder {
	b.d.Description = desc
	return b
}

// MimeType sets the default MIME type of a resource.
func (b *Builder) MimeType(mimeType string) *Builder {
	b.d.MimeType = mimeType
	return b
}

// URI sets the concrete resource address advertised by resources/list.
func (b *Builder) URI(uri string) *Builder {
	b.d.URI = uri
	return b
}

// Input overrides the input schema derived from the handler variant.
func (b *Builder) Input(s *schema.Schema) *Builder {
	b.d.Input = s
	return b
}

// Completion sets the argument completion function.
func (b *Builder) Completion(fn CompleteFunc) *Builder {
	b.d.Complete = fn
	return b
}

// HandleEvaluate registers fn as an expression evaluator.
func (b *Builder) HandleEvaluate(fn EvaluateFunc) error {
	return b.register(fn, schema.For[EvaluateArgs])
}

// HandleResolve registers fn as a resource resolver.
func (b *Builder) HandleResolve(fn ResolveFunc) error {
	return b.register(fn, schema.For[ResourceArgs])
}

// HandlePrompt registers fn as a prompt composer.
func (b *Builder) HandlePrompt(fn PromptFunc) error {
	return b.register(fn, schema.For[PromptArgs])
}

// HandleTemplate registers fn as a template composer.
func (b *Builder) HandleTemplate(fn TemplateFunc) error {
	return b.register(fn, schema.For[TemplateArgs])
}

func (b *Builder) register(h Handler, input func() *schema.Schema) error {
	b.d.Handler = h
	if b.d.Input == nil {
		b.d.Input = input()
	}
	return b.reg.Register(b.d)
}
