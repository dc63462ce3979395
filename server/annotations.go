package server

// ToolAnnotations provides metadata hints about tool behavior.
// These help clients understand what a tool does without calling it.
type ToolAnnotations struct {
	// Title is a human-readable title for the tool.
	Title string `json:"title,omitempty"`

	// ReadOnlyHint indicates the tool only reads data (no side effects).
	// Default: false (tool might modify state)
	ReadOnlyHint *bool `json:"readOnlyHint,omitempty"`

	// DestructiveHint indicates the tool might make destructive changes.
	// Default: true (tools are assumed potentially destructive)
	DestructiveHint *bool `json:"destructiveHint,omitempty"`

	// IdempotentHint indicates calling the tool multiple times has the same
	// effect as calling it once (for the same input).
	IdempotentHint *bool `json:"idempotentHint,omitempty"`

	// OpenWorldHint indicates the tool interacts with systems outside the
	// server process.
	OpenWorldHint *bool `json:"openWorldHint,omitempty"`
}

// Bool returns a pointer to a bool value for use in annotations.
func Bool(v bool) *bool {
	return &v
}

func (b *Builder) annotations() *ToolAnnotations {
	if b.d.Annotations == nil {
		b.d.Annotations = &ToolAnnotations{}
	}
	return b.d.Annotations
}

// ReadOnly marks the capability as free of side effects.
func (b *Builder) ReadOnly() *Builder {
	a := b.annotations()
	a.ReadOnlyHint = Bool(true)
	a.DestructiveHint = Bool(false)
	return b
}

// Idempotent marks the capability as idempotent.
func (b *Builder) Idempotent() *Builder {
	b.annotations().IdempotentHint = Bool(true)
	return b
}

// OpenWorld sets whether the capability reaches outside the server.
func (b *Builder) OpenWorld(open bool) *Builder {
	b.annotations().OpenWorldHint = Bool(open)
	return b
}
