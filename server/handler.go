package server

import "context"

// Handler is the behavior attached to a capability. The set of variants
// is closed: EvaluateFunc, ResolveFunc, PromptFunc and TemplateFunc.
type Handler interface {
	variant() string
}

// EvaluateArgs are the arguments of an expression evaluation.
type EvaluateArgs struct {
	Expression string `json:"expression" jsonschema:"minLength=1,maxLength=4096,description=Mathematical expression to evaluate"`
}

// Evaluation is the outcome of an expression evaluation.
type Evaluation struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
	Integer    bool    `json:"integer"`
	// Text is the canonical rendering of Result.
	Text string `json:"-"`
}

// ResourceArgs carries the variables extracted from a resource URI.
type ResourceArgs struct {
	Path string `json:"path" jsonschema:"description=Path relative to the server root"`
}

// ResourceContent is the body of a resolved resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// PromptArgs are the arguments of a code-generation prompt.
type PromptArgs struct {
	Description  string `json:"description" jsonschema:"minLength=1,description=What the code should do"`
	Language     string `json:"language,omitempty" jsonschema:"description=Target programming language"`
	Style        string `json:"style,omitempty" jsonschema:"description=Coding style"`
	IncludeTests bool   `json:"include_tests,omitempty" jsonschema:"description=Ask for unit tests"`
	IncludeDocs  bool   `json:"include_docs,omitempty" jsonschema:"description=Ask for documentation"`
}

// PromptText is a composed prompt.
type PromptText struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
	// Body is the message presented to the client.
	Body string `json:"-"`
}

// TemplateArgs select a code skeleton.
type TemplateArgs struct {
	Language     string `json:"language" jsonschema:"description=Programming language"`
	TemplateType string `json:"template_type" jsonschema:"description=Kind of skeleton"`
}

// TemplateText is a selected code skeleton.
type TemplateText struct {
	Language     string `json:"language"`
	TemplateType string `json:"template_type"`
	Text         string `json:"text"`
}

// EvaluateFunc evaluates a mathematical expression.
type EvaluateFunc func(ctx context.Context, args EvaluateArgs) (*Evaluation, error)

// ResolveFunc resolves a resource URI.
type ResolveFunc func(ctx context.Context, uri string, args ResourceArgs) (*ResourceContent, error)

// PromptFunc composes a code-generation prompt.
type PromptFunc func(ctx context.Context, args PromptArgs) (*PromptText, error)

// TemplateFunc selects a code template.
type TemplateFunc func(ctx context.Context, args TemplateArgs) (*TemplateText, error)

func (EvaluateFunc) variant() string { return "Evaluate" }
func (ResolveFunc) variant() string  { return "ResolveResource" }
func (PromptFunc) variant() string   { return "ComposePrompt" }
func (TemplateFunc) variant() string { return "ComposeTemplate" }
