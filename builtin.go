package hjmcpsse

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/codegen"
	"github.com/hjlabs/hjmcpsse/expr"
	"github.com/hjlabs/hjmcpsse/files"
	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/schema"
	"github.com/hjlabs/hjmcpsse/server"
)

// Built-in capability names.
const (
	ToolCalculator   = "calculator"
	ToolGetTemplate  = "get_template"
	ResourceFiles    = "files"
	PromptCodeGen    = "code_generator"
	FilesURITemplate = "files://{+path}"
	FilesRootURI     = "files://."
)

// RegisterBuiltins adds the calculator and get_template tools, the files
// resource and the code_generator prompt to reg.
func RegisterBuiltins(reg *server.Registry, resolver *files.Resolver) error {
	err := reg.Tool(ToolCalculator).
		Title("Calculator").
		Description("Evaluate a mathematical expression. Supports + - * / % ** and parentheses. "+
			"Constants: "+strings.Join(expr.Constants(), ", ")+". "+
			"Functions: "+strings.Join(expr.Functions(), ", ")+".").
		ReadOnly().
		Idempotent().
		OpenWorld(false).
		HandleEvaluate(calculate)
	if err != nil {
		return err
	}

	err = reg.Tool(ToolGetTemplate).
		Title("Code template").
		Description("Return a code skeleton for a language and template type.").
		Input(schema.For[server.TemplateArgs]().
			Enum("language", codegen.TemplateLanguages()...).
			Enum("template_type", codegen.Kinds()...).
			CaseInsensitive("language")).
		ReadOnly().
		Idempotent().
		OpenWorld(false).
		HandleTemplate(composeTemplate)
	if err != nil {
		return err
	}

	err = reg.Resource(ResourceFiles, FilesURITemplate).
		Title("Files").
		Description("Files and directories under the server root. Directories are listed as JSON; " +
			"text files are returned as text.").
		URI(FilesRootURI).
		Completion(func(ctx context.Context, _, prefix string) ([]string, error) {
			return resolver.Complete(ctx, prefix, server.MaxCompletionValues+1), nil
		}).
		HandleResolve(resolveFile(resolver))
	if err != nil {
		return err
	}

	return reg.Prompt(PromptCodeGen).
		Title("Code generator").
		Description("Compose a prompt asking for code that matches a description.").
		Input(schema.For[server.PromptArgs]().
			Enum("language", codegen.PromptLanguages()...).
			Enum("style", codegen.Styles()...).
			Default("language", codegen.DefaultLanguage).
			Default("style", codegen.DefaultStyle).
			Default("include_tests", false).
			Default("include_docs", true).
			CaseInsensitive("language")).
		HandlePrompt(composePrompt)
}

func calculate(_ context.Context, args server.EvaluateArgs) (*server.Evaluation, error) {
	n, err := expr.Evaluate(args.Expression)
	if err != nil {
		return nil, err
	}
	return &server.Evaluation{
		Expression: args.Expression,
		Result:     n.Value,
		Integer:    n.Integer,
		Text:       n.String(),
	}, nil
}

func composeTemplate(_ context.Context, args server.TemplateArgs) (*server.TemplateText, error) {
	text := codegen.Compose(args.TemplateType, args.Language)
	if text == "" {
		return nil, errors.Wrapf(protocol.ErrNotFound, "no %s template for %s", args.TemplateType, args.Language)
	}
	return &server.TemplateText{
		Language:     args.Language,
		TemplateType: args.TemplateType,
		Text:         text,
	}, nil
}

func composePrompt(_ context.Context, args server.PromptArgs) (*server.PromptText, error) {
	p := codegen.ComposePrompt(codegen.PromptOptions{
		Description:  args.Description,
		Language:     args.Language,
		Style:        args.Style,
		IncludeTests: args.IncludeTests,
		IncludeDocs:  args.IncludeDocs,
	})
	return &server.PromptText{Text: p.Text, Suggestions: p.Suggestions, Body: p.Render()}, nil
}

// resolveFile lists directories as JSON and returns files as text, or a
// marker for binary content.
func resolveFile(resolver *files.Resolver) server.ResolveFunc {
	return func(ctx context.Context, uri string, args server.ResourceArgs) (*server.ResourceContent, error) {
		isDir, err := resolver.Stat(ctx, args.Path)
		if err != nil {
			return nil, err
		}

		if isDir {
			listing, err := resolver.List(ctx, args.Path)
			if err != nil {
				return nil, err
			}
			data, err := json.MarshalIndent(listing, "", "  ")
			if err != nil {
				return nil, errors.Wrap(err, "encode listing")
			}
			return &server.ResourceContent{URI: uri, MimeType: "application/json", Text: string(data)}, nil
		}

		content, err := resolver.Read(ctx, args.Path)
		if err != nil {
			return nil, err
		}
		if content.Binary {
			return &server.ResourceContent{URI: uri, MimeType: "text/plain", Text: content.Marker()}, nil
		}
		return &server.ResourceContent{URI: uri, MimeType: content.MimeType, Text: content.Text}, nil
	}
}
