// Package codegen composes code templates and code-generation prompts from
// validated parameters. Every function is pure; callers validate languages,
// kinds and styles against Languages, Kinds and Styles first.
package codegen

import (
	_ "embed"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Template kinds.
const (
	KindFunction = "function"
	KindClass    = "class"
	KindScript   = "script"
)

// Prompt styles.
const (
	StyleClean          = "clean"
	StyleFunctional     = "functional"
	StyleObjectOriented = "object-oriented"
)

// Defaults applied when a prompt option is omitted.
const (
	DefaultLanguage = "python"
	DefaultStyle    = StyleClean
	DefaultKind     = KindFunction
)

type language struct {
	Name        string            `yaml:"name"`
	Styles      map[string]string `yaml:"styles"`
	Docs        string            `yaml:"docs"`
	Tests       string            `yaml:"tests"`
	Suggestions []string          `yaml:"suggestions"`
}

type keywordRule struct {
	Match       []string `yaml:"match"`
	Suggestions []string `yaml:"suggestions"`
}

type catalog struct {
	Templates map[string]map[string]string `yaml:"templates"`
	Prompts   map[string]language          `yaml:"prompts"`
	Generic   struct {
		Docs  string `yaml:"docs"`
		Tests string `yaml:"tests"`
	} `yaml:"generic"`
	Closing         []string      `yaml:"closing"`
	Keywords        []keywordRule `yaml:"keywords"`
	TestSuggestions []string      `yaml:"test_suggestions"`
}

var cat = mustLoad(catalogYAML)

func mustLoad(data []byte) *catalog {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		panic("codegen: invalid catalog: " + err.Error())
	}
	return &c
}

// TemplateLanguages returns the languages Compose has templates for.
func TemplateLanguages() []string {
	return sortedKeys(cat.Templates)
}

// PromptLanguages returns the languages ComposePrompt accepts.
func PromptLanguages() []string {
	return sortedKeys(cat.Prompts)
}

// Kinds returns the template kinds.
func Kinds() []string {
	return []string{KindFunction, KindClass, KindScript}
}

// Styles returns the prompt styles.
func Styles() []string {
	return []string{StyleClean, StyleFunctional, StyleObjectOriented}
}

// Compose returns the template text for kind in language.
func Compose(kind, language string) string {
	return cat.Templates[strings.ToLower(language)][kind]
}

// PromptOptions are the inputs of ComposePrompt.
type PromptOptions struct {
	Description  string
	Language     string
	Style        string
	IncludeTests bool
	IncludeDocs  bool
}

// Prompt is a composed code-generation prompt.
type Prompt struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
}

// Render returns the prompt text followed by the suggestions as a bullet list.
func (p Prompt) Render() string {
	if len(p.Suggestions) == 0 {
		return p.Text
	}
	var b strings.Builder
	b.WriteString(p.Text)
	b.WriteString("\n\nAdditional suggestions:")
	for _, s := range p.Suggestions {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}

// ComposePrompt builds a prompt asking for code that matches the description.
func ComposePrompt(opts PromptOptions) Prompt {
	lang := strings.ToLower(opts.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	style := opts.Style
	if style == "" {
		style = DefaultStyle
	}
	l, known := cat.Prompts[lang]
	name := l.Name
	if name == "" {
		name = opts.Language
	}

	parts := []string{"Write " + name + " code that " + opts.Description + "."}
	if line := l.Styles[style]; line != "" {
		parts = append(parts, line)
	}
	if opts.IncludeDocs {
		parts = append(parts, pick(l.Docs, cat.Generic.Docs))
	}
	if opts.IncludeTests {
		parts = append(parts, pick(l.Tests, cat.Generic.Tests))
	}
	parts = append(parts, cat.Closing...)

	suggestions := []string{}
	desc := strings.ToLower(opts.Description)
	for _, rule := range cat.Keywords {
		for _, kw := range rule.Match {
			if strings.Contains(desc, kw) {
				suggestions = append(suggestions, rule.Suggestions...)
				break
			}
		}
	}
	if opts.IncludeTests {
		suggestions = append(suggestions, cat.TestSuggestions...)
	}
	if known {
		suggestions = append(suggestions, l.Suggestions...)
	}

	return Prompt{Text: strings.Join(parts, " "), Suggestions: suggestions}
}

func pick(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
