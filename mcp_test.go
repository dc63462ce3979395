package hjmcpsse_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hjlabs/hjmcpsse"
	"github.com/hjlabs/hjmcpsse/config"
	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/testutil"
)

func newRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(name string, data []byte) {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("hello.txt", []byte("hello world"))
	write("src/main.go", []byte("package main\n"))
	write("data.bin", []byte{0x00, 0x01, 0x02, 0xff})
	return root
}

func newServer(t *testing.T, mutate ...func(*config.Config)) *hjmcpsse.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Root = newRoot(t)
	cfg.Metrics.Enabled = false
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := hjmcpsse.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func newClient(t *testing.T, mutate ...func(*config.Config)) *testutil.TestClient {
	t.Helper()
	return testutil.NewTestClient(t, newServer(t, mutate...).Handle)
}

func wantCode(t *testing.T, err error, code int) {
	t.Helper()
	perr, ok := err.(*protocol.Error)
	if !ok {
		t.Fatalf("err = %v (%T), want *protocol.Error", err, err)
	}
	if perr.Code != code {
		t.Errorf("Code = %d, want %d (message %q)", perr.Code, code, perr.Message)
	}
}

func TestNew(t *testing.T) {
	srv := newServer(t)

	if srv.Gatherer() != nil {
		t.Error("Gatherer() should be nil with metrics disabled")
	}
	if info := srv.Registry().Info(); info.Name != hjmcpsse.Name {
		t.Errorf("Name = %q, want %q", info.Name, hjmcpsse.Name)
	}
	if srv.Hub().Len() != 0 {
		t.Errorf("Hub().Len() = %d, want 0", srv.Hub().Len())
	}
}

func TestNew_MissingRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Root = filepath.Join(t.TempDir(), "missing")
	if _, err := hjmcpsse.New(cfg); err == nil {
		t.Error("New() should fail for a missing root")
	}
}

func TestNew_Metrics(t *testing.T) {
	srv := newServer(t, func(c *config.Config) { c.Metrics.Enabled = true })
	if srv.Gatherer() == nil {
		t.Fatal("Gatherer() should not be nil with metrics enabled")
	}

	tc := testutil.NewTestClient(t, srv.Handle)
	if _, err := tc.CallTool(hjmcpsse.ToolCalculator, map[string]any{"expression": "1 + 1"}); err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}

	families, err := srv.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "hjmcpsse_invocations_total" {
			found = true
		}
	}
	if !found {
		t.Error("hjmcpsse_invocations_total not gathered")
	}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		watch       bool
		listChanged bool
	}{
		{"static", false, false},
		{"watching", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newClient(t, func(c *config.Config) { c.Files.Watch = tt.watch })
			result, err := tc.Initialize()
			if err != nil {
				t.Fatalf("Initialize failed: %v", err)
			}
			if result["protocolVersion"] != protocol.MCPVersion {
				t.Errorf("protocolVersion = %v, want %s", result["protocolVersion"], protocol.MCPVersion)
			}
			info, _ := result["serverInfo"].(map[string]any)
			if info["name"] != hjmcpsse.Name {
				t.Errorf("serverInfo.name = %v, want %s", info["name"], hjmcpsse.Name)
			}
			caps, _ := result["capabilities"].(map[string]any)
			for _, key := range []string{"tools", "resources", "prompts", "completions"} {
				if _, ok := caps[key]; !ok {
					t.Errorf("capability %q missing", key)
				}
			}
			resources, _ := caps["resources"].(map[string]any)
			if resources["listChanged"] != tt.listChanged {
				t.Errorf("listChanged = %v, want %v", resources["listChanged"], tt.listChanged)
			}
			if result["instructions"] != hjmcpsse.Instructions {
				t.Errorf("instructions = %v", result["instructions"])
			}
		})
	}
}

func TestPingAndNotifications(t *testing.T) {
	srv := newServer(t)
	tc := testutil.NewTestClient(t, srv.Handle)
	if err := tc.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	resp, err := srv.Handle(context.Background(), &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  protocol.MethodInitialized,
	})
	if err != nil || resp != nil {
		t.Errorf("notification = (%v, %v), want (nil, nil)", resp, err)
	}
}

func TestUnknownMethod(t *testing.T) {
	tc := newClient(t)
	resp, err := tc.SendRequest("tools/unknown", nil)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Errorf("Error = %v, want method not found", resp.Error)
	}
}

func TestToolsList(t *testing.T) {
	tc := newClient(t)
	tools, err := tc.ListTools()
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("len(tools) = %d, want 2", len(tools))
	}

	byName := map[string]map[string]any{}
	for _, tool := range tools {
		byName[tool["name"].(string)] = tool
	}

	calc, ok := byName[hjmcpsse.ToolCalculator]
	if !ok {
		t.Fatal("calculator not listed")
	}
	schema, _ := calc["inputSchema"].(map[string]any)
	props, _ := schema["properties"].(map[string]any)
	if _, ok := props["expression"]; !ok {
		t.Errorf("calculator inputSchema lacks expression: %v", schema)
	}
	ann, _ := calc["annotations"].(map[string]any)
	if ann["readOnlyHint"] != true {
		t.Errorf("readOnlyHint = %v, want true", ann["readOnlyHint"])
	}

	tmpl := byName[hjmcpsse.ToolGetTemplate]
	schema, _ = tmpl["inputSchema"].(map[string]any)
	props, _ = schema["properties"].(map[string]any)
	lang, _ := props["language"].(map[string]any)
	if enum, _ := lang["enum"].([]any); len(enum) == 0 {
		t.Errorf("language enum missing: %v", lang)
	}
}

func TestCalculator(t *testing.T) {
	tc := newClient(t)

	tests := []struct {
		expression string
		want       string
	}{
		{"2 + 3", "5"},
		{"2 ** 3 ** 2", "512"},
		{"10 / 4", "2.5"},
		{"sqrt(16)", "4.0"},
		{"round(pi, 2)", "3.14"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			result, err := tc.CallToolResult(hjmcpsse.ToolCalculator, map[string]any{"expression": tt.expression})
			if err != nil {
				t.Fatalf("CallTool failed: %v", err)
			}
			text, _ := result.Text()
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
			if result.StructuredContent["expression"] != tt.expression {
				t.Errorf("structuredContent = %v", result.StructuredContent)
			}
		})
	}
}

func TestCalculator_Errors(t *testing.T) {
	tc := newClient(t)

	tests := []struct {
		name string
		args map[string]any
		code int
	}{
		{"division by zero", map[string]any{"expression": "1 / 0"}, protocol.CodeDivisionByZero},
		{"unsafe", map[string]any{"expression": "__import__('os')"}, protocol.CodeUnsafeExpression},
		{"undefined", map[string]any{"expression": "x + 1"}, protocol.CodeUndefinedVariable},
		{"syntax", map[string]any{"expression": "2 +"}, protocol.CodeInvalidParams},
		{"missing argument", map[string]any{}, protocol.CodeInvalidParams},
		{"domain", map[string]any{"expression": "sqrt(-1)"}, protocol.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.CallTool(hjmcpsse.ToolCalculator, tt.args)
			wantCode(t, err, tt.code)
		})
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	tc := newClient(t)
	_, err := tc.CallTool("nope", nil)
	wantCode(t, err, protocol.CodeUnknownCapability)

	_, err = tc.CallTool("", nil)
	wantCode(t, err, protocol.CodeInvalidParams)
}

func TestToolsCall_InvalidParams(t *testing.T) {
	tc := newClient(t)
	resp, err := tc.SendRequest(protocol.MethodToolsCall, []int{1, 2})
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Errorf("Error = %v, want invalid params", resp.Error)
	}
}

func TestGetTemplate(t *testing.T) {
	tc := newClient(t)

	text, err := tc.CallTool(hjmcpsse.ToolGetTemplate, map[string]any{
		"language":      "python",
		"template_type": "function",
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !strings.Contains(text, "def {function_name}") {
		t.Errorf("text = %q, want a python function skeleton", text)
	}

	text, err = tc.CallTool(hjmcpsse.ToolGetTemplate, map[string]any{
		"language":      "Python",
		"template_type": "function",
	})
	if err != nil {
		t.Fatalf("CallTool with mixed-case language failed: %v", err)
	}
	if !strings.Contains(text, "def {function_name}") {
		t.Errorf("text = %q, want a python function skeleton", text)
	}

	_, err = tc.CallTool(hjmcpsse.ToolGetTemplate, map[string]any{
		"language":      "cobol",
		"template_type": "function",
	})
	wantCode(t, err, protocol.CodeInvalidParams)
}

func TestResources(t *testing.T) {
	tc := newClient(t)

	tc.AssertResourceExists(hjmcpsse.FilesRootURI)

	templates, err := tc.ListResourceTemplates()
	if err != nil {
		t.Fatalf("ListResourceTemplates failed: %v", err)
	}
	if len(templates) != 1 || templates[0]["uriTemplate"] != hjmcpsse.FilesURITemplate {
		t.Errorf("templates = %v", templates)
	}
}

func TestReadResource(t *testing.T) {
	tc := newClient(t)

	t.Run("text file", func(t *testing.T) {
		c, err := tc.ReadResource("files://hello.txt")
		if err != nil {
			t.Fatalf("ReadResource failed: %v", err)
		}
		if c.Text != "hello world" {
			t.Errorf("Text = %q, want %q", c.Text, "hello world")
		}
		if c.URI != "files://hello.txt" {
			t.Errorf("URI = %q", c.URI)
		}
		if !strings.HasPrefix(c.MimeType, "text/plain") {
			t.Errorf("MimeType = %q, want text/plain", c.MimeType)
		}
	})

	t.Run("directory", func(t *testing.T) {
		c, err := tc.ReadResource(hjmcpsse.FilesRootURI)
		if err != nil {
			t.Fatalf("ReadResource failed: %v", err)
		}
		if c.MimeType != "application/json" {
			t.Errorf("MimeType = %q, want application/json", c.MimeType)
		}
		var listing struct {
			Directories []string `json:"directories"`
			Files       []struct {
				Name string `json:"name"`
			} `json:"files"`
		}
		if err := json.Unmarshal([]byte(c.Text), &listing); err != nil {
			t.Fatalf("listing is not JSON: %v", err)
		}
		if len(listing.Directories) != 1 || listing.Directories[0] != "src" {
			t.Errorf("Directories = %v, want [src]", listing.Directories)
		}
		if len(listing.Files) != 2 {
			t.Errorf("Files = %v, want 2 entries", listing.Files)
		}
	})

	t.Run("nested file", func(t *testing.T) {
		c, err := tc.ReadResource("files://src/main.go")
		if err != nil {
			t.Fatalf("ReadResource failed: %v", err)
		}
		if c.Text != "package main\n" {
			t.Errorf("Text = %q", c.Text)
		}
	})

	t.Run("binary file", func(t *testing.T) {
		c, err := tc.ReadResource("files://data.bin")
		if err != nil {
			t.Fatalf("ReadResource failed: %v", err)
		}
		if !strings.Contains(c.Text, "Binary file (4 bytes)") {
			t.Errorf("Text = %q, want binary marker", c.Text)
		}
	})

	errorTests := []struct {
		name string
		uri  string
		code int
	}{
		{"traversal", "files://../outside.txt", protocol.CodeAccessDenied},
		{"missing", "files://missing.txt", protocol.CodeNotFound},
		{"unknown scheme", "http://example.com/x", protocol.CodeUnknownCapability},
	}
	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.ReadResource(tt.uri)
			wantCode(t, err, tt.code)
		})
	}
}

func TestPrompts(t *testing.T) {
	tc := newClient(t)

	prompts, err := tc.ListPrompts()
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if len(prompts) != 1 || prompts[0]["name"] != hjmcpsse.PromptCodeGen {
		t.Fatalf("prompts = %v", prompts)
	}
	args, _ := prompts[0]["arguments"].([]any)
	required := map[string]bool{}
	for _, a := range args {
		m := a.(map[string]any)
		required[m["name"].(string)] = m["required"].(bool)
	}
	if !required["description"] {
		t.Errorf("description should be required: %v", required)
	}
	if required["language"] {
		t.Errorf("language should be optional: %v", required)
	}

	result, err := tc.GetPrompt(hjmcpsse.PromptCodeGen, map[string]any{
		"description": "reverses a string",
		"language":    "go",
	})
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	messages, _ := result["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %v", result["messages"])
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" {
		t.Errorf("role = %v, want user", msg["role"])
	}
	content := msg["content"].(map[string]any)
	text, _ := content["text"].(string)
	if !strings.Contains(text, "reverses a string") {
		t.Errorf("text = %q, want the description", text)
	}

	_, err = tc.GetPrompt(hjmcpsse.PromptCodeGen, map[string]any{})
	wantCode(t, err, protocol.CodeInvalidParams)

	_, err = tc.GetPrompt("missing", nil)
	wantCode(t, err, protocol.CodeUnknownCapability)
}

func TestComplete(t *testing.T) {
	tc := newClient(t)

	got, err := tc.Complete("ref/prompt", hjmcpsse.PromptCodeGen, "style", "f")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(got.Values) != 1 || got.Values[0] != "functional" {
		t.Errorf("Values = %v, want [functional]", got.Values)
	}

	got, err = tc.Complete("ref/resource", hjmcpsse.FilesURITemplate, "path", "s")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(got.Values) != 1 || got.Values[0] != "src/" {
		t.Errorf("Values = %v, want [src/]", got.Values)
	}

	_, err = tc.Complete("ref/unknown", "x", "y", "z")
	wantCode(t, err, protocol.CodeInvalidParams)
}

func TestSessionConcurrency(t *testing.T) {
	srv := newServer(t)
	c := testutil.NewSessionClient(t, srv.Handle)

	const n = 20
	for i := 1; i <= n; i++ {
		err := c.Send(i, protocol.MethodToolsCall, map[string]any{
			"name":      hjmcpsse.ToolCalculator,
			"arguments": map[string]any{"expression": "2 * 21"},
		})
		if err != nil {
			t.Fatalf("Send(%d) failed: %v", i, err)
		}
	}
	got := c.Responses(n)
	if len(got) != n {
		t.Fatalf("got %d responses, want %d", len(got), n)
	}
	for id, f := range got {
		if f.Error != nil {
			t.Errorf("id %s: %v", id, f.Error)
		}
	}
}
