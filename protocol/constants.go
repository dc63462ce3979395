package protocol

// MCP protocol version.
const MCPVersion = "2024-11-05"

// MCP method names.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "notifications/initialized"
	MethodToolsList              = "tools/list"
	MethodToolsCall              = "tools/call"
	MethodResourcesList          = "resources/list"
	MethodResourcesTemplatesList = "resources/templates/list"
	MethodResourcesRead          = "resources/read"
	MethodPromptsList            = "prompts/list"
	MethodPromptsGet             = "prompts/get"
	MethodCompletionComplete     = "completion/complete"
	MethodPing                   = "ping"
)

// MCP notification methods.
const (
	MethodProgress            = "notifications/progress"
	MethodCancelled           = "notifications/cancelled"
	MethodResourceListChanged = "notifications/resources/list_changed"
)
