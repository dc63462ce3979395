package hjmcpsse

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hjlabs/hjmcpsse/middleware"
	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/schema"
	"github.com/hjlabs/hjmcpsse/server"
)

func (s *Server) route(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return s.handleInitialize(req)
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{}), nil
	case protocol.MethodToolsList:
		return s.handleToolsList(req)
	case protocol.MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	case protocol.MethodResourcesList:
		return s.handleResourcesList(req)
	case protocol.MethodResourcesTemplatesList:
		return s.handleResourceTemplatesList(req)
	case protocol.MethodResourcesRead:
		return s.handleResourcesRead(ctx, req)
	case protocol.MethodPromptsList:
		return s.handlePromptsList(req)
	case protocol.MethodPromptsGet:
		return s.handlePromptsGet(ctx, req)
	case protocol.MethodCompletionComplete:
		return s.handleComplete(ctx, req)
	}
	if req.IsNotification() {
		// notifications/initialized and anything else the client tells us.
		return nil, nil
	}
	return nil, protocol.NewMethodNotFound("method not found: " + req.Method)
}

func decodeParams(req *protocol.Request, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return protocol.NewInvalidParams("invalid params: " + err.Error())
	}
	return nil
}

func (s *Server) handleInitialize(req *protocol.Request) (*protocol.Response, error) {
	info := s.registry.Info()
	caps := s.registry.Capabilities()

	capabilities := map[string]any{}
	if caps.Tools {
		capabilities["tools"] = map[string]any{}
	}
	if caps.Resources {
		capabilities["resources"] = map[string]any{"listChanged": caps.ResourcesListChanged}
	}
	if caps.Prompts {
		capabilities["prompts"] = map[string]any{}
	}
	if caps.Completions {
		capabilities["completions"] = map[string]any{}
	}

	return protocol.NewResponse(req.ID, map[string]any{
		"protocolVersion": protocol.MCPVersion,
		"capabilities":    capabilities,
		"serverInfo":      info,
		"instructions":    info.Instructions,
	}), nil
}

func (s *Server) handleToolsList(req *protocol.Request) (*protocol.Response, error) {
	tools := s.registry.List(server.KindTool)
	list := make([]map[string]any, 0, len(tools))
	for _, d := range tools {
		item := map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": d.Input,
		}
		if d.Annotations != nil {
			item["annotations"] = d.Annotations
		}
		list = append(list, item)
	}
	return protocol.NewResponse(req.ID, map[string]any{"tools": list}), nil
}

// dispatch runs one invocation and records it on the request span.
func (s *Server) dispatch(ctx context.Context, inv server.Invocation) server.Result {
	res := s.dispatcher.Handle(ctx, inv)
	name := inv.Name
	if res.Descriptor != nil {
		name = res.Descriptor.Name
	}
	middleware.AddSpanEvent(ctx, "invocation",
		attribute.String("mcp.capability.kind", string(inv.Kind)),
		attribute.String("mcp.capability.name", name),
		attribute.String("mcp.capability.status", string(res.Status)),
	)
	return res
}

func (s *Server) handleToolsCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, protocol.NewInvalidParams("missing tool name")
	}

	res := s.dispatch(ctx, server.Invocation{
		RequestID: req.ID,
		Kind:      server.KindTool,
		Name:      params.Name,
		Arguments: params.Arguments,
	})
	if res.Err != nil {
		return protocol.NewErrorResponse(req.ID, res.Error()), nil
	}

	var text string
	switch p := res.Payload.(type) {
	case *server.Evaluation:
		text = p.Text
	case *server.TemplateText:
		text = p.Text
	}
	return protocol.NewResponse(req.ID, map[string]any{
		"content":           []map[string]any{{"type": "text", "text": text}},
		"structuredContent": res.Payload,
		"isError":           false,
	}), nil
}

func (s *Server) handleResourcesList(req *protocol.Request) (*protocol.Response, error) {
	list := []map[string]any{}
	for _, d := range s.registry.List(server.KindResource) {
		if d.URI == "" {
			continue
		}
		list = append(list, resourceItem(d, "uri", d.URI))
	}
	return protocol.NewResponse(req.ID, map[string]any{"resources": list}), nil
}

func (s *Server) handleResourceTemplatesList(req *protocol.Request) (*protocol.Response, error) {
	list := []map[string]any{}
	for _, d := range s.registry.List(server.KindResource) {
		list = append(list, resourceItem(d, "uriTemplate", d.URITemplate))
	}
	return protocol.NewResponse(req.ID, map[string]any{"resourceTemplates": list}), nil
}

func resourceItem(d *server.Descriptor, key, uri string) map[string]any {
	item := map[string]any{key: uri, "name": d.Name}
	if d.Description != "" {
		item["description"] = d.Description
	}
	if d.MimeType != "" {
		item["mimeType"] = d.MimeType
	}
	return item
}

func (s *Server) handleResourcesRead(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, protocol.NewInvalidParams("missing resource uri")
	}

	res := s.dispatch(ctx, server.Invocation{
		RequestID: req.ID,
		Kind:      server.KindResource,
		URI:       params.URI,
	})
	if res.Err != nil {
		return protocol.NewErrorResponse(req.ID, res.Error()), nil
	}
	return protocol.NewResponse(req.ID, map[string]any{
		"contents": []any{res.Payload},
	}), nil
}

func (s *Server) handlePromptsList(req *protocol.Request) (*protocol.Response, error) {
	prompts := s.registry.List(server.KindPrompt)
	list := make([]map[string]any, 0, len(prompts))
	for _, d := range prompts {
		item := map[string]any{"name": d.Name}
		if d.Description != "" {
			item["description"] = d.Description
		}
		if args := promptArguments(d.Input); len(args) > 0 {
			item["arguments"] = args
		}
		list = append(list, item)
	}
	return protocol.NewResponse(req.ID, map[string]any{"prompts": list}), nil
}

func promptArguments(s *schema.Schema) []map[string]any {
	props := s.Properties()
	args := make([]map[string]any, 0, len(props))
	for _, p := range props {
		arg := map[string]any{"name": p.Name, "required": p.Required}
		if p.Description != "" {
			arg["description"] = p.Description
		}
		args = append(args, arg)
	}
	return args
}

func (s *Server) handlePromptsGet(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, protocol.NewInvalidParams("missing prompt name")
	}

	res := s.dispatch(ctx, server.Invocation{
		RequestID: req.ID,
		Kind:      server.KindPrompt,
		Name:      params.Name,
		Arguments: params.Arguments,
	})
	if res.Err != nil {
		return protocol.NewErrorResponse(req.ID, res.Error()), nil
	}

	result := map[string]any{}
	if res.Descriptor != nil && res.Descriptor.Description != "" {
		result["description"] = res.Descriptor.Description
	}
	var text string
	switch p := res.Payload.(type) {
	case *server.PromptText:
		text = p.Body
		result["_meta"] = map[string]any{"text": p.Text, "suggestions": p.Suggestions}
	case *server.TemplateText:
		text = p.Text
	}
	result["messages"] = []map[string]any{{
		"role":    "user",
		"content": map[string]any{"type": "text", "text": text},
	}}
	return protocol.NewResponse(req.ID, result), nil
}

func (s *Server) handleComplete(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Ref      server.CompletionRef      `json:"ref"`
		Argument server.CompletionArgument `json:"argument"`
	}
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	result, err := s.registry.Complete(ctx, params.Ref, params.Argument)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.FromError(err)), nil
	}
	return protocol.NewResponse(req.ID, map[string]any{"completion": result}), nil
}
