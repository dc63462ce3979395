// Package server holds the capability registry and the request dispatcher.
//
// Capabilities are tools, resources and prompts. Each is registered once
// at startup with a name, an input schema and one of a closed set of
// handler variants; after Seal the registry is read-only and safe for
// concurrent use.
//
//	reg := server.NewRegistry(server.Info{Name: "hjmcpsse", Version: "1.0.0"})
//	err := reg.Tool("calculator").
//	    Description("Evaluate an arithmetic expression").
//	    ReadOnly().
//	    HandleEvaluate(func(ctx context.Context, in server.EvaluateArgs) (*server.Evaluation, error) {
//	        return evaluate(in.Expression)
//	    })
//
// Resources are matched by RFC 6570 URI templates:
//
//	err := reg.Resource("files", "files://{+path}").
//	    URI("files://.").
//	    HandleResolve(resolve)
//
// The Dispatcher resolves an Invocation, applies schema defaults,
// validates arguments and runs the handler. Failures carry a
// protocol.Kind so transports can map them to JSON-RPC error codes.
package server
