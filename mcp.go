// Package hjmcpsse is an MCP server exposing a calculator, a code template
// tool, a root-confined files resource and a code-generation prompt over
// SSE, WebSocket or stdio.
//
// Basic usage:
//
//	cfg, err := config.Load(config.Options{File: "hjmcpsse.yaml"})
//	if err != nil { ... }
//	srv, err := hjmcpsse.New(*cfg, hjmcpsse.WithLogger(logger))
//	if err != nil { ... }
//	err = srv.Serve(ctx)
//
// Every connection is a session; requests on one session run
// concurrently and their responses leave in completion order.
package hjmcpsse

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/config"
	"github.com/hjlabs/hjmcpsse/files"
	"github.com/hjlabs/hjmcpsse/metrics"
	"github.com/hjlabs/hjmcpsse/middleware"
	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/server"
	"github.com/hjlabs/hjmcpsse/session"
)

// Name is the server name reported by initialize.
const Name = "hjmcpsse"

// Version is the build version, set with -ldflags.
var Version = "dev"

// Instructions are returned by initialize.
const Instructions = "Use the calculator tool for arithmetic, get_template for code skeletons, " +
	"the files resource (files://.) to browse the server root and the code_generator prompt to draft code."

// Option configures a Server.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	version    string
	registerer *prometheus.Registry
	middleware []middleware.Middleware
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithVersion overrides the reported version.
func WithVersion(v string) Option {
	return func(o *options) {
		o.version = v
	}
}

// WithPrometheusRegistry sets the registry metrics are recorded in and
// served from.
func WithPrometheusRegistry(r *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithMiddleware appends middleware after the default stack.
func WithMiddleware(m ...middleware.Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, m...)
	}
}

// Server wires the registry, dispatcher, sessions and request pipeline.
type Server struct {
	cfg        config.Config
	logger     *zap.Logger
	resolver   *files.Resolver
	registry   *server.Registry
	dispatcher *server.Dispatcher
	hub        *session.Hub
	handler    middleware.HandlerFunc
	prom       *prometheus.Registry
}

// New builds a server from cfg. The registry is sealed before New returns.
func New(cfg config.Config, opts ...Option) (*Server, error) {
	o := &options{logger: zap.NewNop(), version: Version}
	for _, opt := range opts {
		opt(o)
	}

	resolver, err := files.New(cfg.Root,
		files.WithMaxSize(cfg.Files.MaxSize),
		files.WithLogger(o.logger.Named("files")),
	)
	if err != nil {
		return nil, err
	}

	reg := server.NewRegistry(server.Info{Name: Name, Version: o.version, Instructions: Instructions})
	if err := RegisterBuiltins(reg, resolver); err != nil {
		return nil, err
	}
	if cfg.Files.Watch {
		reg.EnableListChanged()
	}
	reg.Seal()

	s := &Server{
		cfg:      cfg,
		logger:   o.logger,
		resolver: resolver,
		registry: reg,
	}

	dispatchOpts := []server.DispatcherOption{server.WithLogger(o.logger.Named("dispatch"))}
	var sessionObserver session.Observer
	if cfg.Metrics.Enabled {
		s.prom = o.registerer
		if s.prom == nil {
			s.prom = prometheus.NewRegistry()
			s.prom.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		collector := metrics.New(s.prom)
		dispatchOpts = append(dispatchOpts, server.WithObserver(collector))
		sessionObserver = collector
	}
	s.dispatcher = server.NewDispatcher(reg, dispatchOpts...)
	s.hub = session.NewHub(o.logger.Named("session"), sessionObserver)

	stack := []middleware.Middleware{
		middleware.Recover(o.logger),
		middleware.CorrelationID(),
		middleware.OTel(middleware.WithOTelServiceName(Name), middleware.WithOTelVersion(o.version)),
		middleware.Logging(o.logger.Named("rpc")),
		middleware.RateLimit(cfg.Limits.Rate, cfg.Limits.Burst, middleware.WithRateLimitLogger(o.logger)),
		middleware.SizeLimit(cfg.Limits.MaxRequestBytes, o.logger),
	}
	stack = append(stack, o.middleware...)
	s.handler = middleware.Chain(stack...)(s.route)

	return s, nil
}

// Handle serves one request through the middleware stack. It is the
// session handler for every transport.
func (s *Server) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return s.handler(ctx, req)
}

// Registry returns the sealed capability registry.
func (s *Server) Registry() *server.Registry {
	return s.registry
}

// Hub returns the live sessions.
func (s *Server) Hub() *session.Hub {
	return s.hub
}

// Gatherer returns the metrics registry, or nil when metrics are disabled.
func (s *Server) Gatherer() prometheus.Gatherer {
	if s.prom == nil {
		return nil
	}
	return s.prom
}
