package hjmcpsse

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse/config"
	"github.com/hjlabs/hjmcpsse/files"
	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/transport"
)

// Transport builds the transport selected by the configuration.
func (s *Server) Transport() (transport.Transport, error) {
	sessions := transport.NewSessions(s.Handle, s.hub, s.logger.Named("session"))
	log := s.logger.Named("transport")

	switch s.cfg.Transport {
	case config.TransportStdio:
		return transport.NewStdio(sessions,
			transport.WithMaxLineSize(int(s.cfg.Limits.MaxRequestBytes)),
			transport.WithCloseTimeout(s.cfg.Shutdown.Timeout),
			transport.WithStdioLogger(log),
		), nil
	case config.TransportSSE, config.TransportWebSocket:
	default:
		return nil, errors.Newf("unknown transport %q", s.cfg.Transport)
	}

	opts := []transport.HTTPOption{
		transport.WithLogger(log),
		transport.WithMaxBodySize(s.cfg.Limits.MaxRequestBytes),
		transport.WithShutdown(transport.ShutdownConfig{Timeout: s.cfg.Shutdown.Timeout}),
	}
	if s.cfg.Transport == config.TransportSSE {
		opts = append(opts, transport.WithSSE(s.cfg.SSE.Endpoint, s.cfg.SSE.MessagePath))
	} else {
		opts = append(opts, transport.WithWebSocket(s.cfg.WebSocket.Path))
	}
	if s.prom != nil {
		opts = append(opts, transport.WithHandler("/metrics", promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{})))
	}
	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		cors := transport.DefaultCORSConfig()
		cors.AllowOrigins = s.cfg.CORS.AllowedOrigins
		opts = append(opts, transport.WithCORS(cors))
	}
	return transport.NewHTTP(s.cfg.Addr(), sessions, opts...), nil
}

// Serve runs the configured transport until ctx is canceled. With
// files.watch set, changes under the root are announced to every session
// as notifications/resources/list_changed.
func (s *Server) Serve(ctx context.Context) error {
	t, err := s.Transport()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchDone := make(chan struct{})
	if s.cfg.Files.Watch {
		go func() {
			defer close(watchDone)
			err := s.resolver.Watch(ctx, files.DefaultDebounce, s.notifyListChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("file watcher stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	s.logger.Info("serving",
		zap.String("transport", s.cfg.Transport),
		zap.String("addr", t.Addr()),
		zap.String("root", s.resolver.Root()),
	)
	err = t.Serve(ctx)
	cancel()
	<-watchDone
	return err
}

func (s *Server) notifyListChanged() {
	n := s.hub.Broadcast(protocol.MethodResourceListChanged, nil)
	s.logger.Debug("resource list changed", zap.Int("sessions", n))
}
