package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hjlabs/hjmcpsse"
	"github.com/hjlabs/hjmcpsse/config"
	"github.com/hjlabs/hjmcpsse/logging"
)

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "hjmcpsse",
		Short:         "MCP server with a calculator, code templates, a files resource and a code-generation prompt",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	serverFlags(root.PersistentFlags())

	root.AddCommand(
		newValidateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// serverFlags registers every setting that can be overridden on the command
// line. Flag names match configuration keys.
func serverFlags(fs *pflag.FlagSet) {
	fs.String("host", config.DefaultHost, "listen host for the sse and websocket transports")
	fs.Int("port", config.DefaultPort, "listen port for the sse and websocket transports")
	fs.String("transport", config.DefaultTransport, "transport: sse, websocket or stdio")
	fs.String("root", config.DefaultRoot, "directory exposed by the files resource")
	fs.String("log.level", "info", "log level: debug, info, warn or error")
	fs.String("log.format", logging.FormatConsole, "log format: console or json")
	fs.Bool("files.watch", false, "announce changes under root to connected clients")
	fs.Int64("files.max_size", config.DefaultMaxFileSize, "largest file the files resource returns, in bytes")
	fs.Int("limits.rate", 0, "requests per second per session, 0 disables rate limiting")
	fs.Int("limits.burst", 0, "rate limiter burst")
	fs.Bool("metrics.enabled", true, "serve Prometheus metrics on /metrics")
	fs.Duration("shutdown.timeout", config.DefaultShutdownTimeout, "how long in-flight requests may run after shutdown starts")
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	return config.Load(config.Options{File: opts.configPath, Flags: cmd.Flags()})
}

func serve(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv, err := hjmcpsse.New(*cfg, hjmcpsse.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build server", zap.Error(err))
		return err
	}

	ctx, cancel := signalAwareContext(cmd.Context())
	defer cancel()

	if err := srv.Serve(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without serving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: transport=%s root=%s\n", cfg.Transport, cfg.Root)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), hjmcpsse.Name, hjmcpsse.Version)
		},
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
