// Package config loads server settings from defaults, an optional YAML
// file, HJMCPSSE_* environment variables and command-line flags.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hjlabs/hjmcpsse/logging"
)

// EnvPrefix prefixes environment overrides, e.g. HJMCPSSE_LOG_LEVEL.
const EnvPrefix = "HJMCPSSE"

// Transports.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	TransportStdio     = "stdio"
)

// Defaults.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 8000
	DefaultTransport       = TransportSSE
	DefaultRoot            = "."
	DefaultMaxFileSize     = 1 << 20
	DefaultMaxRequestBytes = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSSEEndpoint     = "/sse"
	DefaultMessagePath     = "/messages/"
	DefaultWebSocketPath   = "/ws"
)

// ErrInvalid marks validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete server configuration.
type Config struct {
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Transport string         `mapstructure:"transport"`
	Root      string         `mapstructure:"root"`
	Log       LogConfig      `mapstructure:"log"`
	Files     FilesConfig    `mapstructure:"files"`
	Limits    LimitsConfig   `mapstructure:"limits"`
	Shutdown  ShutdownConfig `mapstructure:"shutdown"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	SSE       SSEConfig      `mapstructure:"sse"`
	WebSocket WebSocket      `mapstructure:"websocket"`
	CORS      CORSConfig     `mapstructure:"cors"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FilesConfig configures the files resource.
type FilesConfig struct {
	MaxSize int64 `mapstructure:"max_size"`
	Watch   bool  `mapstructure:"watch"`
}

// LimitsConfig bounds requests. Rate is requests per second per session;
// zero disables rate limiting.
type LimitsConfig struct {
	MaxRequestBytes int64 `mapstructure:"max_request_bytes"`
	Rate            int   `mapstructure:"rate"`
	Burst           int   `mapstructure:"burst"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SSEConfig holds the SSE routes.
type SSEConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	MessagePath string `mapstructure:"message_path"`
}

// WebSocket holds the WebSocket route.
type WebSocket struct {
	Path string `mapstructure:"path"`
}

// CORSConfig enables CORS on the HTTP transports when origins are set.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SetDefaults installs every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("transport", DefaultTransport)
	v.SetDefault("root", DefaultRoot)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)
	v.SetDefault("files.max_size", DefaultMaxFileSize)
	v.SetDefault("files.watch", false)
	v.SetDefault("limits.max_request_bytes", DefaultMaxRequestBytes)
	v.SetDefault("limits.rate", 0)
	v.SetDefault("limits.burst", 0)
	v.SetDefault("shutdown.timeout", DefaultShutdownTimeout)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("sse.endpoint", DefaultSSEEndpoint)
	v.SetDefault("sse.message_path", DefaultMessagePath)
	v.SetDefault("websocket.path", DefaultWebSocketPath)
	v.SetDefault("cors.allowed_origins", []string{})
}

// Default returns the built-in configuration, ignoring every other source.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Options selects the sources Load reads.
type Options struct {
	// File is an optional YAML file. Empty means none.
	File string
	// Flags are bound by their names, e.g. --log.level or --port.
	Flags *pflag.FlagSet
}

// Load reads defaults, then File, then the environment, then Flags, and
// validates the result.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", opts.File)
		}
	}
	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return nil, errors.Wrap(err, "bind flags")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSSE, TransportWebSocket, TransportStdio:
	default:
		return errors.Mark(errors.Newf("unknown transport %q", c.Transport), ErrInvalid)
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Mark(errors.Newf("port %d out of range 1..65535", c.Port), ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.Mark(err, ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return errors.Mark(errors.Newf("unknown log format %q", c.Log.Format), ErrInvalid)
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "root %s", c.Root), ErrInvalid)
	}
	if !info.IsDir() {
		return errors.Mark(errors.Newf("root %s is not a directory", c.Root), ErrInvalid)
	}
	if c.Files.MaxSize <= 0 {
		return errors.Mark(errors.Newf("files.max_size must be positive, got %d", c.Files.MaxSize), ErrInvalid)
	}
	if c.Limits.Rate < 0 || c.Limits.Burst < 0 {
		return errors.Mark(errors.New("limits.rate and limits.burst must not be negative"), ErrInvalid)
	}
	if c.Shutdown.Timeout <= 0 {
		return errors.Mark(errors.Newf("shutdown.timeout must be positive, got %s", c.Shutdown.Timeout), ErrInvalid)
	}
	return nil
}

// Addr is host:port for the HTTP transports.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
