package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Stdio implements MCP transport over stdin/stdout with a single session.
type Stdio struct {
	in           io.Reader
	out          io.Writer
	sessions     *Sessions
	logger       *zap.Logger
	maxLine      int
	closeTimeout time.Duration

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = w
	}
}

// WithMaxLineSize bounds one inbound frame.
func WithMaxLineSize(n int) StdioOption {
	return func(s *Stdio) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// WithCloseTimeout bounds how long in-flight requests may run after
// stdin closes.
func WithCloseTimeout(d time.Duration) StdioOption {
	return func(s *Stdio) {
		s.closeTimeout = d
	}
}

// WithStdioLogger sets the transport logger.
func WithStdioLogger(l *zap.Logger) StdioOption {
	return func(s *Stdio) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(sessions *Sessions, opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:           os.Stdin,
		out:          os.Stdout,
		sessions:     sessions,
		logger:       zap.NewNop(),
		maxLine:      DefaultMaxBodySize,
		closeTimeout: DefaultShutdownConfig().Timeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return NameStdio
}

// Serve processes newline-delimited frames from stdin until EOF, ctx is
// canceled or the session closes itself.
func (s *Stdio) Serve(ctx context.Context) error {
	sess, err := s.sessions.Open(NameStdio, NameStdio)
	if err != nil {
		return errors.Wrap(err, "open stdio session")
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		pump(sess, s.writeLine)
	}()

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxLine)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-sess.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-sess.Done():
			break loop
		case err := <-scanErr:
			serveErr = errors.Wrap(err, "read stdin")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if line == "" {
				continue
			}
			if err := sess.Deliver([]byte(line)); err != nil {
				s.logger.Debug("frame rejected", zap.Error(err))
			}
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		s.logger.Warn("stdio session did not drain", zap.Error(err))
	}
	<-writerDone
	return serveErr
}

func (s *Stdio) writeLine(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.out.Write(frame); err != nil {
		return err
	}
	_, err := s.out.Write([]byte("\n"))
	return err
}

var (
	_ Transport = (*Stdio)(nil)
	_ Transport = (*HTTP)(nil)
)
