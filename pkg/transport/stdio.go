package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

// StdioTransport runs a provider as a child process and exchanges
// newline-delimited messages over its stdin and stdout. The child's stderr
// is drained into the logger at Debug.
type StdioTransport struct {
	config Config
	logger logging.Logger

	mu        sync.Mutex // guards process state; never held across I/O
	writeMu   sync.Mutex // serializes frames on stdin
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	writer    *bufio.Writer
	reader    *bufio.Reader
	cancel    context.CancelFunc
	stderrEnd chan struct{}

	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStdioTransport(config Config) *StdioTransport {
	return &StdioTransport{
		config: config,
		logger: config.Logger.WithFields(
			logging.String("transport", "stdio"),
			logging.String("command", config.Stdio.Command),
		),
	}
}

// NewStdioTransport creates an unconnected stdio transport without any
// middleware.
func NewStdioTransport(config Config) (*StdioTransport, error) {
	config.Type = TypeStdio
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return newStdioTransport(config), nil
}

// Connect spawns the provider process.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrAlreadyClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return nil
	}

	// The process outlives the connect context; it is bound to the
	// transport's own lifetime and killed by Close.
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, t.config.Stdio.Command, t.config.Stdio.Args...)
	cmd.Dir = t.config.Stdio.Dir
	cmd.Env = mergeEnv(os.Environ(), t.config.Stdio.Env)
	cmd.WaitDelay = ShutdownTimeout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return mcperrors.ProcessSpawnFailed(t.config.Stdio.Command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return mcperrors.ProcessSpawnFailed(t.config.Stdio.Command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return mcperrors.ProcessSpawnFailed(t.config.Stdio.Command, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return mcperrors.ProcessSpawnFailed(t.config.Stdio.Command, err).
			WithContext(&mcperrors.Context{
				Component: "StdioTransport",
				Operation: "start_process",
			})
	}

	t.cmd = cmd
	t.cancel = cancel
	t.stdin = stdin
	t.writer = bufio.NewWriter(stdin)
	t.reader = bufio.NewReaderSize(stdout, 64*1024)
	t.stderrEnd = make(chan struct{})

	stderrLogger := t.logger.WithFields(
		logging.String("stream", "stderr"),
		logging.Int("pid", cmd.Process.Pid),
	)
	go func() {
		defer close(t.stderrEnd)
		logging.DrainLines(stderr, stderrLogger, logging.DebugLevel)
	}()

	t.connected.Store(true)
	t.logger.Debug("provider process started", logging.Int("pid", cmd.Process.Pid))
	return nil
}

// Send writes msg followed by a newline and flushes. If ctx ends before
// the frame is written the transport is closed, since a partial frame
// leaves stdin unusable, and ctx's error is returned.
func (t *StdioTransport) Send(ctx context.Context, msg []byte) error {
	if !t.connected.Load() {
		return mcperrors.TransportNotInitialized("stdio")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	writer := t.writer
	t.mu.Unlock()

	if writer == nil {
		return mcperrors.TransportNotInitialized("stdio")
	}

	done := make(chan error, 1)
	go func() {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		if t.closed.Load() {
			done <- ErrAlreadyClosed
			return
		}
		done <- writeFrame(writer, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		t.logger.Warn("send did not complete before deadline, closing transport",
			logging.Int("bytes", len(msg)))
		_ = t.Close()
		return ctx.Err()
	}
}

func writeFrame(w *bufio.Writer, msg []byte) error {
	if _, err := w.Write(msg); err != nil {
		return mcperrors.StdioTransportError("send_message", err).
			WithContext(&mcperrors.Context{
				Component: "StdioTransport",
				Operation: "write_data",
			})
	}

	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		if err := w.WriteByte('\n'); err != nil {
			return mcperrors.StdioTransportError("send_message", err).
				WithContext(&mcperrors.Context{
					Component: "StdioTransport",
					Operation: "write_newline",
				})
		}
	}

	if err := w.Flush(); err != nil {
		return mcperrors.StdioTransportError("send_message", err).
			WithContext(&mcperrors.Context{
				Component: "StdioTransport",
				Operation: "flush_output",
			})
	}
	return nil
}

// Receive returns the next non-empty line from the provider's stdout. It
// blocks until a line arrives or the transport is closed; Close unblocks
// it by terminating the process.
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	reader := t.reader
	t.mu.Unlock()

	if reader == nil {
		if t.closed.Load() {
			return nil, io.EOF
		}
		return nil, mcperrors.TransportNotInitialized("stdio")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := readLine(reader, t.config.MaxMessageSize)
		if err != nil {
			if errors.Is(err, ErrMessageTooLarge) {
				return nil, err
			}
			t.connected.Store(false)
			if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil, io.EOF
			}
			return nil, mcperrors.StdioTransportError("read_output", err).
				WithContext(&mcperrors.Context{
					Component: "StdioTransport",
					Operation: "read_line",
				})
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// Close closes stdin, kills the process and waits up to ShutdownTimeout
// for it to exit.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.connected.Store(false)

		t.mu.Lock()
		cmd, stdin, cancel, stderrEnd := t.cmd, t.stdin, t.cancel, t.stderrEnd
		t.writer = nil
		t.mu.Unlock()

		if cmd == nil {
			return
		}

		// Closing stdin and killing the child unblocks a stuck writer.
		_ = stdin.Close()
		cancel()

		waitDone := make(chan error, 1)
		go func() { waitDone <- cmd.Wait() }()

		select {
		case err := <-waitDone:
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
				t.closeErr = mcperrors.StdioTransportError("close", err).
					WithContext(&mcperrors.Context{
						Component: "StdioTransport",
						Operation: "wait_process",
					})
			}
		case <-time.After(ShutdownTimeout):
			t.closeErr = mcperrors.StdioTransportError("close",
				fmt.Errorf("process %d did not exit within %v", cmd.Process.Pid, ShutdownTimeout))
		}

		select {
		case <-stderrEnd:
		case <-time.After(ShutdownTimeout):
		}
		t.logger.Debug("provider process stopped")
	})
	return t.closeErr
}

// IsConnected reports whether the process is running and its stdout open.
func (t *StdioTransport) IsConnected() bool {
	return t.connected.Load()
}

// Metadata describes the transport.
func (t *StdioTransport) Metadata() map[string]string {
	md := baseMetadata(t.config)
	md["command"] = t.config.Stdio.Command
	if len(t.config.Stdio.Args) > 0 {
		md["args"] = strings.Join(t.config.Stdio.Args, " ")
	}
	if t.config.Stdio.Dir != "" {
		md["dir"] = t.config.Stdio.Dir
	}

	t.mu.Lock()
	if t.cmd != nil && t.cmd.Process != nil {
		md["pid"] = fmt.Sprintf("%d", t.cmd.Process.Pid)
	}
	t.mu.Unlock()
	return md
}

// readLine reads one newline-terminated line, without its terminator. A
// line longer than limit is consumed to its end and reported as
// ErrMessageTooLarge so the stream stays aligned for the next message.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var (
		line     []byte
		size     int
		oversize bool
	)

	for {
		chunk, err := r.ReadSlice('\n')
		size += len(chunk)
		if !oversize {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > limit {
				oversize = true
				line = nil
			}
		}

		switch {
		case err == nil:
			if oversize {
				return nil, tooLarge("stdio", size, limit)
			}
			return bytes.TrimRight(line, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0 && !oversize:
			return bytes.TrimRight(line, "\r\n"), nil
		default:
			return nil, err
		}
	}
}

// mergeEnv overlays extra on base. Keys are applied in sorted order so the
// resulting environment is deterministic.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[name]; overridden {
			continue
		}
		env = append(env, kv)
	}
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
