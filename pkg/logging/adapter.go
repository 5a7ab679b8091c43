package logging

import (
	"bufio"
	"io"
	"strings"
)

// LineWriter adapts a Logger to an io.Writer. Each complete line written is
// logged as one message at the given level; a trailing partial line is kept
// until the next write or Close.
type LineWriter struct {
	logger Logger
	level  Level
	buf    strings.Builder
}

// NewLineWriter creates a LineWriter that logs at level.
func NewLineWriter(logger Logger, level Level) *LineWriter {
	return &LineWriter{logger: logger, level: level}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			w.flush()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

// Close logs any buffered partial line.
func (w *LineWriter) Close() error {
	w.flush()
	return nil
}

func (w *LineWriter) flush() {
	line := strings.TrimRight(w.buf.String(), "\r")
	w.buf.Reset()
	if line == "" {
		return
	}
	switch w.level {
	case DebugLevel:
		w.logger.Debug(line)
	case WarnLevel:
		w.logger.Warn(line)
	case ErrorLevel, FatalLevel:
		w.logger.Error(line)
	default:
		w.logger.Info(line)
	}
}

// DrainLines reads r until EOF and logs every line. It is used for provider
// stderr streams and returns when r is closed.
func DrainLines(r io.Reader, logger Logger, level Level) {
	w := NewLineWriter(logger, level)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		_, _ = w.Write(append(scanner.Bytes(), '\n'))
	}
	_ = w.Close()
}
