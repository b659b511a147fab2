package driver

import (
	"bytes"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/driverd/internal/common/logger"
)

// maxLogLine caps a buffered partial line before it is flushed as-is.
const maxLogLine = 64 * 1024

// logWriter turns the driver's output stream into debug log lines.
// chromedriver --verbose is chatty, so nothing is logged above debug.
type logWriter struct {
	logger *logger.Logger
	stream string

	mu  sync.Mutex
	buf []byte
}

func newLogWriter(log *logger.Logger, stream string) *logWriter {
	return &logWriter{logger: log, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLogLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

func (w *logWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.Debug(string(line), zap.String("stream", w.stream))
}
