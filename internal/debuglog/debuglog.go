// Package debuglog appends failed-send records to a flat file, one JSON
// object per line. It backs the deprecated debug log option and never
// returns errors to the send path: every write reports success as a bool.
package debuglog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	filePerm = 0o640
	dirPerm  = 0o755
)

// Entry describes one delivery attempt.
type Entry struct {
	Mailer  string
	From    string
	To      []string
	Subject string
	Error   string
}

// fileWriter opens the log per write so rotation and deletion by an
// administrator are picked up without a restart.
type fileWriter struct {
	mu   sync.Mutex
	path string
	err  error
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		w.err = err
		return 0, err
	}
	n, writeErr := f.Write(p)
	closeErr := f.Close()
	w.err = errors.Join(writeErr, closeErr)
	return n, w.err
}

func (w *fileWriter) Sync() error { return nil }

// lastErr reports the outcome of the most recent write.
func (w *fileWriter) lastErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Log is a debug log file.
type Log struct {
	path   string
	writer *fileWriter
	logger *zap.Logger

	// serializes a write with the check of its outcome
	mu sync.Mutex
}

// New returns a Log writing to path. The file is created on first write.
func New(path string) *Log {
	w := &fileWriter{path: path}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zap.DebugLevel)
	return &Log{path: path, writer: w, logger: zap.New(core)}
}

// Path returns the file location.
func (l *Log) Path() string {
	return l.path
}

// Write appends e and reports whether it reached the file.
func (l *Log) Write(e Entry) bool {
	if l == nil || l.path == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(l.path), dirPerm); err != nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Error("send failed",
		zap.String("mailer", e.Mailer),
		zap.String("from", e.From),
		zap.Strings("to", e.To),
		zap.String("subject", e.Subject),
		zap.String("error", e.Error),
	)
	return l.writer.lastErr() == nil
}

// Clear truncates the file and reports whether it succeeded. A missing file
// counts as cleared.
func (l *Log) Clear() bool {
	if l == nil || l.path == "" {
		return false
	}
	l.writer.mu.Lock()
	defer l.writer.mu.Unlock()

	err := os.Truncate(l.path, 0)
	return err == nil || errors.Is(err, os.ErrNotExist)
}
