package session

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sencol/hub/internal/stream"
)

const lineEnd = "\r\n"

// StreamLog appends the records of one stream to a CSV file. The header is
// written once at creation; rows are only ever appended.
type StreamLog struct {
	mu      sync.Mutex
	key     stream.Key
	path    string
	columns []string
	locked  *atomic.Bool // shared with the owning Manager
	file    *os.File
	w       *bufio.Writer
	rows    int
	closed  bool
}

// openStreamLog creates the file for key inside dir and writes the header.
func openStreamLog(dir, sessionID string, key stream.Key, locked *atomic.Bool) (*StreamLog, error) {
	path := filepath.Join(dir, key.FileName(sessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &LogIOError{Stream: key.String(), Op: "create", Err: err}
	}

	l := &StreamLog{
		key:     key,
		path:    path,
		columns: key.Kind.Columns(),
		locked:  locked,
		file:    f,
		w:       bufio.NewWriter(f),
	}
	if _, err := l.w.WriteString(strings.Join(l.columns, ",") + lineEnd); err != nil {
		f.Close()
		return nil, &LogIOError{Stream: key.String(), Op: "write header", Err: err}
	}
	if err := l.w.Flush(); err != nil {
		f.Close()
		return nil, &LogIOError{Stream: key.String(), Op: "write header", Err: err}
	}
	return l, nil
}

// Key returns the stream this log records.
func (l *StreamLog) Key() stream.Key { return l.key }

// Path returns the log file path.
func (l *StreamLog) Path() string { return l.path }

// Columns returns the fixed column schema.
func (l *StreamLog) Columns() []string { return append([]string(nil), l.columns...) }

// Rows returns the number of data rows appended so far.
func (l *StreamLog) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Write appends rec as one row. It is a successful no-op while the session
// is locked.
func (l *StreamLog) Write(rec stream.Record) error {
	if l.locked.Load() {
		return nil
	}
	if err := rec.Validate(); err != nil {
		return &LogIOError{Stream: l.key.String(), Op: "write", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return &LogIOError{Stream: l.key.String(), Op: "write", Err: os.ErrClosed}
	}
	// Re-check under the mutex so a Lock that flushed this log is not
	// followed by a stray row.
	if l.locked.Load() {
		return nil
	}
	if _, err := l.w.WriteString(strings.Join(rec.Row(), ",") + lineEnd); err != nil {
		return &LogIOError{Stream: l.key.String(), Op: "write", Err: err}
	}
	l.rows++
	return nil
}

// Flush pushes buffered rows to the file.
func (l *StreamLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return &LogIOError{Stream: l.key.String(), Op: "flush", Err: err}
	}
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (l *StreamLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if err := l.w.Flush(); err != nil {
		errs = append(errs, &LogIOError{Stream: l.key.String(), Op: "flush", Err: err})
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, &LogIOError{Stream: l.key.String(), Op: "close", Err: err})
	}
	return errors.Join(errs...)
}
