package session

import "fmt"

// LogIOError reports a failure to create, write, flush, or close one
// stream's log file. It is fatal for that stream only.
type LogIOError struct {
	Stream string
	Op     string
	Err    error
}

func (e *LogIOError) Error() string {
	return fmt.Sprintf("stream log %s: %s: %v", e.Stream, e.Op, e.Err)
}

func (e *LogIOError) Unwrap() error { return e.Err }
