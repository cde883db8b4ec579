package device

import "fmt"

// ConnectionError reports a failure to open or keep a device transport.
// It is never fatal: the connection retries after its fixed delay.
type ConnectionError struct {
	Device string
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports one malformed unit from the decoder. The unit is
// dropped and decoding continues with the next one.
type ProtocolError struct {
	Device string
	Unit   string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("malformed unit %q: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("device %s: malformed unit %q: %v", e.Device, e.Unit, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
