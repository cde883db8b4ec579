package device

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Transport is the capability a connection needs from an open device link.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Handler receives inbound bytes and link loss from a transport. OnLost is
// called at most once per transport.
type Handler interface {
	OnData(data []byte)
	OnLost(err error)
}

// Dialer opens a transport to address and reports its traffic to h.
type Dialer interface {
	Dial(ctx context.Context, address string, h Handler) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string, h Handler) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, address string, h Handler) (Transport, error) {
	return f(ctx, address, h)
}

// TCPDialer connects to devices exposed through a TCP bridge.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context, address string, h Handler) (Transport, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return newStreamTransport(conn, h), nil
}

// FileDialer opens a character device such as a paired Bluetooth serial
// port (/dev/rfcomm0) for reading and writing.
type FileDialer struct{}

func (FileDialer) Dial(_ context.Context, address string, h Handler) (Transport, error) {
	f, err := os.OpenFile(address, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return newStreamTransport(f, h), nil
}

// streamTransport pumps reads from an io.ReadWriteCloser into a Handler.
type streamTransport struct {
	rwc       io.ReadWriteCloser
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStreamTransport(rwc io.ReadWriteCloser, h Handler) *streamTransport {
	t := &streamTransport{rwc: rwc}
	go t.readLoop(h)
	return t
}

func (t *streamTransport) readLoop(h Handler) {
	buf := make([]byte, 4096)
	for {
		n, err := t.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.OnData(chunk)
		}
		if err != nil {
			h.OnLost(err)
			return
		}
	}
}

func (t *streamTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.rwc.Write(data)
	return err
}

func (t *streamTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.rwc.Close()
	})
	return t.closeErr
}
