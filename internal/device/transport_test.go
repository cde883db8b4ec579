package device

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type chanHandler struct {
	data chan []byte
	lost chan error
}

func (h *chanHandler) OnData(d []byte) { h.data <- d }
func (h *chanHandler) OnLost(err error) { h.lost <- err }

func TestTCPDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- line
		conn.Write([]byte("ecg,1,2\n"))
		conn.Close()
	}()

	h := &chanHandler{data: make(chan []byte, 4), lost: make(chan error, 1)}
	tr, err := TCPDialer{Timeout: time.Second}.Dial(context.Background(), ln.Addr().String(), h)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	if err := tr.Send(TextFrame(1, nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case line := <-got:
		if line != "CMD 1 \n" {
			t.Errorf("server read %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	select {
	case d := <-h.data:
		if string(d) != "ecg,1,2\n" {
			t.Errorf("OnData = %q", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no data delivered")
	}
	select {
	case <-h.lost:
	case <-time.After(2 * time.Second):
		t.Fatal("OnLost not called after server closed")
	}
}

func TestTCPDialerRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	h := &chanHandler{data: make(chan []byte, 1), lost: make(chan error, 1)}
	if _, err := (TCPDialer{Timeout: time.Second}).Dial(context.Background(), addr, h); err == nil {
		t.Error("Dial to closed port succeeded")
	}
}

func TestFileDialerMissingDevice(t *testing.T) {
	h := &chanHandler{data: make(chan []byte, 1), lost: make(chan error, 1)}
	_, err := FileDialer{}.Dial(context.Background(), "/nonexistent/rfcomm9", h)
	if err == nil {
		t.Fatal("Dial of missing device succeeded")
	}
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		t.Error("dialers return raw errors; Connection wraps them")
	}
}
