// Package client talks to a running hub: the live feed over websocket and
// status and control over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second

	// maxBatch bounds how many events one EventsMsg carries.
	maxBatch = 512
)

// WSClient follows the hub's live feed.
type WSClient struct {
	url string

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	inbox   chan []byte
	errc    chan error
	pingCtx context.CancelFunc
}

func NewWSClient(url string) *WSClient {
	return &WSClient{url: url}
}

// WSConnectedMsg is sent when the feed connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the feed drops.
type WSDisconnectedMsg struct{ Err error }

// EventsMsg carries the events received since the last read.
type EventsMsg struct{ Events []Event }

// Listen returns a command that connects, retrying with backoff until it
// succeeds or ctx is done.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			if ctx.Err() != nil {
				return nil
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.inbox = make(chan []byte, 4*maxBatch)
			c.errc = make(chan error, 1)
			c.pingCtx = pingCancel
			inbox, errc := c.inbox, c.errc
			c.mu.Unlock()

			go c.readPump(conn, inbox, errc)
			go c.pingLoop(pingCtx, conn)
			return WSConnectedMsg{}
		}
	}
}

func (c *WSClient) readPump(conn *websocket.Conn, inbox chan<- []byte, errc chan<- error) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			close(inbox)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		inbox <- data
	}
}

// ReadLoop returns a command that waits for at least one event and then
// drains whatever else is queued, up to maxBatch.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn, inbox, errc := c.conn, c.inbox, c.errc
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		var batch []Event
		add := func(data []byte) {
			var ev Event
			if json.Unmarshal(data, &ev) == nil && ev.Type != "" {
				batch = append(batch, ev)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-inbox:
			if !ok {
				return c.disconnected(conn, errc)
			}
			add(data)
		}
		for len(batch) < maxBatch {
			select {
			case data, ok := <-inbox:
				if !ok {
					return EventsMsg{Events: batch}
				}
				add(data)
			default:
				return EventsMsg{Events: batch}
			}
		}
		return EventsMsg{Events: batch}
	}
}

func (c *WSClient) disconnected(conn *websocket.Conn, errc <-chan error) tea.Msg {
	var err error
	select {
	case err = <-errc:
	default:
	}
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
	return WSDisconnectedMsg{Err: err}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close drops the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
