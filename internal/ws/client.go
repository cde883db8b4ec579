package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// client is a websocket subscriber. Messages are queued on send and written
// by writePump so a slow peer never blocks the broadcaster.
type client struct {
	id        string
	conn      *websocket.Conn
	b         *Broadcaster
	send      chan []byte
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, b *Broadcaster, buffer int) *client {
	if buffer < 1 {
		buffer = 1
	}
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		b:    b,
		send: make(chan []byte, buffer),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Deliver(msg []byte) error {
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close stops the write pump. The broadcaster only calls it after the
// client has been removed, so Deliver never races with it.
func (c *client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.b.Unsubscribe(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.b.Unsubscribe(c)
				return
			}
		}
	}
}

// readPump discards inbound frames and unsubscribes when the peer goes
// away. Pongs extend the read deadline.
func (c *client) readPump() {
	defer c.b.Unsubscribe(c)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
