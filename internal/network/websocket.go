// internal/network/websocket.go

// Package network dials and wraps the relay's WebSocket connections. The
// wire protocol is the mles WebSocket subprotocol: one JSON hello as a text
// frame at connect time, opaque binary frames afterwards.
package network

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mlesclient/internal/proto"
)

// Subprotocol is the Sec-WebSocket-Protocol value the relay servers expect.
const Subprotocol = "mles-websocket"

const closeWriteTimeout = 5 * time.Second

// Conn is one relay connection. Reads are single-consumer; writes from any
// goroutine are serialized by an internal mutex held only for the one write
// call, never across a read.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects to a relay server URL and completes the WebSocket handshake
// with the mles subprotocol. It does not send the hello; callers
// authenticate with WriteHello before any data frame.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 30 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("network: dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("network: dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// WriteHello sends the admission hello as a text control frame.
func (c *Conn) WriteHello(h proto.Hello) error {
	data, err := proto.EncodeHello(h)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("network: write hello: %w", err)
	}
	return nil
}

// ReadFrame blocks until the next binary frame arrives. Text and control
// frames after the handshake carry nothing the relay core needs and are
// skipped.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteFrame sends one binary frame.
func (c *Conn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// CloseNormal sends a best-effort normal close frame with the given reason
// and tears the connection down.
func (c *Conn) CloseNormal(reason string) error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Close tears the connection down without a close handshake.
func (c *Conn) Close() error {
	return c.ws.Close()
}
