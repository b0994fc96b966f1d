package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// errConnForgotten is returned by writes on a connection that was already
// released by forget.
var errConnForgotten = errors.New("websocket: connection already released")

// wsWriteClose sends a close control frame with the given code and reason.
func (ws *WebSocket) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu, ok := ws.lockOf(conn)
	if !ok {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// writeJSON marshals v and writes a single TextMessage under the
// connection's write lock.
func (ws *WebSocket) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	mu, ok := ws.lockOf(conn)
	if !ok {
		return errConnForgotten
	}
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// writePing sends a ping control frame under the write lock.
func (ws *WebSocket) writePing(conn *websocket.Conn) error {
	mu, ok := ws.lockOf(conn)
	if !ok {
		return errConnForgotten
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
}

// track registers the write mutex for a freshly upgraded connection.
func (ws *WebSocket) track(conn *websocket.Conn) {
	ws.writeLocks.Store(conn, &sync.Mutex{})
}

// lockOf returns the write mutex registered by track. It never creates one,
// so a released connection stays out of writeLocks.
func (ws *WebSocket) lockOf(conn *websocket.Conn) (*sync.Mutex, bool) {
	v, ok := ws.writeLocks.Load(conn)
	if !ok {
		return nil, false
	}
	return v.(*sync.Mutex), true
}
