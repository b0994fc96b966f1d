package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ride-hail-sim/internal/domain/user"
	"ride-hail-sim/internal/general/clock"
	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/general/jwt"
	"ride-hail-sim/internal/general/logger"
	"ride-hail-sim/internal/panel"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	authTimeout      = 10 * time.Second
	readIdleTimeout  = 60 * time.Second
	pingInterval     = 30 * time.Second
	maxFrameBytes    = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// PanelConfig configures every panel session.
type PanelConfig struct {
	Layout panel.Layout
	Spring panel.Spring
	// Frame is both the animation step and the frame ticker period.
	Frame time.Duration
	// NewTicker creates the frame ticker; nil means clock.RealTicker.
	NewTicker clock.NewTicker
}

// WebSocket serves rider location streams and panel sessions behind
// first-frame JWT auth.
type WebSocket struct {
	logger     *logger.Logger
	jwtMgr     *jwt.Manager
	panelCfg   PanelConfig
	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex
	riders     sync.Map // riderID -> *websocket.Conn
}

func NewWebSocket(log *logger.Logger, jwtMgr *jwt.Manager, panelCfg PanelConfig) *WebSocket {
	if panelCfg.Frame <= 0 {
		panelCfg.Frame = 16 * time.Millisecond
	}
	if panelCfg.NewTicker == nil {
		panelCfg.NewTicker = clock.RealTicker
	}
	panelCfg.Layout = panelCfg.Layout.Normalize()
	return &WebSocket{logger: log, jwtMgr: jwtMgr, panelCfg: panelCfg}
}

// authenticate upgrades the request and expects an auth frame within
// authTimeout. When pathParam is set, the URL parameter of that name must
// match the token subject. On failure the connection is already closed.
func (ws *WebSocket) authenticate(w http.ResponseWriter, r *http.Request, pathParam string, roles ...user.Role) (*websocket.Conn, *jwt.Claims, bool) {
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(ctx, "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, nil, false
	}
	ws.track(conn)

	fail := func(action, msg string, err error) (*websocket.Conn, *jwt.Claims, bool) {
		ws.logger.Warn(ctx, action, msg, map[string]any{"error": errString(err)})
		_ = ws.writeJSON(conn, map[string]any{"type": "auth_error", "error": msg, "success": false})
		ws.wsWriteClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		ws.forget(conn)
		return nil, nil, false
	}

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))

	mt, first, err := conn.ReadMessage()
	if err != nil {
		return fail("ws_auth_read_failed", "authentication timeout: send an auth message first", err)
	}
	if mt != websocket.TextMessage {
		return fail("ws_auth_invalid_format", "auth message must be in text format", nil)
	}

	res, err := jwt.ValidateWSAuth(first, ws.jwtMgr, roles...)
	if err != nil {
		return fail("ws_auth_failed", "authentication failed: invalid token", err)
	}

	if pathParam != "" {
		if id := chi.URLParam(r, pathParam); id != "" && id != res.Claims.Subject && res.Claims.Role != user.RoleAdmin {
			return fail("ws_auth_failed", pathParam+" mismatch", nil)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})

	return conn, res.Claims, true
}

func (ws *WebSocket) sendAuthSuccess(conn *websocket.Conn, userID string) error {
	return ws.writeJSON(conn, map[string]any{
		"type":      "auth_success",
		"success":   true,
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (ws *WebSocket) sendError(conn *websocket.Conn, msg string) {
	_ = ws.writeJSON(conn, contracts.WSError{Type: contracts.WSTypeError, Message: msg})
}

// keepAlive pings conn until ctx is done; a failed ping closes the socket
// so the reader unblocks.
func (ws *WebSocket) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.writePing(conn); err != nil {
				ws.logger.Warn(ctx, "ws_ping_failed", "Failed to send ping", map[string]any{"error": err.Error()})
				_ = conn.Close()
				return
			}
		}
	}
}

// closeWith logs why the read side ended and answers with a close frame.
func (ws *WebSocket) closeWith(ctx context.Context, conn *websocket.Conn, err error, details map[string]any) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		ws.logger.Warn(ctx, "ws_unexpected_close", "Connection closed unexpectedly", merge(details, "error", err.Error()))
		ws.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	ws.logger.Info(ctx, "ws_connection_closed", "Connection closed normally", details)
	ws.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
}

func (ws *WebSocket) forget(conn *websocket.Conn) {
	ws.writeLocks.Delete(conn)
	_ = conn.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func merge(m map[string]any, k string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}
