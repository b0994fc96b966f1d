package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ride-hail-sim/internal/domain/user"
	"ride-hail-sim/internal/general/clock"
	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/panel"
)

var (
	ErrUnknownPanelCommand = errors.New("unknown panel command")
	ErrPanelDragging       = errors.New("panel is being dragged")
)

// ConnectPanel runs one panel session per socket. A single goroutine owns
// the controller: it applies inbound gestures and drives animation frames,
// sending panel_offset on every change and panel_state on every commit.
func (ws *WebSocket) ConnectPanel(w http.ResponseWriter, r *http.Request) {
	conn, claims, ok := ws.authenticate(w, r, "", user.RoleRider, user.RoleDriver, user.RoleAdmin)
	if !ok {
		return
	}
	defer ws.forget(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := newPanelSession(ws.panelCfg, func(v any) error { return ws.writeJSON(conn, v) })
	defer sess.close()

	if err := ws.sendAuthSuccess(conn, claims.Subject); err != nil {
		ws.logger.Error(ctx, "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}
	if err := sess.sendState(); err != nil {
		return
	}
	ws.logger.Info(ctx, "ws_panel_connected", "Panel session started", map[string]any{"user_id": claims.Subject})

	go ws.keepAlive(ctx, conn)

	cmds := make(chan contracts.WSPanelCommand)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var cmd contracts.WSPanelCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				ws.sendError(conn, "bad json")
				continue
			}
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			ws.closeWith(ctx, conn, err, map[string]any{"user_id": claims.Subject})
			return

		case cmd := <-cmds:
			if err := sess.handle(cmd); err != nil {
				if errors.Is(err, ErrUnknownPanelCommand) || errors.Is(err, ErrPanelDragging) {
					ws.sendError(conn, err.Error())
					continue
				}
				ws.logger.Warn(ctx, "ws_panel_write_failed", "Failed to write panel update", map[string]any{"error": err.Error()})
				return
			}

		case <-sess.frames():
			if err := sess.onFrame(); err != nil {
				ws.logger.Warn(ctx, "ws_panel_write_failed", "Failed to write panel frame", map[string]any{"error": err.Error()})
				return
			}
		}
	}
}

// panelSession adapts a panel.Controller to a message stream. It is owned
// by one goroutine and holds at most one frame ticker, armed only while an
// animation is in flight.
type panelSession struct {
	ctrl      *panel.Controller
	frame     time.Duration
	newTicker clock.NewTicker
	ticker    clock.Ticker
	send      func(v any) error
	sendErr   error
}

func newPanelSession(cfg PanelConfig, send func(v any) error) *panelSession {
	s := &panelSession{frame: cfg.Frame, newTicker: cfg.NewTicker, send: send}
	s.ctrl = panel.New(cfg.Layout, cfg.Spring, func(state panel.SnapState) {
		if err := s.send(contracts.WSPanelState{
			Type:   contracts.WSTypePanelState,
			State:  state.String(),
			Offset: s.ctrl.Offset(),
		}); err != nil && s.sendErr == nil {
			s.sendErr = err
		}
	})
	return s
}

func (s *panelSession) handle(cmd contracts.WSPanelCommand) error {
	accepted := true
	switch cmd.Type {
	case contracts.WSTypePanelDragStart:
		s.ctrl.DragStart()
	case contracts.WSTypePanelDragMove:
		s.ctrl.DragMove(cmd.DY)
	case contracts.WSTypePanelDragRelease:
		s.ctrl.DragRelease(cmd.DY)
	case contracts.WSTypePanelShow:
		accepted = s.ctrl.Show()
	case contracts.WSTypePanelHide:
		accepted = s.ctrl.Hide()
	case contracts.WSTypePanelExpand:
		accepted = s.ctrl.Expand()
	case contracts.WSTypePanelShowExpand:
		accepted = s.ctrl.ShowAndExpand()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPanelCommand, cmd.Type)
	}
	if !accepted {
		return ErrPanelDragging
	}

	s.syncTicker()
	return s.sendOffset()
}

// frames is nil while idle, which blocks forever in a select.
func (s *panelSession) frames() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

func (s *panelSession) onFrame() error {
	running := s.ctrl.Advance(s.frame)
	if err := s.takeSendErr(); err != nil {
		return err
	}
	if running {
		if err := s.sendOffset(); err != nil {
			return err
		}
	}
	s.syncTicker()
	return nil
}

func (s *panelSession) syncTicker() {
	switch {
	case s.ctrl.Animating() && s.ticker == nil:
		s.ticker = s.newTicker(s.frame)
	case !s.ctrl.Animating() && s.ticker != nil:
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *panelSession) sendOffset() error {
	return s.send(contracts.WSPanelOffset{Type: contracts.WSTypePanelOffset, Offset: s.ctrl.Offset()})
}

func (s *panelSession) sendState() error {
	return s.send(contracts.WSPanelState{
		Type:   contracts.WSTypePanelState,
		State:  s.ctrl.State().String(),
		Offset: s.ctrl.Offset(),
	})
}

func (s *panelSession) takeSendErr() error {
	err := s.sendErr
	s.sendErr = nil
	return err
}

func (s *panelSession) close() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
