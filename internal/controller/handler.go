package controller

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/playbridge/server/pkg/ctxlogger"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// hostConn serializes writes to the host connection: command replies and
// state event fan-out come from different goroutines.
type hostConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (h *hostConn) writeJSON(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteJSON(v)
}

// hostSession creates a session and serves host commands over the upgraded
// connection until the host disconnects. The session dies with the host.
func (c *controller) hostSession(w http.ResponseWriter, r *http.Request) {
	sess, err := c.sessionService.CreateSession(r.Context())
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to create session", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer c.sessionService.RemoveSession(context.WithoutCancel(r.Context()), sess.Id)

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	host := &hostConn{conn: conn}
	c.registerHost(conn, host)
	defer c.unregisterHost(conn)
	c.subscribeHostEvents(sess, host)

	if err := host.writeJSON(&Output{
		Type: "SESSION_CREATED",
		Payload: map[string]any{
			"session_id": sess.Id,
			"embed_path": "/ws/embed/" + sess.Id,
		},
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write json", "error", err)
		return
	}

	ctx := context.WithValue(r.Context(), sessionIdCtxKey, sess.Id)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sess.Id))

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "host disconnected", "error", err)
	}
}

// embedSession attaches the embed page of an existing session and pumps its
// frames into the bridge.
func (c *controller) embedSession(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "session-id")
	sess, err := c.sessionService.GetSession(sessionId)
	if err != nil {
		c.logger.DebugContext(r.Context(), "embed for unknown session", "session_id", sessionId)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	if err := sess.Bridge.Attach(conn); err != nil {
		c.logger.WarnContext(r.Context(), "failed to attach embed", "session_id", sessionId, "error", err)
		return
	}
	defer sess.Bridge.Detach(conn)

	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("session_id", sessionId))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.InfoContext(ctx, "embed disconnected", "error", err)
			return
		}
		if err := sess.Bridge.HandleFrame(payload); err != nil {
			c.logger.WarnContext(ctx, "bad embed frame", "error", err)
		}
	}
}

func (c *controller) registerHost(conn *websocket.Conn, host *hostConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hosts[conn] = host
}

func (c *controller) unregisterHost(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hosts, conn)
}

// host returns the serialized writer for conn, falling back to a throwaway
// wrapper when the conn was never registered (tests).
func (c *controller) host(conn *websocket.Conn) *hostConn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if host, ok := c.hosts[conn]; ok {
		return host
	}
	return &hostConn{conn: conn}
}
