package controller

import (
	"context"
	"time"

	"github.com/playbridge/server/internal/service/session"
	"github.com/playbridge/server/internal/state"
)

const titleFetchTimeout = 10 * time.Second

// subscribeHostEvents wires the session's state changes to outbound host
// events. Both hooks live as long as the session, which dies with the host
// connection.
func (c *controller) subscribeHostEvents(sess *session.Session, host *hostConn) {
	sess.Store.OnChange(func(change state.Change) {
		c.forwardChange(host, change)
	})
	sess.Orchestrator.OnReady(func() {
		go c.sendTitle(sess, host)
	})
}

func (c *controller) forwardChange(host *hostConn, change state.Change) {
	var out *Output

	switch change.Field {
	case state.FieldReady:
		if change.State.Ready {
			out = &Output{Type: "READY", Payload: change.State}
		}
	case state.FieldCurrentTime:
		out = &Output{Type: "TIME_UPDATED", Payload: map[string]any{"current_time": change.State.CurrentTime}}
	case state.FieldDuration:
		out = &Output{Type: "DURATION_CHANGED", Payload: map[string]any{"duration": change.State.Duration}}
	case state.FieldVolume, state.FieldMuted:
		out = &Output{Type: "VOLUME_CHANGED", Payload: map[string]any{"volume": change.State.Volume, "muted": change.State.Muted}}
	case state.FieldPlaybackRate:
		out = &Output{Type: "RATE_CHANGED", Payload: map[string]any{"rate": change.State.PlaybackRate}}
	case state.FieldStatus, state.FieldStarted:
		out = &Output{Type: "STATUS_CHANGED", Payload: map[string]any{"status": change.State.Status, "started": change.State.Started}}
	case state.FieldLive:
		out = &Output{Type: "LIVE_CHANGED", Payload: map[string]any{"live": change.State.Live}}
	case state.FieldError:
		out = &Output{Type: "ERROR", Payload: change.State.Err}
	case state.FieldReset:
		// the host triggered the reset itself via LOAD_SOURCE
	}

	if out == nil {
		return
	}
	if err := host.writeJSON(out); err != nil {
		c.logger.Debug("failed to forward state change", "type", out.Type, "error", err)
	}
}

// sendTitle resolves the mounted source's title once ready and pushes it to
// the host. Sources without titles stay silent.
func (c *controller) sendTitle(sess *session.Session, host *hostConn) {
	ctx, cancel := context.WithTimeout(context.Background(), titleFetchTimeout)
	defer cancel()

	title, err := sess.Orchestrator.Handle().Title(ctx)
	if err != nil {
		c.logger.Debug("title not available", "session_id", sess.Id, "error", err)
		return
	}

	if err := host.writeJSON(&Output{Type: "TITLE_CHANGED", Payload: map[string]any{"title": title}}); err != nil {
		c.logger.Debug("failed to send title", "error", err)
	}
}
