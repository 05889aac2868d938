package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/service/session"
)

func (c *controller) getSession(ctx context.Context) (*session.Session, error) {
	sess, err := c.sessionService.GetSession(c.getSessionIdFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (c *controller) decode(payload json.RawMessage, input any) error {
	if err := json.Unmarshal(payload, input); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func (c *controller) handleAlive(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	return nil
}

type LoadSourceInput struct {
	Src string `json:"src"`
}

func (c *controller) handleLoadSource(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input LoadSourceInput
	if err := c.decode(payload, &input); err != nil {
		return err
	}

	descriptor, err := c.sessionService.LoadSource(ctx, c.getSessionIdFromCtx(ctx), input.Src)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}

	return c.host(conn).writeJSON(&Output{Type: "SOURCE_LOADED", Payload: descriptor})
}

func (c *controller) handlePlay(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	if err := sess.Orchestrator.Handle().Play(); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}
	return nil
}

func (c *controller) handlePause(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	if err := sess.Orchestrator.Handle().Pause(); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	return nil
}

type SeekToInput struct {
	Seconds float64 `json:"seconds" validate:"gte=0"`
}

func (c *controller) handleSeekTo(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input SeekToInput
	if err := c.decode(payload, &input); err != nil {
		return err
	}

	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	if err := sess.Orchestrator.Handle().SeekTo(input.Seconds); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

type SetVolumeInput struct {
	Volume float64 `json:"volume" validate:"gte=0,lte=1"`
}

func (c *controller) handleSetVolume(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input SetVolumeInput
	if err := c.decode(payload, &input); err != nil {
		return err
	}

	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	if err := sess.Orchestrator.Handle().SetVolume(input.Volume); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}

type SetMutedInput struct {
	Muted bool `json:"muted"`
}

func (c *controller) handleSetMuted(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input SetMutedInput
	if err := c.decode(payload, &input); err != nil {
		return err
	}

	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	if err := sess.Orchestrator.Handle().SetMuted(input.Muted); err != nil {
		return fmt.Errorf("failed to set muted: %w", err)
	}
	return nil
}

type SetRateInput struct {
	Rate float64 `json:"rate" validate:"gt=0,lte=4"`
}

func (c *controller) handleSetRate(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input SetRateInput
	if err := c.decode(payload, &input); err != nil {
		return err
	}

	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	if err := sess.Orchestrator.Handle().SetPlaybackRate(input.Rate); err != nil {
		return fmt.Errorf("failed to set playback rate: %w", err)
	}
	return nil
}

func (c *controller) handleGetTitle(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	title, err := sess.Orchestrator.Handle().Title(ctx)
	if err != nil {
		if errors.Is(err, adapter.ErrNotSupported) || errors.Is(err, adapter.ErrNotMounted) {
			return c.host(conn).writeJSON(&Output{Type: "TITLE_CHANGED", Payload: map[string]any{"title": ""}})
		}
		return fmt.Errorf("failed to get title: %w", err)
	}

	return c.host(conn).writeJSON(&Output{Type: "TITLE_CHANGED", Payload: map[string]any{"title": title}})
}

func (c *controller) handleGetState(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	sess, err := c.getSession(ctx)
	if err != nil {
		return err
	}

	return c.host(conn).writeJSON(&Output{Type: "STATE", Payload: sess.Store.Snapshot()})
}
