package adapter

import (
	"context"
	"fmt"

	"github.com/playbridge/server/internal/state"
)

// Passive backs sources rendered as a plain iframe with no control API
// (Google Drive previews and unrecognized embed pages). It reports ready so
// consumers know the embed is up, and rejects every control call.
type Passive struct {
	store *state.Store
	token state.WriterToken
}

func NewPassive(store *state.Store, token state.WriterToken) *Passive {
	return &Passive{store: store, token: token}
}

func (p *Passive) Mount(ctx context.Context) error {
	p.store.SetReady(p.token, true)
	return nil
}

func (p *Passive) Unmount() {}

func (p *Passive) Play() error  { return fmt.Errorf("play: %w", ErrNotSupported) }
func (p *Passive) Pause() error { return fmt.Errorf("pause: %w", ErrNotSupported) }

func (p *Passive) SeekTo(seconds float64) error {
	return fmt.Errorf("seek: %w", ErrNotSupported)
}

func (p *Passive) SetVolume(volume float64) error {
	return fmt.Errorf("set volume: %w", ErrNotSupported)
}

func (p *Passive) SetMuted(muted bool) error {
	return fmt.Errorf("set muted: %w", ErrNotSupported)
}

func (p *Passive) SetPlaybackRate(playbackRate float64) error {
	return fmt.Errorf("set playback rate: %w", ErrNotSupported)
}

func (p *Passive) Title(ctx context.Context) (string, error) {
	return "", fmt.Errorf("title: %w", ErrNotSupported)
}

func (p *Passive) Instance() any { return nil }
