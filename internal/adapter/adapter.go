package adapter

import (
	"context"
	"errors"
)

var (
	// ErrNotSupported is returned by capability methods a backend cannot
	// serve (e.g. volume control on the message-bus vendor).
	ErrNotSupported = errors.New("operation not supported by this backend")
	// ErrNotMounted is returned by Title when no vendor player is attached.
	ErrNotMounted = errors.New("adapter is not mounted")
)

// Capability is the uniform control surface every backend adapter exposes.
// Every method is safe to call before the mount is ready: commands are
// either queued by the vendor, remembered and replayed, or dropped — they
// never panic.
type Capability interface {
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	SetVolume(volume float64) error
	SetMuted(muted bool) error
	SetPlaybackRate(playbackRate float64) error
	// Title resolves the media title, possibly over the network.
	Title(ctx context.Context) (string, error)
	// Instance exposes the backend's native handle for collaborators that
	// need to step outside the uniform surface.
	Instance() any
}

// Adapter wraps one vendor integration. Mount subscribes to the vendor and
// starts translating its events; Unmount releases every listener, timer and
// goroutine the adapter owns and returns only once they are stopped.
type Adapter interface {
	Capability
	Mount(ctx context.Context) error
	Unmount()
}
