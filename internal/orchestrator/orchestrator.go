package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/state"
)

// AdapterFactory builds the adapter matching a descriptor, wired to the
// given writer token. The controller supplies it per session, since only the
// transport layer knows which buses and elements exist.
type AdapterFactory interface {
	NewAdapter(descriptor domain.VideoDescriptor, token state.WriterToken) (adapter.Adapter, error)
}

type Config struct {
	// DefaultVolume is applied once per mount when ready first fires.
	DefaultVolume float64
	DefaultMuted  bool
	// VolumeAPIReliable is false on platforms where programmatic volume
	// does not stick (iOS); those get full volume instead of the default.
	VolumeAPIReliable bool
}

// Orchestrator owns the one-adapter-at-a-time invariant: it tears the
// previous adapter down, resets the store, and only then mounts the next
// one, so no stale event can leak across mounts.
type Orchestrator struct {
	factory AdapterFactory
	store   *state.Store
	cfg     *Config
	logger  *slog.Logger

	// mountMu serializes SetSource/Shutdown. It is never taken from an
	// adapter goroutine, so holding it across Unmount cannot deadlock
	// against the pump draining into handleChange.
	mountMu sync.Mutex

	mu         sync.Mutex
	current    adapter.Adapter
	readyFired bool
	onReady    []func()
}

func NewOrchestrator(factory AdapterFactory, store *state.Store, cfg *Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		factory: factory,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}

	store.OnChange(o.handleChange)

	return o
}

// SetSource swaps the mounted adapter for the one matching descriptor. A nil
// descriptor unmounts without replacement ("render nothing").
func (o *Orchestrator) SetSource(ctx context.Context, descriptor *domain.VideoDescriptor) error {
	o.mountMu.Lock()
	defer o.mountMu.Unlock()

	o.unmountCurrent()

	// reset invalidates every issued token before the new adapter exists,
	// so the fresh state cannot briefly show the previous mount's values
	o.store.Reset()

	if descriptor == nil {
		return nil
	}

	token := o.store.Acquire()
	adp, err := o.factory.NewAdapter(*descriptor, token)
	if err != nil {
		return fmt.Errorf("failed to create adapter for %s: %w", descriptor.Service, err)
	}

	o.mu.Lock()
	o.current = adp
	o.mu.Unlock()

	if err := adp.Mount(ctx); err != nil {
		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
		adp.Unmount()
		return fmt.Errorf("failed to mount %s adapter: %w", descriptor.Service, err)
	}

	o.logger.Debug("orchestrator: adapter mounted", "service", descriptor.Service, "id", descriptor.Id)
	return nil
}

func (o *Orchestrator) unmountCurrent() {
	o.mu.Lock()
	current := o.current
	o.current = nil
	o.readyFired = false
	o.mu.Unlock()

	if current != nil {
		// synchronous: Unmount returns only after the adapter's pump has
		// stopped, so its listeners cannot outlive this call
		current.Unmount()
	}
}

// OnReady registers a callback fired exactly once per mount, after default
// volume and mute have been applied.
func (o *Orchestrator) OnReady(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.onReady = append(o.onReady, fn)
}

func (o *Orchestrator) Shutdown() {
	o.mountMu.Lock()
	defer o.mountMu.Unlock()

	o.unmountCurrent()
}

// Handle returns the stable control surface. It stays valid across source
// changes and no-ops while nothing is mounted.
func (o *Orchestrator) Handle() adapter.Capability {
	return handle{o: o}
}

func (o *Orchestrator) handleChange(change state.Change) {
	if change.Field != state.FieldReady || !change.State.Ready {
		return
	}

	o.mu.Lock()
	if o.readyFired || o.current == nil {
		o.mu.Unlock()
		return
	}
	o.readyFired = true
	current := o.current
	listeners := make([]func(), len(o.onReady))
	copy(listeners, o.onReady)
	o.mu.Unlock()

	o.applyDefaults(current)
	for _, fn := range listeners {
		fn()
	}
}

func (o *Orchestrator) applyDefaults(cap adapter.Capability) {
	volume := o.cfg.DefaultVolume
	if !o.cfg.VolumeAPIReliable {
		volume = 1
	}
	if err := cap.SetVolume(volume); err != nil {
		o.logger.Debug("orchestrator: default volume not applied", "error", err)
	}
	if err := cap.SetMuted(o.cfg.DefaultMuted); err != nil {
		o.logger.Debug("orchestrator: default mute not applied", "error", err)
	}
}

func (o *Orchestrator) active() adapter.Capability {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return nil
	}
	return o.current
}

// handle forwards capability calls to whichever adapter is mounted.
type handle struct {
	o *Orchestrator
}

func (h handle) Play() error {
	if cap := h.o.active(); cap != nil {
		return cap.Play()
	}
	return nil
}

func (h handle) Pause() error {
	if cap := h.o.active(); cap != nil {
		return cap.Pause()
	}
	return nil
}

func (h handle) SeekTo(seconds float64) error {
	if cap := h.o.active(); cap != nil {
		return cap.SeekTo(seconds)
	}
	return nil
}

func (h handle) SetVolume(volume float64) error {
	if cap := h.o.active(); cap != nil {
		return cap.SetVolume(volume)
	}
	return nil
}

func (h handle) SetMuted(muted bool) error {
	if cap := h.o.active(); cap != nil {
		return cap.SetMuted(muted)
	}
	return nil
}

func (h handle) SetPlaybackRate(playbackRate float64) error {
	if cap := h.o.active(); cap != nil {
		return cap.SetPlaybackRate(playbackRate)
	}
	return nil
}

func (h handle) Title(ctx context.Context) (string, error) {
	if cap := h.o.active(); cap != nil {
		return cap.Title(ctx)
	}
	return "", adapter.ErrNotMounted
}

func (h handle) Instance() any {
	if cap := h.o.active(); cap != nil {
		return cap.Instance()
	}
	return nil
}
