package bunny

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/state"
)

const busContext = "player.js"

type iLoader interface {
	Load(ctx context.Context, name string) error
}

// Adapter drives a Bunny-style embed over its player.js message bus. The
// vendor API exposes no volume or rate control, so this adapter carries a
// reduced capability set: SetVolume, SetMuted and SetPlaybackRate return
// adapter.ErrNotSupported.
type Adapter struct {
	descriptor domain.VideoDescriptor
	bus        adapter.Bus
	loader     iLoader
	store      *state.Store
	token      state.WriterToken
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	vendorReady bool
	wasPlaying  bool
}

func NewAdapter(descriptor domain.VideoDescriptor, bus adapter.Bus, loader iLoader, store *state.Store, token state.WriterToken, logger *slog.Logger) *Adapter {
	return &Adapter{
		descriptor: descriptor,
		bus:        bus,
		loader:     loader,
		store:      store,
		token:      token,
		logger:     logger,
	}
}

func (a *Adapter) Mount(ctx context.Context) error {
	// the vendor global appears only once its script evaluates; absence
	// just means not loaded yet, so poll through the loader
	if err := a.loader.Load(ctx, "bunny"); err != nil {
		a.logger.Error("bunny: vendor library unavailable", "error", err)
		return nil
	}

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.wg.Add(1)
	go a.pump(pumpCtx)

	return nil
}

func (a *Adapter) Unmount() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Adapter) pump(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-a.bus.Messages():
			if !ok {
				return
			}
			a.handleMessage(payload)
		}
	}
}

type frame struct {
	Context string          `json:"context"`
	Event   string          `json:"event,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

func (a *Adapter) handleMessage(payload []byte) {
	var msg frame
	if err := json.Unmarshal(payload, &msg); err != nil {
		a.logger.Debug("bunny: dropped unparseable frame", "error", err)
		return
	}
	if msg.Context != busContext {
		return
	}

	switch msg.Event {
	case "ready":
		a.mu.Lock()
		a.vendorReady = true
		a.mu.Unlock()
		// duration is only answered after ready, ask now
		a.post(map[string]any{"context": busContext, "method": "getDuration", "listener": "duration"})
	case "duration":
		var duration float64
		if err := json.Unmarshal(msg.Value, &duration); err != nil {
			a.logger.Debug("bunny: unparseable duration", "error", err)
			return
		}
		a.store.SetDuration(a.token, duration)
		a.store.SetReady(a.token, true)
	case "play":
		a.store.SetStarted(a.token, true)
		a.store.SetStatus(a.token, domain.StatusPlaying)
	case "pause":
		a.store.SetStatus(a.token, domain.StatusPaused)
	case "buffering":
		a.mu.Lock()
		a.wasPlaying = a.store.Status() == domain.StatusPlaying
		a.mu.Unlock()
		a.store.SetStatus(a.token, domain.StatusBuffering)
	case "seeked":
		a.mu.Lock()
		wasPlaying := a.wasPlaying
		a.wasPlaying = false
		a.mu.Unlock()
		if wasPlaying {
			a.store.SetStatus(a.token, domain.StatusPlaying)
		} else if a.store.Status() == domain.StatusBuffering {
			a.store.SetStatus(a.token, domain.StatusPaused)
		}
	case "timeupdate":
		var td struct {
			Seconds  float64 `json:"seconds"`
			Duration float64 `json:"duration"`
		}
		if err := json.Unmarshal(msg.Value, &td); err != nil {
			return
		}
		a.store.SetCurrentTime(a.token, td.Seconds)
	case "ended":
		a.method("setCurrentTime", 0)
		a.method("pause", nil)
		a.store.SetCurrentTime(a.token, 0)
		a.store.SetStatus(a.token, domain.StatusPaused)
	case "error":
		var ed struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Value, &ed); err != nil {
			a.logger.Debug("bunny: dropped unparseable error frame", "error", err)
			return
		}
		a.store.SetError(a.token, &domain.ErrorRecord{Code: ed.Code, Message: ed.Message})
	default:
		a.logger.Debug("bunny: ignored event", "event", msg.Event)
	}
}

func (a *Adapter) post(msg map[string]any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Warn("bunny: failed to marshal method frame", "error", err)
		return
	}
	if err := a.bus.Post(payload); err != nil {
		a.logger.Warn("bunny: failed to post method frame", "error", err)
	}
}

func (a *Adapter) method(name string, value any) {
	msg := map[string]any{"context": busContext, "method": name}
	if value != nil {
		msg["value"] = value
	}
	a.post(msg)
}

func (a *Adapter) Play() error {
	a.method("play", nil)
	return nil
}

func (a *Adapter) Pause() error {
	a.method("pause", nil)
	return nil
}

func (a *Adapter) SeekTo(seconds float64) error {
	a.method("setCurrentTime", seconds)
	return nil
}

func (a *Adapter) SetVolume(volume float64) error {
	return fmt.Errorf("bunny volume control: %w", adapter.ErrNotSupported)
}

func (a *Adapter) SetMuted(muted bool) error {
	return fmt.Errorf("bunny mute control: %w", adapter.ErrNotSupported)
}

func (a *Adapter) SetPlaybackRate(playbackRate float64) error {
	return fmt.Errorf("bunny playback rate control: %w", adapter.ErrNotSupported)
}

func (a *Adapter) Title(ctx context.Context) (string, error) {
	// the message bus has no title query
	return "", fmt.Errorf("bunny title: %w", adapter.ErrNotSupported)
}

func (a *Adapter) Instance() any {
	return a.bus
}
