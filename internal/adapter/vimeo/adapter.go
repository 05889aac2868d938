package vimeo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/state"
)

const callTimeout = 5 * time.Second

type iLoader interface {
	Load(ctx context.Context, name string) error
}

// Adapter drives a Vimeo-style embed: commands are method frames, reads are
// promise-like round-trips (a method frame answered by a value frame), state
// arrives as event frames once the vendor reports ready.
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
	failed      bool
	title       string
	pending     map[string][]chan json.RawMessage
}

func NewAdapter(descriptor domain.VideoDescriptor, bus adapter.Bus, loader iLoader, store *state.Store, token state.WriterToken, logger *slog.Logger) *Adapter {
	return &Adapter{
		descriptor: descriptor,
		bus:        bus,
		loader:     loader,
		store:      store,
		token:      token,
		logger:     logger,
		pending:    make(map[string][]chan json.RawMessage),
	}
}

func (a *Adapter) Mount(ctx context.Context) error {
	if err := a.loader.Load(ctx, "vimeo"); err != nil {
		a.logger.Error("vimeo: vendor library unavailable", "error", err)
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
			a.handleMessage(ctx, payload)
		}
	}
}

type frame struct {
	Event  string          `json:"event,omitempty"`
	Method string          `json:"method,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (a *Adapter) handleMessage(ctx context.Context, payload []byte) {
	var msg frame
	if err := json.Unmarshal(payload, &msg); err != nil {
		a.logger.Debug("vimeo: dropped unparseable frame", "error", err)
		return
	}

	// a value frame resolves the oldest pending call for its method
	if msg.Method != "" {
		a.resolve(msg.Method, msg.Value)
		return
	}

	if msg.Event == "ready" {
		a.mu.Lock()
		alreadyReady := a.vendorReady
		a.vendorReady = true
		a.mu.Unlock()
		if !alreadyReady {
			a.wg.Add(1)
			go a.onVendorReady(ctx)
		}
		return
	}

	// event handlers attach only after the vendor readiness signal
	a.mu.Lock()
	vendorReady, failed := a.vendorReady, a.failed
	a.mu.Unlock()
	if !vendorReady || failed {
		return
	}

	a.handleEvent(msg.Event, msg.Data)
}

// onVendorReady fetches duration and title once the readiness promise has
// resolved. A reported duration of exactly 0 means a live stream.
func (a *Adapter) onVendorReady(ctx context.Context) {
	defer a.wg.Done()

	value, err := a.call(ctx, "getDuration")
	if err != nil {
		a.logger.Warn("vimeo: failed to get duration", "error", err)
		return
	}
	var duration float64
	if err := json.Unmarshal(value, &duration); err != nil {
		a.logger.Warn("vimeo: unparseable duration", "error", err)
		return
	}

	if duration == 0 {
		a.store.SetLive(a.token, true)
	}
	a.store.SetDuration(a.token, duration)
	a.store.SetReady(a.token, true)

	if value, err := a.call(ctx, "getVideoTitle"); err == nil {
		var title string
		if json.Unmarshal(value, &title) == nil {
			a.mu.Lock()
			a.title = title
			a.mu.Unlock()
		}
	}
}

type timeData struct {
	Seconds  float64 `json:"seconds"`
	Duration float64 `json:"duration"`
}

func (a *Adapter) handleEvent(event string, data json.RawMessage) {
	switch event {
	case "play":
		a.store.SetStarted(a.token, true)
		a.store.SetStatus(a.token, domain.StatusPlaying)
	case "pause":
		a.store.SetStatus(a.token, domain.StatusPaused)
	case "timeupdate":
		var td timeData
		if err := json.Unmarshal(data, &td); err != nil {
			return
		}
		a.store.SetCurrentTime(a.token, td.Seconds)
		if td.Duration > 0 {
			a.store.SetDuration(a.token, td.Duration)
		}
	case "bufferstart":
		a.mu.Lock()
		a.wasPlaying = a.store.Status() == domain.StatusPlaying
		a.mu.Unlock()
		a.store.SetStatus(a.token, domain.StatusBuffering)
	case "bufferend", "seeked":
		a.mu.Lock()
		wasPlaying := a.wasPlaying
		a.wasPlaying = false
		a.mu.Unlock()
		if wasPlaying {
			a.store.SetStatus(a.token, domain.StatusPlaying)
		} else if a.store.Status() == domain.StatusBuffering {
			a.store.SetStatus(a.token, domain.StatusPaused)
		}
	case "volumechange":
		// the embed reports a volume during boot; trust it only after
		// playback has started
		if !a.store.Started() {
			return
		}
		var vd struct {
			Volume float64 `json:"volume"`
			Muted  *bool   `json:"muted"`
		}
		if err := json.Unmarshal(data, &vd); err != nil {
			return
		}
		a.store.SetVolume(a.token, vd.Volume)
		if vd.Muted != nil {
			a.store.SetMuted(a.token, *vd.Muted)
		}
	case "playbackratechange":
		var rd struct {
			PlaybackRate float64 `json:"playbackRate"`
		}
		if err := json.Unmarshal(data, &rd); err != nil {
			return
		}
		a.store.SetPlaybackRate(a.token, rd.PlaybackRate)
	case "ended":
		a.post(map[string]any{"method": "setCurrentTime", "value": 0})
		a.post(map[string]any{"method": "pause"})
		a.store.SetCurrentTime(a.token, 0)
		a.store.SetStatus(a.token, domain.StatusPaused)
	case "fullscreenchange":
		var fd struct {
			Fullscreen bool `json:"fullscreen"`
		}
		if err := json.Unmarshal(data, &fd); err != nil {
			return
		}
		// a double-tap before playback starts can flip the embed into
		// fullscreen; back out of it
		if fd.Fullscreen && !a.store.Started() {
			a.post(map[string]any{"method": "exitFullscreen"})
		}
	case "error":
		a.handleError(data)
	default:
		a.logger.Debug("vimeo: ignored event", "event", event)
	}
}

func (a *Adapter) handleError(data json.RawMessage) {
	var ed struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &ed); err != nil {
		a.logger.Debug("vimeo: dropped unparseable error frame", "error", err)
		return
	}

	switch ed.Name {
	case "PlayInterrupted":
		// a pause racing a play promise; not fatal
		a.logger.Debug("vimeo: ignored interrupted play", "message", ed.Message)
		return
	case "PrivacyError", "PasswordError":
		// false positive on some privacy-restricted but playable videos
		if a.store.Duration() >= 1 {
			a.logger.Warn("vimeo: ignored privacy error for playable video", "name", ed.Name)
			return
		}
	}

	a.mu.Lock()
	a.failed = true
	a.mu.Unlock()

	a.store.SetError(a.token, &domain.ErrorRecord{
		Message: fmt.Sprintf("%s: %s", ed.Name, ed.Message),
	})
}

// call posts a method frame and waits for the matching value frame.
func (a *Adapter) call(ctx context.Context, method string) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)
	a.mu.Lock()
	a.pending[method] = append(a.pending[method], ch)
	a.mu.Unlock()

	a.post(map[string]any{"method": method})

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("call %s: %w", method, ctx.Err())
	case value := <-ch:
		return value, nil
	}
}

func (a *Adapter) resolve(method string, value json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	waiters := a.pending[method]
	if len(waiters) == 0 {
		return
	}
	waiters[0] <- value
	a.pending[method] = waiters[1:]
}

func (a *Adapter) post(msg map[string]any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Warn("vimeo: failed to marshal method frame", "error", err)
		return
	}
	if err := a.bus.Post(payload); err != nil {
		a.logger.Warn("vimeo: failed to post method frame", "error", err)
	}
}

func (a *Adapter) Play() error {
	a.post(map[string]any{"method": "play"})
	return nil
}

func (a *Adapter) Pause() error {
	a.post(map[string]any{"method": "pause"})
	return nil
}

// SeekTo writes the target position into the store before the vendor
// round-trip resolves, and speculatively reports buffering when seeking
// during playback: the vendor does not fire bufferstart for programmatic
// seeks.
func (a *Adapter) SeekTo(seconds float64) error {
	if a.store.Status() == domain.StatusPlaying {
		a.mu.Lock()
		a.wasPlaying = true
		a.mu.Unlock()
		a.store.SetStatus(a.token, domain.StatusBuffering)
	}
	a.store.SetCurrentTime(a.token, seconds)
	a.post(map[string]any{"method": "setCurrentTime", "value": seconds})
	return nil
}

func (a *Adapter) SetVolume(volume float64) error {
	a.post(map[string]any{"method": "setVolume", "value": min(max(volume, 0), 1)})
	return nil
}

// SetMuted mirrors the flag into the store before posting: older embeds
// report volumechange without the muted field, so the command is the only
// reliable signal.
func (a *Adapter) SetMuted(muted bool) error {
	a.store.SetMuted(a.token, muted)
	a.post(map[string]any{"method": "setMuted", "value": muted})
	return nil
}

func (a *Adapter) SetPlaybackRate(playbackRate float64) error {
	a.post(map[string]any{"method": "setPlaybackRate", "value": playbackRate})
	return nil
}

func (a *Adapter) Title(ctx context.Context) (string, error) {
	a.mu.Lock()
	title := a.title
	vendorReady := a.vendorReady
	a.mu.Unlock()
	if title != "" {
		return title, nil
	}
	if !vendorReady {
		return "", adapter.ErrNotMounted
	}

	value, err := a.call(ctx, "getVideoTitle")
	if err != nil {
		return "", fmt.Errorf("failed to get video title: %w", err)
	}
	if err := json.Unmarshal(value, &title); err != nil {
		return "", fmt.Errorf("failed to parse video title: %w", err)
	}

	a.mu.Lock()
	a.title = title
	a.mu.Unlock()

	return title, nil
}

func (a *Adapter) Instance() any {
	return a.bus
}
