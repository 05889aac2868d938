package native

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"

	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/state"
)

const nativeHLSMime = "application/vnd.apple.mpegurl"

type iLoader interface {
	Load(ctx context.Context, name string) error
}

// Adapter drives a native media element. Adaptive-streaming sources are
// delegated to an engine picked by source suffix, except HLS on platforms
// whose element can play it natively.
type Adapter struct {
	descriptor domain.VideoDescriptor
	element    MediaElement
	engines    Engines
	loader     iLoader
	store      *state.Store
	token      state.WriterToken
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	playRequested bool
	wasPlaying    bool
	failed        bool
	engine        StreamEngine
}

func NewAdapter(descriptor domain.VideoDescriptor, element MediaElement, engines Engines, loader iLoader, store *state.Store, token state.WriterToken, logger *slog.Logger) *Adapter {
	return &Adapter{
		descriptor: descriptor,
		element:    element,
		engines:    engines,
		loader:     loader,
		store:      store,
		token:      token,
		logger:     logger,
	}
}

func (a *Adapter) Mount(ctx context.Context) error {
	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.wg.Add(1)
	go a.pump(pumpCtx)

	a.attachSource(ctx)

	return nil
}

func (a *Adapter) Unmount() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	a.mu.Lock()
	engine := a.engine
	a.engine = nil
	a.mu.Unlock()
	if engine != nil {
		engine.Detach()
	}
}

func (a *Adapter) attachSource(ctx context.Context) {
	src := a.descriptor.Src

	switch sourceKind(src) {
	case sourceHLS:
		if a.element.CanPlayType(nativeHLSMime) {
			// the platform plays HLS natively, no engine involved
			a.element.SetSource(src)
		} else if a.engines.HLS != nil {
			if err := a.loader.Load(ctx, "hls"); err != nil {
				a.logger.Error("native: hls engine unavailable", "error", err)
				return
			}
			if err := a.engines.HLS.Attach(src, a.element); err != nil {
				a.logger.Error("native: failed to attach hls engine", "error", err)
				return
			}
			a.setEngine(a.engines.HLS)
		} else {
			a.logger.Error("native: no hls engine configured")
			return
		}
	case sourceDASH:
		if a.engines.DASH == nil {
			a.logger.Error("native: no dash engine configured")
			return
		}
		if err := a.loader.Load(ctx, "dash"); err != nil {
			a.logger.Error("native: dash engine unavailable", "error", err)
			return
		}
		if err := a.engines.DASH.Attach(src, a.element); err != nil {
			a.logger.Error("native: failed to attach dash engine", "error", err)
			return
		}
		a.setEngine(a.engines.DASH)
	default:
		a.element.SetSource(src)
	}

	a.element.Load()
}

func (a *Adapter) setEngine(engine StreamEngine) {
	a.mu.Lock()
	a.engine = engine
	a.mu.Unlock()
}

type sourceKindType int

const (
	sourceProgressive sourceKindType = iota
	sourceHLS
	sourceDASH
)

func sourceKind(src string) sourceKindType {
	path := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.ToLower(path)

	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return sourceHLS
	case strings.HasSuffix(path, ".mpd"):
		return sourceDASH
	default:
		return sourceProgressive
	}
}

func (a *Adapter) pump(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.element.Events():
			if !ok {
				return
			}
			a.handleEvent(event)
		}
	}
}

func (a *Adapter) handleEvent(event Event) {
	a.mu.Lock()
	failed := a.failed
	a.mu.Unlock()
	if failed {
		return
	}

	switch event.Kind {
	case EventCanPlay, EventDurationChange:
		duration := a.element.Duration()
		if math.IsInf(duration, 1) {
			// unbounded duration is how the element reports a live stream
			a.store.SetLive(a.token, true)
			duration = 0
		}
		a.store.SetDuration(a.token, duration)
		if event.Kind == EventCanPlay {
			a.store.SetReady(a.token, true)
		}
	case EventPlaying:
		a.mu.Lock()
		playRequested := a.playRequested
		a.mu.Unlock()
		if !playRequested {
			// autoplay slipped past the platform policy; stop it before
			// it is observable
			a.element.Pause()
			return
		}
		a.store.SetStarted(a.token, true)
		a.store.SetStatus(a.token, domain.StatusPlaying)
	case EventPlay:
		// play intent; the playing event carries the actual transition
	case EventPause:
		a.store.SetStatus(a.token, domain.StatusPaused)
	case EventWaiting, EventSeeking:
		a.mu.Lock()
		if a.store.Status() == domain.StatusPlaying {
			a.wasPlaying = true
		}
		a.mu.Unlock()
		a.store.SetStatus(a.token, domain.StatusBuffering)
	case EventSeeked:
		a.mu.Lock()
		wasPlaying := a.wasPlaying
		a.wasPlaying = false
		a.mu.Unlock()
		if wasPlaying {
			a.store.SetStatus(a.token, domain.StatusPlaying)
		} else if a.store.Status() == domain.StatusBuffering {
			a.store.SetStatus(a.token, domain.StatusPaused)
		}
	case EventTimeUpdate:
		a.store.SetCurrentTime(a.token, a.element.CurrentTime())
	case EventVolumeChange:
		// element volume events only fire on real changes, no gating on
		// started needed here
		a.store.SetVolume(a.token, a.element.Volume())
		a.store.SetMuted(a.token, a.element.Muted())
	case EventRateChange:
		a.store.SetPlaybackRate(a.token, a.element.PlaybackRate())
	case EventEnded:
		a.element.SetCurrentTime(0)
		a.element.Pause()
		a.store.SetCurrentTime(a.token, 0)
		a.store.SetStatus(a.token, domain.StatusPaused)
	case EventError:
		a.handleError(event)
	}
}

func (a *Adapter) handleError(event Event) {
	if event.Code == mediaErrAborted {
		// fetch aborted by a source change or teardown; not a playback
		// failure
		a.logger.Debug("native: ignored aborted fetch", "message", event.Message)
		return
	}

	a.mu.Lock()
	a.failed = true
	a.mu.Unlock()

	a.store.SetError(a.token, &domain.ErrorRecord{Code: event.Code, Message: event.Message})
}

func (a *Adapter) Play() error {
	a.mu.Lock()
	a.playRequested = true
	a.mu.Unlock()

	if err := a.element.Play(); err != nil {
		// autoplay policy rejections surface here; not fatal
		a.logger.Warn("native: play rejected", "error", err)
	}
	return nil
}

func (a *Adapter) Pause() error {
	a.element.Pause()
	return nil
}

func (a *Adapter) SeekTo(seconds float64) error {
	a.element.SetCurrentTime(seconds)
	return nil
}

func (a *Adapter) SetVolume(volume float64) error {
	a.element.SetVolume(min(max(volume, 0), 1))
	return nil
}

func (a *Adapter) SetMuted(muted bool) error {
	a.element.SetMuted(muted)
	return nil
}

func (a *Adapter) SetPlaybackRate(playbackRate float64) error {
	if playbackRate <= 0 {
		return nil
	}
	a.element.SetPlaybackRate(playbackRate)
	return nil
}

func (a *Adapter) Title(ctx context.Context) (string, error) {
	// progressive sources carry no metadata channel; derive from the URL
	u, err := url.Parse(a.descriptor.Src)
	if err != nil || u.Path == "" {
		return "", nil
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	name := segments[len(segments)-1]
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	return name, nil
}

func (a *Adapter) Instance() any {
	return a.element
}
