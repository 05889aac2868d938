package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/state"
)

const (
	primaryDomain  = "https://www.youtube.com"
	noCookieDomain = "https://www.youtube-nocookie.com"
)

// player states reported by the embed
const (
	playerStateUnstarted = -1
	playerStateEnded     = 0
	playerStatePlaying   = 1
	playerStatePaused    = 2
	playerStateBuffering = 3
	playerStateCued      = 5
)

// error codes reported by the embed
const (
	errCodeInvalidParam   = 2
	errCodeHTML5          = 5
	errCodeNotFound       = 100
	errCodeNotEmbeddable  = 101
	errCodeNotEmbeddable2 = 150
)

type iLoader interface {
	Load(ctx context.Context, name string) error
}

type iTitleFetcher interface {
	Title(ctx context.Context, videoId string) (string, error)
}

type Config struct {
	// NoCookie serves the embed from the cookieless domain. Shorts are
	// always served from the primary domain: the cookieless one rejects
	// shorts playback.
	NoCookie bool
}

// Adapter drives a YouTube-style embed over its postMessage protocol: a
// single listener on the bus, commands as {"event":"command"} frames,
// state via onStateChange and infoDelivery frames.
type Adapter struct {
	descriptor   domain.VideoDescriptor
	bus          adapter.Bus
	loader       iLoader
	titleFetcher iTitleFetcher
	store        *state.Store
	token        state.WriterToken
	cfg          *Config
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	failed bool
	title  string
}

func NewAdapter(descriptor domain.VideoDescriptor, bus adapter.Bus, loader iLoader, titleFetcher iTitleFetcher, store *state.Store, token state.WriterToken, cfg *Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		descriptor:   descriptor,
		bus:          bus,
		loader:       loader,
		titleFetcher: titleFetcher,
		store:        store,
		token:        token,
		cfg:          cfg,
		logger:       logger,
	}
}

// EmbedDomain picks the serving domain for this mount.
func (a *Adapter) EmbedDomain() string {
	if a.descriptor.Service == domain.ServiceYouTubeShorts {
		return primaryDomain
	}
	if a.cfg.NoCookie {
		return noCookieDomain
	}
	return primaryDomain
}

func (a *Adapter) EmbedURL() string {
	return fmt.Sprintf("%s/embed/%s?enablejsapi=1&controls=0&playsinline=1", a.EmbedDomain(), a.descriptor.Id)
}

func (a *Adapter) Mount(ctx context.Context) error {
	if err := a.loader.Load(ctx, "youtube"); err != nil {
		// a missing vendor library is an environment problem, not a
		// playback error: the mount stays not-ready but recoverable
		a.logger.Error("youtube: vendor library unavailable", "error", err)
		return nil
	}

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.wg.Add(1)
	go a.pump(pumpCtx)

	// announce ourselves so the embed starts pushing infoDelivery frames
	a.post(map[string]any{"event": "listening", "id": a.descriptor.Id, "channel": "widget"})

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

type envelope struct {
	Event string          `json:"event"`
	Info  json.RawMessage `json:"info"`
}

type info struct {
	CurrentTime  *float64 `json:"currentTime"`
	Duration     *float64 `json:"duration"`
	Volume       *float64 `json:"volume"`
	Muted        *bool    `json:"muted"`
	PlaybackRate *float64 `json:"playbackRate"`
	PlayerState  *int     `json:"playerState"`
	VideoData    *struct {
		Title  string `json:"title"`
		IsLive bool   `json:"isLive"`
	} `json:"videoData"`
}

func (a *Adapter) handleMessage(payload []byte) {
	var msg envelope
	if err := json.Unmarshal(payload, &msg); err != nil {
		a.logger.Debug("youtube: dropped unparseable frame", "error", err)
		return
	}

	if a.hasFailed() {
		// a fatal error stops state propagation for the rest of the mount
		return
	}

	switch msg.Event {
	case "onReady":
		// duration and the rest arrive with the first infoDelivery
	case "infoDelivery":
		a.handleInfoDelivery(msg.Info)
	case "onStateChange":
		var playerState int
		if err := json.Unmarshal(msg.Info, &playerState); err != nil {
			a.logger.Debug("youtube: dropped unparseable state change", "error", err)
			return
		}
		a.handleStateChange(playerState)
	case "onError":
		var code int
		if err := json.Unmarshal(msg.Info, &code); err != nil {
			a.logger.Debug("youtube: dropped unparseable error frame", "error", err)
			return
		}
		a.handleError(code)
	default:
		a.logger.Debug("youtube: ignored frame", "event", msg.Event)
	}
}

func (a *Adapter) handleInfoDelivery(raw json.RawMessage) {
	var in info
	if err := json.Unmarshal(raw, &in); err != nil {
		a.logger.Debug("youtube: dropped unparseable info frame", "error", err)
		return
	}

	if in.Duration != nil {
		a.store.SetDuration(a.token, *in.Duration)
		a.store.SetReady(a.token, true)
	}
	if in.VideoData != nil {
		a.setTitle(in.VideoData.Title)
		a.store.SetLive(a.token, in.VideoData.IsLive)
	}
	if in.CurrentTime != nil {
		a.store.SetCurrentTime(a.token, *in.CurrentTime)
	}
	// the embed fires a volume report during boot, before any user
	// interaction; trust volume frames only once playback has started
	if a.store.Started() {
		if in.Volume != nil {
			a.store.SetVolume(a.token, fromVendorVolume(*in.Volume))
		}
		if in.Muted != nil {
			a.store.SetMuted(a.token, *in.Muted)
		}
	}
	if in.PlaybackRate != nil {
		a.store.SetPlaybackRate(a.token, *in.PlaybackRate)
	}
	if in.PlayerState != nil {
		a.handleStateChange(*in.PlayerState)
	}
}

func (a *Adapter) handleStateChange(playerState int) {
	switch playerState {
	case playerStatePlaying:
		a.store.SetStarted(a.token, true)
		a.store.SetStatus(a.token, domain.StatusPlaying)
	case playerStatePaused:
		a.store.SetStatus(a.token, domain.StatusPaused)
	case playerStateBuffering:
		a.store.SetStatus(a.token, domain.StatusBuffering)
	case playerStateEnded:
		// the embed stays on its end screen; rewind and pause ourselves
		a.command("seekTo", 0, true)
		a.command("pauseVideo")
		a.store.SetCurrentTime(a.token, 0)
		a.store.SetStatus(a.token, domain.StatusPaused)
	case playerStateUnstarted, playerStateCued:
	}
}

func (a *Adapter) handleError(code int) {
	switch code {
	case errCodeNotEmbeddable, errCodeNotEmbeddable2:
		// the embed false-positives these on some playable assets; a real
		// duration means the video is fine
		if a.store.Duration() >= 1 {
			a.logger.Warn("youtube: ignored embeddability error for playable video", "code", code)
			return
		}
	}

	a.mu.Lock()
	a.failed = true
	a.mu.Unlock()

	a.store.SetError(a.token, &domain.ErrorRecord{
		Code:    code,
		Message: errorMessage(code),
	})
}

func errorMessage(code int) string {
	switch code {
	case errCodeInvalidParam:
		return "invalid video id"
	case errCodeHTML5:
		return "html5 player error"
	case errCodeNotFound:
		return "video not found"
	case errCodeNotEmbeddable, errCodeNotEmbeddable2:
		return "video cannot be embedded"
	default:
		return fmt.Sprintf("playback error %d", code)
	}
}

func (a *Adapter) hasFailed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failed
}

func (a *Adapter) setTitle(title string) {
	if title == "" {
		return
	}
	a.mu.Lock()
	a.title = title
	a.mu.Unlock()
}

func (a *Adapter) post(msg map[string]any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Warn("youtube: failed to marshal command", "error", err)
		return
	}
	if err := a.bus.Post(payload); err != nil {
		a.logger.Warn("youtube: failed to post command", "error", err)
	}
}

func (a *Adapter) command(fn string, args ...any) {
	if args == nil {
		args = []any{}
	}
	a.post(map[string]any{"event": "command", "func": fn, "args": args})
}

// fromVendorVolume maps the embed's 0-100 volume domain to [0,1].
func fromVendorVolume(volume float64) float64 {
	return min(max(volume/100, 0), 1)
}

// toVendorVolume maps [0,1] to the embed's 0-100 domain.
func toVendorVolume(volume float64) int {
	return int(math.Round(min(max(volume, 0), 1) * 100))
}

func (a *Adapter) Play() error {
	a.command("playVideo")
	return nil
}

func (a *Adapter) Pause() error {
	a.command("pauseVideo")
	return nil
}

func (a *Adapter) SeekTo(seconds float64) error {
	a.command("seekTo", seconds, true)
	return nil
}

func (a *Adapter) SetVolume(volume float64) error {
	a.command("setVolume", toVendorVolume(volume))
	return nil
}

func (a *Adapter) SetMuted(muted bool) error {
	if muted {
		a.command("mute")
	} else {
		a.command("unMute")
	}
	return nil
}

func (a *Adapter) SetPlaybackRate(playbackRate float64) error {
	a.command("setPlaybackRate", playbackRate)
	return nil
}

func (a *Adapter) Title(ctx context.Context) (string, error) {
	a.mu.Lock()
	title := a.title
	a.mu.Unlock()
	if title != "" {
		return title, nil
	}

	if a.titleFetcher == nil {
		return "", adapter.ErrNotMounted
	}

	title, err := a.titleFetcher.Title(ctx, a.descriptor.Id)
	if err != nil {
		return "", fmt.Errorf("failed to fetch title: %w", err)
	}
	a.setTitle(title)

	return title, nil
}

func (a *Adapter) Instance() any {
	return a.bus
}
