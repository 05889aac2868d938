// Package bridge is the server half of the embed shim protocol. Each session
// owns one Bridge; the embedded page connects to it over a websocket and
// relays vendor postMessage traffic, script-injection requests, and native
// media element commands and events as multiplexed JSON frames.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/playbridge/server/internal/adapter/native"
)

var (
	ErrAlreadyAttached = errors.New("embed already attached")
	ErrNotAttached     = errors.New("no embed attached")
	ErrClosed          = errors.New("bridge closed")
)

// frame channels
const (
	channelVendor  = "vendor"
	channelRuntime = "runtime"
	channelMedia   = "media"
	channelHello   = "hello"
)

// inboundFrame is one multiplexed message from the embed. Which fields are
// set depends on the channel.
type inboundFrame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Globals []string        `json:"globals,omitempty"`
	Event   *mediaEvent     `json:"event,omitempty"`
	CanPlay []string        `json:"can_play,omitempty"`
}

type mediaEvent struct {
	Kind         string  `json:"kind"`
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
	Volume       float64 `json:"volume"`
	Muted        bool    `json:"muted"`
	PlaybackRate float64 `json:"playback_rate"`
	Code         int     `json:"code"`
	Message      string  `json:"message"`
}

type outboundFrame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Inject  string          `json:"inject,omitempty"`
	Command *mediaCommand   `json:"command,omitempty"`
}

type mediaCommand struct {
	Op     string  `json:"op"`
	Src    string  `json:"src,omitempty"`
	Engine string  `json:"engine,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Flag   bool    `json:"flag,omitempty"`
}

// media command ops
const (
	opSetSource       = "set_source"
	opLoad            = "load"
	opPlay            = "play"
	opPause           = "pause"
	opSetCurrentTime  = "set_current_time"
	opSetVolume       = "set_volume"
	opSetMuted        = "set_muted"
	opSetPlaybackRate = "set_playback_rate"
	opAttachEngine    = "attach_engine"
	opDetachEngine    = "detach_engine"
)

// Bridge multiplexes one embed connection into the three surfaces the
// adapters consume: a vendor message bus, a script-injection runtime, and a
// remote media element. It outlives individual connections; the embed may
// detach and reattach without the session noticing beyond missed frames,
// and injected scripts are re-delivered to each new attachment.
type Bridge struct {
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	vendorIn    chan []byte
	mediaEvents chan native.Event

	globals  map[string]struct{}
	canPlay  map[string]struct{}
	injected []string

	// mirror of the remote element, refreshed by media events
	currentTime  float64
	duration     float64
	volume       float64
	muted        bool
	playbackRate float64
}

func NewBridge(logger *slog.Logger) *Bridge {
	return &Bridge{
		logger:       logger,
		vendorIn:     make(chan []byte, 32),
		mediaEvents:  make(chan native.Event, 32),
		globals:      make(map[string]struct{}),
		canPlay:      make(map[string]struct{}),
		volume:       1,
		playbackRate: 1,
	}
}

// Attach binds an embed connection. Only one embed may be attached at a time.
// Scripts injected during an earlier attachment are re-delivered: the new
// page starts bare and has to evaluate them again.
func (b *Bridge) Attach(conn *websocket.Conn) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.conn != nil {
		return ErrAlreadyAttached
	}
	b.conn = conn

	for _, url := range b.injected {
		if err := b.writeFrame(outboundFrame{Channel: channelRuntime, Inject: url}); err != nil {
			b.logger.Warn("bridge: failed to replay script injection", "url", url, "error", err)
		}
	}

	return nil
}

// Detach releases the connection if it is still the attached one.
func (b *Bridge) Detach(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == conn {
		b.conn = nil
		// injected globals die with the page
		b.globals = make(map[string]struct{})
	}
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	b.conn = nil
	// closed under mu so no frame handler can race a send against the close
	close(b.vendorIn)
	close(b.mediaEvents)
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	return nil
}

// HandleFrame dispatches one raw message read from the embed connection.
func (b *Bridge) HandleFrame(payload []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return fmt.Errorf("failed to parse embed frame: %w", err)
	}

	switch frame.Channel {
	case channelVendor:
		b.pushVendor(frame.Payload)
	case channelRuntime:
		b.setGlobals(frame.Globals)
	case channelMedia:
		if frame.Event == nil {
			return fmt.Errorf("media frame without event")
		}
		b.handleMediaEvent(frame.Event)
	case channelHello:
		b.setCanPlay(frame.CanPlay)
	default:
		return fmt.Errorf("unknown embed channel: %q", frame.Channel)
	}

	return nil
}

func (b *Bridge) pushVendor(payload json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	select {
	case b.vendorIn <- payload:
	default:
		b.logger.Warn("bridge: vendor frame dropped, consumer too slow")
	}
}

func (b *Bridge) setGlobals(globals []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, global := range globals {
		b.globals[global] = struct{}{}
	}
}

func (b *Bridge) setCanPlay(mimes []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, mime := range mimes {
		b.canPlay[mime] = struct{}{}
	}
}

func (b *Bridge) handleMediaEvent(event *mediaEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.currentTime = event.CurrentTime
	b.duration = event.Duration
	b.volume = event.Volume
	b.muted = event.Muted
	if event.PlaybackRate > 0 {
		b.playbackRate = event.PlaybackRate
	}

	select {
	case b.mediaEvents <- native.Event{Kind: native.EventKind(event.Kind), Code: event.Code, Message: event.Message}:
	default:
		b.logger.Warn("bridge: media event dropped, consumer too slow", "kind", event.Kind)
	}
}

func (b *Bridge) send(frame outboundFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.conn == nil {
		// no embed attached; the frame has no receiver
		return nil
	}

	return b.writeFrame(frame)
}

// writeFrame requires b.mu held and b.conn non-nil.
func (b *Bridge) writeFrame(frame outboundFrame) error {
	if err := b.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write embed frame: %w", err)
	}

	return nil
}

// adapter.Bus

func (b *Bridge) Post(payload []byte) error {
	return b.send(outboundFrame{Channel: channelVendor, Payload: payload})
}

func (b *Bridge) Messages() <-chan []byte {
	return b.vendorIn
}

// loader.Runtime

// InjectScript fails when no embed is attached: an injection that never
// reached a page must not be recorded as done by the caller. Delivered
// injections are remembered and replayed to later attachments.
func (b *Bridge) InjectScript(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.conn == nil {
		return ErrNotAttached
	}

	if err := b.writeFrame(outboundFrame{Channel: channelRuntime, Inject: url}); err != nil {
		return err
	}
	if !slices.Contains(b.injected, url) {
		b.injected = append(b.injected, url)
	}

	return nil
}

func (b *Bridge) HasGlobal(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.globals[symbol]
	return ok
}
