package bridge

import "github.com/playbridge/server/internal/adapter/native"

// The Bridge doubles as the remote media element: commands go out over the
// media channel, properties are read from the mirror the embed keeps fresh
// through media events.

func (b *Bridge) mediaCommand(cmd mediaCommand) {
	if err := b.send(outboundFrame{Channel: channelMedia, Command: &cmd}); err != nil {
		b.logger.Debug("bridge: media command not delivered", "op", cmd.Op, "error", err)
	}
}

func (b *Bridge) SetSource(src string) {
	b.mediaCommand(mediaCommand{Op: opSetSource, Src: src})
}

func (b *Bridge) Load() {
	b.mediaCommand(mediaCommand{Op: opLoad})
}

func (b *Bridge) Play() error {
	return b.send(outboundFrame{Channel: channelMedia, Command: &mediaCommand{Op: opPlay}})
}

func (b *Bridge) Pause() {
	b.mediaCommand(mediaCommand{Op: opPause})
}

func (b *Bridge) SetCurrentTime(seconds float64) {
	b.mu.Lock()
	b.currentTime = seconds
	b.mu.Unlock()
	b.mediaCommand(mediaCommand{Op: opSetCurrentTime, Value: seconds})
}

func (b *Bridge) CurrentTime() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentTime
}

func (b *Bridge) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

func (b *Bridge) SetVolume(volume float64) {
	b.mu.Lock()
	b.volume = volume
	b.mu.Unlock()
	b.mediaCommand(mediaCommand{Op: opSetVolume, Value: volume})
}

func (b *Bridge) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

func (b *Bridge) SetMuted(muted bool) {
	b.mu.Lock()
	b.muted = muted
	b.mu.Unlock()
	b.mediaCommand(mediaCommand{Op: opSetMuted, Flag: muted})
}

func (b *Bridge) Muted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.muted
}

func (b *Bridge) SetPlaybackRate(playbackRate float64) {
	b.mu.Lock()
	b.playbackRate = playbackRate
	b.mu.Unlock()
	b.mediaCommand(mediaCommand{Op: opSetPlaybackRate, Value: playbackRate})
}

func (b *Bridge) PlaybackRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playbackRate
}

func (b *Bridge) CanPlayType(mime string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.canPlay[mime]
	return ok
}

func (b *Bridge) Events() <-chan native.Event {
	return b.mediaEvents
}

// remoteEngine drives an adaptive-streaming library that lives in the embed.
type remoteEngine struct {
	bridge *Bridge
	kind   string
}

func (e remoteEngine) Attach(src string, _ native.MediaElement) error {
	return e.bridge.send(outboundFrame{Channel: channelMedia, Command: &mediaCommand{Op: opAttachEngine, Engine: e.kind, Src: src}})
}

func (e remoteEngine) Detach() {
	if err := e.bridge.send(outboundFrame{Channel: channelMedia, Command: &mediaCommand{Op: opDetachEngine, Engine: e.kind}}); err != nil {
		e.bridge.logger.Debug("bridge: engine detach not delivered", "engine", e.kind, "error", err)
	}
}

// Engines exposes the embed-side HLS and DASH libraries as stream engines.
func (b *Bridge) Engines() native.Engines {
	return native.Engines{
		HLS:  remoteEngine{bridge: b, kind: "hls"},
		DASH: remoteEngine{bridge: b, kind: "dash"},
	}
}
