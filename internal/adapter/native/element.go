package native

// EventKind mirrors the native media element event set this adapter
// consumes. All state flows from these events; the adapter never polls.
type EventKind string

const (
	EventCanPlay        EventKind = "canplay"
	EventPlay           EventKind = "play"
	EventPlaying        EventKind = "playing"
	EventPause          EventKind = "pause"
	EventWaiting        EventKind = "waiting"
	EventSeeking        EventKind = "seeking"
	EventSeeked         EventKind = "seeked"
	EventTimeUpdate     EventKind = "timeupdate"
	EventDurationChange EventKind = "durationchange"
	EventVolumeChange   EventKind = "volumechange"
	EventRateChange     EventKind = "ratechange"
	EventEnded          EventKind = "ended"
	EventError          EventKind = "error"
)

// media element error codes
const (
	mediaErrAborted         = 1
	mediaErrNetwork         = 2
	mediaErrDecode          = 3
	mediaErrSrcNotSupported = 4
)

type Event struct {
	Kind    EventKind
	Code    int
	Message string
}

// MediaElement is the narrow surface of a platform media element. The
// adapter is its only consumer; nothing outside this package touches the
// native handle directly.
type MediaElement interface {
	SetSource(src string)
	Load()
	Play() error
	Pause()
	SetCurrentTime(seconds float64)
	CurrentTime() float64
	Duration() float64
	SetVolume(volume float64)
	Volume() float64
	SetMuted(muted bool)
	Muted() bool
	SetPlaybackRate(playbackRate float64)
	PlaybackRate() float64
	CanPlayType(mime string) bool
	Events() <-chan Event
}

// StreamEngine is an adaptive-streaming plugin (HLS or DASH) that feeds a
// media element from a manifest source.
type StreamEngine interface {
	Attach(src string, element MediaElement) error
	Detach()
}

// Engines carries the available adaptive-streaming plugins. Either may be
// nil when the platform ships without the corresponding library.
type Engines struct {
	HLS  StreamEngine
	DASH StreamEngine
}
