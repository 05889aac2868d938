package domain

// PlaybackStatus is the playback state machine position. Ended is not a
// status: on end-of-stream the adapter seeks to 0 and pauses.
type PlaybackStatus string

const (
	StatusPaused    PlaybackStatus = "paused"
	StatusPlaying   PlaybackStatus = "playing"
	StatusBuffering PlaybackStatus = "buffering"
)

// ErrorRecord is a terminal-for-mount playback error reported by a vendor.
type ErrorRecord struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PlaybackState is the canonical playback status record shared by all
// consumers of a mount.
type PlaybackState struct {
	Ready        bool           `json:"ready"`
	Started      bool           `json:"started"`
	Status       PlaybackStatus `json:"status"`
	CurrentTime  float64        `json:"current_time"`
	Duration     float64        `json:"duration"`
	Volume       float64        `json:"volume"`
	Muted        bool           `json:"muted"`
	PlaybackRate float64        `json:"playback_rate"`
	Live         bool           `json:"live"`
	Err          *ErrorRecord   `json:"error,omitempty"`
}

// DefaultPlaybackState returns the state every fresh mount starts from.
func DefaultPlaybackState() PlaybackState {
	return PlaybackState{
		Status:       StatusPaused,
		Volume:       1,
		PlaybackRate: 1,
	}
}
