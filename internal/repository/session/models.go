package session

import "errors"

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Snapshot is the persisted playback position for a source, written through
// on every progress change and consulted when the same source is loaded
// again to offer resume.
type Snapshot struct {
	Src          string  `redis:"src"`
	Service      string  `redis:"service"`
	CurrentTime  float64 `redis:"current_time"`
	Duration     float64 `redis:"duration"`
	IsPlaying    bool    `redis:"is_playing"`
	PlaybackRate float64 `redis:"playback_rate"`
	UpdatedAt    int64   `redis:"updated_at"`
}

type SetSnapshotParams struct {
	Src          string
	Service      string
	CurrentTime  float64
	Duration     float64
	IsPlaying    bool
	PlaybackRate float64
	UpdatedAt    int64
}
