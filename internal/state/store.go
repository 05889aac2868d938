package state

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/playbridge/server/internal/domain"
)

// Field names a PlaybackState field that changed.
type Field string

const (
	FieldReady        Field = "ready"
	FieldStarted      Field = "started"
	FieldStatus       Field = "status"
	FieldCurrentTime  Field = "current_time"
	FieldDuration     Field = "duration"
	FieldVolume       Field = "volume"
	FieldMuted        Field = "muted"
	FieldPlaybackRate Field = "playback_rate"
	FieldLive         Field = "live"
	FieldError        Field = "error"
	// FieldReset is emitted once when the whole state returns to defaults.
	FieldReset Field = "reset"
)

// Change is delivered to listeners with the state as of the change.
type Change struct {
	Field Field
	State domain.PlaybackState
}

// WriterToken authorizes writes to the store. Exactly one token is valid at
// a time; Acquire and Reset invalidate all previously issued tokens.
type WriterToken uint64

// Store is the shared playback state register: one writer (the mounted
// adapter), any number of readers and change listeners.
type Store struct {
	logger *slog.Logger

	mu        sync.Mutex
	state     domain.PlaybackState
	owner     WriterToken
	listeners []func(Change)

	// timeLimiter bounds how often current-time changes are fanned out to
	// listeners; the stored value is always updated.
	timeLimiter *rate.Limiter
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger:      logger,
		state:       domain.DefaultPlaybackState(),
		timeLimiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
	}
}

// Acquire invalidates every previously issued token and returns a fresh one.
func (s *Store) Acquire() WriterToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owner++
	return s.owner
}

// Revoke invalidates the given token if it is the current one.
func (s *Store) Revoke(token WriterToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == s.owner {
		s.owner++
	}
}

// Reset restores defaults and invalidates all issued tokens, so no event
// from a torn-down adapter can land in the fresh state.
func (s *Store) Reset() {
	s.mu.Lock()
	s.owner++
	s.state = domain.DefaultPlaybackState()
	change := Change{Field: FieldReset, State: s.state}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.notify(listeners, change)
}

// OnChange registers a listener for state changes. Listeners are invoked
// synchronously in registration order, outside the store lock.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

func (s *Store) listenersLocked() []func(Change) {
	listeners := make([]func(Change), len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}

func (s *Store) notify(listeners []func(Change), change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}

// set applies mutate under the lock if token is current, then fans out the
// change. Returns false for a stale token.
func (s *Store) set(token WriterToken, field Field, mutate func(*domain.PlaybackState) bool) bool {
	s.mu.Lock()
	if token != s.owner {
		s.mu.Unlock()
		s.logger.Debug("state: dropped write from stale token", "field", field)
		return false
	}
	if !mutate(&s.state) {
		s.mu.Unlock()
		return true
	}
	change := Change{Field: field, State: s.state}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if field == FieldCurrentTime && !s.timeLimiter.Allow() {
		return true
	}
	s.notify(listeners, change)
	return true
}

// SetReady marks the mount ready. Ready never regresses to false except via
// Reset; an attempt to do so is dropped.
func (s *Store) SetReady(token WriterToken, ready bool) {
	if !ready {
		s.logger.Debug("state: dropped ready regression")
		return
	}
	s.set(token, FieldReady, func(st *domain.PlaybackState) bool {
		if st.Ready {
			return false
		}
		st.Ready = true
		return true
	})
}

func (s *Store) SetStarted(token WriterToken, started bool) {
	s.set(token, FieldStarted, func(st *domain.PlaybackState) bool {
		if st.Started == started {
			return false
		}
		st.Started = started
		return true
	})
}

func (s *Store) SetStatus(token WriterToken, status domain.PlaybackStatus) {
	s.set(token, FieldStatus, func(st *domain.PlaybackState) bool {
		if st.Status == status {
			return false
		}
		st.Status = status
		return true
	})
}

func (s *Store) SetCurrentTime(token WriterToken, seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	s.set(token, FieldCurrentTime, func(st *domain.PlaybackState) bool {
		if st.CurrentTime == seconds {
			return false
		}
		st.CurrentTime = seconds
		return true
	})
}

func (s *Store) SetDuration(token WriterToken, seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	s.set(token, FieldDuration, func(st *domain.PlaybackState) bool {
		if st.Duration == seconds {
			return false
		}
		st.Duration = seconds
		return true
	})
}

func (s *Store) SetVolume(token WriterToken, volume float64) {
	volume = min(max(volume, 0), 1)
	s.set(token, FieldVolume, func(st *domain.PlaybackState) bool {
		if st.Volume == volume {
			return false
		}
		st.Volume = volume
		return true
	})
}

func (s *Store) SetMuted(token WriterToken, muted bool) {
	s.set(token, FieldMuted, func(st *domain.PlaybackState) bool {
		if st.Muted == muted {
			return false
		}
		st.Muted = muted
		return true
	})
}

func (s *Store) SetPlaybackRate(token WriterToken, playbackRate float64) {
	if playbackRate <= 0 {
		return
	}
	s.set(token, FieldPlaybackRate, func(st *domain.PlaybackState) bool {
		if st.PlaybackRate == playbackRate {
			return false
		}
		st.PlaybackRate = playbackRate
		return true
	})
}

func (s *Store) SetLive(token WriterToken, live bool) {
	s.set(token, FieldLive, func(st *domain.PlaybackState) bool {
		if st.Live == live {
			return false
		}
		st.Live = live
		return true
	})
}

func (s *Store) SetError(token WriterToken, record *domain.ErrorRecord) {
	s.set(token, FieldError, func(st *domain.PlaybackState) bool {
		if st.Err != nil {
			// first error wins for the mount
			return false
		}
		st.Err = record
		return true
	})
}

func (s *Store) Snapshot() domain.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Ready
}

func (s *Store) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Started
}

func (s *Store) Status() domain.PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Status
}

func (s *Store) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.CurrentTime
}

func (s *Store) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Duration
}

func (s *Store) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Volume
}

func (s *Store) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Muted
}

func (s *Store) PlaybackRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.PlaybackRate
}

func (s *Store) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Live
}

func (s *Store) Err() *domain.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Err
}
