package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/playbridge/server/internal/bridge"
	"github.com/playbridge/server/internal/classifier"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/loader"
	"github.com/playbridge/server/internal/orchestrator"
	"github.com/playbridge/server/internal/repository/session"
	"github.com/playbridge/server/internal/state"
	"github.com/playbridge/server/pkg/ctxlogger"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrUnsupportedSource = errors.New("unsupported source")
)

type iSnapshotRepo interface {
	SetSnapshot(ctx context.Context, params *session.SetSnapshotParams) error
	GetSnapshot(ctx context.Context, src string) (session.Snapshot, error)
	RemoveSnapshot(ctx context.Context, src string) error
}

type Config struct {
	DefaultVolume     float64
	DefaultMuted      bool
	VolumeAPIReliable bool
	YouTubeNoCookie   bool
	BunnyHosts        []string

	LoaderPollInterval time.Duration
	LoaderTimeout      time.Duration

	// ResumeThreshold is the minimum saved position worth resuming from.
	ResumeThreshold float64
}

// Session is one live player mount: its state store, its orchestrator, and
// the bridge the embed page talks through.
type Session struct {
	Id           string
	Store        *state.Store
	Orchestrator *orchestrator.Orchestrator
	Bridge       *bridge.Bridge

	mu         sync.Mutex
	descriptor *domain.VideoDescriptor
	resumeAt   float64
}

// Descriptor returns the currently loaded source, nil when nothing is loaded.
func (s *Session) Descriptor() *domain.VideoDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

type service struct {
	snapshotRepo iSnapshotRepo
	titleFetcher iTitleFetcher
	cfg          *Config
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(snapshotRepo iSnapshotRepo, titleFetcher iTitleFetcher, cfg *Config, logger *slog.Logger) *service {
	return &service{
		snapshotRepo: snapshotRepo,
		titleFetcher: titleFetcher,
		cfg:          cfg,
		logger:       logger,
		sessions:     make(map[string]*Session),
	}
}

// CreateSession builds a fresh session with its own store, bridge, loader and
// orchestrator, and registers it under a new id.
func (s *service) CreateSession(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	logger := s.logger.With("session_id", id)

	store := state.NewStore(logger)
	br := bridge.NewBridge(logger)
	ldr := loader.NewLoader(br, &loader.Config{
		PollInterval: s.cfg.LoaderPollInterval,
		Timeout:      s.cfg.LoaderTimeout,
	}, logger)

	factory := &adapterFactory{
		bridge:       br,
		loader:       ldr,
		store:        store,
		titleFetcher: s.titleFetcher,
		noCookie:     s.cfg.YouTubeNoCookie,
		logger:       logger,
	}

	orch := orchestrator.NewOrchestrator(factory, store, &orchestrator.Config{
		DefaultVolume:     s.cfg.DefaultVolume,
		DefaultMuted:      s.cfg.DefaultMuted,
		VolumeAPIReliable: s.cfg.VolumeAPIReliable,
	}, logger)

	sess := &Session{
		Id:           id,
		Store:        store,
		Orchestrator: orch,
		Bridge:       br,
	}

	store.OnChange(func(change state.Change) {
		s.persistSnapshot(sess, change)
	})
	orch.OnReady(func() {
		s.resume(sess)
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Debug("service.CreateSession", "session_id", id)
	return sess, nil
}

func (s *service) GetSession(sessionId string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionId]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// RemoveSession tears the session down: the adapter is unmounted and the
// bridge closed, so both websockets observe EOF.
func (s *service) RemoveSession(ctx context.Context, sessionId string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionId]
	delete(s.sessions, sessionId)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.Orchestrator.Shutdown()
	sess.Bridge.Close()

	s.logger.Debug("service.RemoveSession", "session_id", sessionId)
	return nil
}

func (s *service) SessionIds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Keys(s.sessions)
}

// LoadSource classifies src and mounts the matching adapter, remembering any
// persisted position for resume once the player is ready. An empty src
// unmounts the current adapter.
func (s *service) LoadSource(ctx context.Context, sessionId, src string) (*domain.VideoDescriptor, error) {
	funcName := "service.LoadSource"
	ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sessionId))

	sess, err := s.GetSession(sessionId)
	if err != nil {
		return nil, err
	}

	if src == "" {
		sess.setDescriptor(nil, 0)
		if err := sess.Orchestrator.SetSource(ctx, nil); err != nil {
			return nil, fmt.Errorf("failed to unmount source: %w", err)
		}
		return nil, nil
	}

	descriptor := classifier.Classify(src, &classifier.Config{BunnyHosts: s.cfg.BunnyHosts})
	if descriptor == nil {
		return nil, ErrUnsupportedSource
	}

	resumeAt := s.savedPosition(ctx, src)
	sess.setDescriptor(descriptor, resumeAt)

	if err := sess.Orchestrator.SetSource(ctx, descriptor); err != nil {
		return nil, fmt.Errorf("failed to set source: %w", err)
	}

	s.logger.DebugContext(ctx, funcName, "service", descriptor.Service, "resume_at", resumeAt)
	return descriptor, nil
}

func (sess *Session) setDescriptor(descriptor *domain.VideoDescriptor, resumeAt float64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.descriptor = descriptor
	sess.resumeAt = resumeAt
}

func (s *service) savedPosition(ctx context.Context, src string) float64 {
	snapshot, err := s.snapshotRepo.GetSnapshot(ctx, src)
	if err != nil {
		if !errors.Is(err, session.ErrSnapshotNotFound) {
			s.logger.WarnContext(ctx, "service.savedPosition", "error", err)
		}
		return 0
	}

	if snapshot.CurrentTime < s.cfg.ResumeThreshold {
		return 0
	}
	// positions at the very end restart from the beginning instead
	if snapshot.Duration > 0 && snapshot.CurrentTime > snapshot.Duration-s.cfg.ResumeThreshold {
		return 0
	}

	return snapshot.CurrentTime
}

// resume runs on ready and seeks to the remembered position, once per mount.
func (s *service) resume(sess *Session) {
	sess.mu.Lock()
	resumeAt := sess.resumeAt
	sess.resumeAt = 0
	sess.mu.Unlock()

	if resumeAt <= 0 {
		return
	}

	if err := sess.Orchestrator.Handle().SeekTo(resumeAt); err != nil {
		s.logger.Warn("service.resume", "session_id", sess.Id, "error", err)
	}
}

// persistSnapshot writes playback progress through to the repository so a
// later load of the same source can offer resume.
func (s *service) persistSnapshot(sess *Session, change state.Change) {
	if change.Field != state.FieldCurrentTime && change.Field != state.FieldStatus {
		return
	}

	sess.mu.Lock()
	descriptor := sess.descriptor
	sess.mu.Unlock()
	if descriptor == nil || descriptor.Service == domain.ServiceOther || descriptor.Service == domain.ServiceGDrive {
		return
	}
	if change.State.Live {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// a pause at position zero after playback means the video finished (the
	// ended transition rewinds and pauses); drop the snapshot so the next
	// load of this source starts fresh
	if change.State.Started && change.State.Status == domain.StatusPaused && change.State.CurrentTime == 0 {
		err := s.snapshotRepo.RemoveSnapshot(ctx, descriptor.Src)
		if err != nil && !errors.Is(err, session.ErrSnapshotNotFound) {
			s.logger.Warn("service.persistSnapshot", "session_id", sess.Id, "error", err)
		}
		return
	}

	err := s.snapshotRepo.SetSnapshot(ctx, &session.SetSnapshotParams{
		Src:          descriptor.Src,
		Service:      string(descriptor.Service),
		CurrentTime:  change.State.CurrentTime,
		Duration:     change.State.Duration,
		IsPlaying:    change.State.Status == domain.StatusPlaying,
		PlaybackRate: change.State.PlaybackRate,
		UpdatedAt:    time.Now().Unix(),
	})
	if err != nil {
		s.logger.Warn("service.persistSnapshot", "session_id", sess.Id, "error", err)
	}
}
