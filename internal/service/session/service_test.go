package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbridge/server/internal/domain"
	sessionRepo "github.com/playbridge/server/internal/repository/session"
	sessionRedis "github.com/playbridge/server/internal/repository/session/redis"
)

func newTestService(t *testing.T) (*service, iSnapshotRepo) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	repo := sessionRedis.NewRepo(rc, time.Hour)

	svc := NewService(repo, nil, &Config{
		DefaultVolume:     1,
		VolumeAPIReliable: true,
		ResumeThreshold:   5,
	}, slog.Default())

	return svc, repo
}

func TestCreateAndGetSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Id)

	got, err := svc.GetSession(sess.Id)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	assert.Contains(t, svc.SessionIds(), sess.Id)
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemoveSessionTearsDown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveSession(ctx, sess.Id))

	_, err = svc.GetSession(sess.Id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// the bridge dies with the session
	assert.Error(t, sess.Bridge.Post([]byte(`{}`)))

	assert.ErrorIs(t, svc.RemoveSession(ctx, sess.Id), ErrSessionNotFound)
}

func TestLoadSourceUnsupported(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.LoadSource(ctx, sess.Id, "not a url")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestLoadSourceMountsNative(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	descriptor, err := svc.LoadSource(ctx, sess.Id, "https://cdn.example.com/video.mp4")
	require.NoError(t, err)
	require.NotNil(t, descriptor)
	assert.Equal(t, domain.ServiceNative, descriptor.Service)
	assert.Equal(t, descriptor, sess.Descriptor())

	// unload renders nothing again
	descriptor, err = svc.LoadSource(ctx, sess.Id, "")
	require.NoError(t, err)
	assert.Nil(t, descriptor)
	assert.Nil(t, sess.Descriptor())
}

func TestResumeSeeksOnReady(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	src := "https://cdn.example.com/lecture.mp4"
	require.NoError(t, repo.SetSnapshot(ctx, &sessionRepo.SetSnapshotParams{
		Src:          src,
		Service:      "native",
		CurrentTime:  120,
		Duration:     300,
		PlaybackRate: 1,
		UpdatedAt:    time.Now().Unix(),
	}))

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.LoadSource(ctx, sess.Id, src)
	require.NoError(t, err)

	// the embed reports the element is playable
	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"canplay","duration":300,"volume":1,"playback_rate":1}}`)))

	require.Eventually(t, sess.Store.Ready, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return sess.Bridge.CurrentTime() == 120 }, time.Second, 5*time.Millisecond, "saved position must be restored once ready")
}

func TestNearEndPositionNotResumed(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	src := "https://cdn.example.com/short.mp4"
	require.NoError(t, repo.SetSnapshot(ctx, &sessionRepo.SetSnapshotParams{
		Src:         src,
		Service:     "native",
		CurrentTime: 298,
		Duration:    300,
	}))

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.LoadSource(ctx, sess.Id, src)
	require.NoError(t, err)

	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"canplay","duration":300,"volume":1,"playback_rate":1}}`)))
	require.Eventually(t, sess.Store.Ready, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, float64(0), sess.Bridge.CurrentTime())
}

func TestSnapshotDroppedWhenPlaybackEnds(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	src := "https://cdn.example.com/movie.mp4"
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.LoadSource(ctx, sess.Id, src)
	require.NoError(t, err)

	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"canplay","duration":300,"volume":1,"playback_rate":1}}`)))
	require.Eventually(t, sess.Store.Ready, time.Second, 5*time.Millisecond)

	require.NoError(t, sess.Orchestrator.Handle().Play())
	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"playing","current_time":0,"duration":300,"volume":1,"playback_rate":1}}`)))
	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"timeupdate","current_time":295,"duration":300,"volume":1,"playback_rate":1}}`)))

	require.Eventually(t, func() bool {
		snapshot, err := repo.GetSnapshot(ctx, src)
		return err == nil && snapshot.CurrentTime == 295
	}, time.Second, 5*time.Millisecond)

	// the video finishes: the rewind-and-pause transition must take the
	// snapshot with it so the next load starts from the beginning
	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"ended","current_time":300,"duration":300,"volume":1,"playback_rate":1}}`)))

	require.Eventually(t, func() bool {
		_, err := repo.GetSnapshot(ctx, src)
		return errors.Is(err, sessionRepo.ErrSnapshotNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestProgressPersistedForResume(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	src := "https://cdn.example.com/video.mp4"
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.LoadSource(ctx, sess.Id, src)
	require.NoError(t, err)

	require.NoError(t, sess.Bridge.HandleFrame([]byte(`{"channel":"media","event":{"kind":"timeupdate","current_time":42,"duration":300,"volume":1,"playback_rate":1}}`)))

	require.Eventually(t, func() bool {
		snapshot, err := repo.GetSnapshot(ctx, src)
		return err == nil && snapshot.CurrentTime == 42
	}, time.Second, 5*time.Millisecond)
}
