package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/state"
)

type fakeAdapter struct {
	store *state.Store
	token state.WriterToken

	mu              sync.Mutex
	mounted         bool
	unmounted       bool
	snapshotAtMount domain.PlaybackState
	volumes         []float64
	mutes           []bool
	stop            chan struct{}
	wg              sync.WaitGroup
}

func (a *fakeAdapter) Mount(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mounted = true
	a.snapshotAtMount = a.store.Snapshot()
	a.stop = make(chan struct{})
	return nil
}

func (a *fakeAdapter) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unmounted = true
	close(a.stop)
	a.wg.Wait()
}

// startTicking simulates a vendor event pump writing current time.
func (a *fakeAdapter) startTicking() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := 0.0
		for {
			select {
			case <-a.stop:
				return
			case <-time.After(time.Millisecond):
				t++
				a.store.SetCurrentTime(a.token, t)
			}
		}
	}()
}

func (a *fakeAdapter) Play() error  { return nil }
func (a *fakeAdapter) Pause() error { return nil }
func (a *fakeAdapter) SeekTo(seconds float64) error {
	a.store.SetCurrentTime(a.token, seconds)
	return nil
}

func (a *fakeAdapter) SetVolume(volume float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumes = append(a.volumes, volume)
	return nil
}

func (a *fakeAdapter) SetMuted(muted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mutes = append(a.mutes, muted)
	return nil
}

func (a *fakeAdapter) SetPlaybackRate(playbackRate float64) error { return nil }
func (a *fakeAdapter) Title(ctx context.Context) (string, error)  { return "fake", nil }
func (a *fakeAdapter) Instance() any                              { return nil }

type fakeFactory struct {
	store *state.Store

	mu   sync.Mutex
	made []*fakeAdapter
}

func (f *fakeFactory) NewAdapter(descriptor domain.VideoDescriptor, token state.WriterToken) (adapter.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := &fakeAdapter{store: f.store, token: token}
	f.made = append(f.made, a)
	return a, nil
}

func (f *fakeFactory) last() *fakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[len(f.made)-1]
}

func newTestOrchestrator(cfg *Config) (*Orchestrator, *fakeFactory, *state.Store) {
	store := state.NewStore(slog.Default())
	factory := &fakeFactory{store: store}
	if cfg == nil {
		cfg = &Config{DefaultVolume: 0.8, VolumeAPIReliable: true}
	}
	return NewOrchestrator(factory, store, cfg, slog.Default()), factory, store
}

func TestStateResetsBeforeMount(t *testing.T) {
	o, factory, store := newTestOrchestrator(nil)
	ctx := context.Background()

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceYouTube, Id: "a"}))
	first := factory.last()
	first.store.SetReady(first.token, true)
	first.store.SetDuration(first.token, 300)
	first.store.SetCurrentTime(first.token, 120)

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceVimeo, Id: "b"}))
	second := factory.last()

	assert.Equal(t, domain.DefaultPlaybackState(), second.snapshotAtMount, "the new adapter must observe default state at mount")
	assert.Equal(t, float64(0), store.Duration(), "no stale duration may leak across mounts")
}

func TestOldAdapterDetachedOnSwitch(t *testing.T) {
	o, factory, store := newTestOrchestrator(nil)
	ctx := context.Background()

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceNative, Src: "https://x/v.mp4"}))
	old := factory.last()
	old.startTicking()

	require.Eventually(t, func() bool { return store.CurrentTime() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceYouTube, Id: "b"}))
	assert.True(t, old.unmounted, "previous adapter must be unmounted before the next mounts")

	// even a write that raced past unmount carries a dead token
	old.store.SetCurrentTime(old.token, 999)
	assert.Equal(t, float64(0), store.CurrentTime(), "old adapter must not write into the fresh mount")
}

func TestReadyAppliesDefaultsOnce(t *testing.T) {
	o, factory, _ := newTestOrchestrator(&Config{DefaultVolume: 0.8, DefaultMuted: true, VolumeAPIReliable: true})
	ctx := context.Background()

	readyCount := 0
	o.OnReady(func() { readyCount++ })

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceYouTube, Id: "a"}))
	adp := factory.last()

	adp.store.SetReady(adp.token, true)
	adp.store.SetReady(adp.token, true)
	adp.store.SetDuration(adp.token, 10)

	adp.mu.Lock()
	defer adp.mu.Unlock()
	require.Equal(t, []float64{0.8}, adp.volumes, "configured default volume must be applied exactly once")
	require.Equal(t, []bool{true}, adp.mutes)
	assert.Equal(t, 1, readyCount, "ready notification must fire exactly once per mount")
}

func TestUnreliableVolumePlatformGetsFullVolume(t *testing.T) {
	o, factory, _ := newTestOrchestrator(&Config{DefaultVolume: 0.3, VolumeAPIReliable: false})
	ctx := context.Background()

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceVimeo, Id: "a"}))
	adp := factory.last()
	adp.store.SetReady(adp.token, true)

	adp.mu.Lock()
	defer adp.mu.Unlock()
	assert.Equal(t, []float64{1}, adp.volumes)
}

func TestReadyFiresAgainOnNewMount(t *testing.T) {
	o, factory, _ := newTestOrchestrator(nil)
	ctx := context.Background()

	readyCount := 0
	o.OnReady(func() { readyCount++ })

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceYouTube, Id: "a"}))
	first := factory.last()
	first.store.SetReady(first.token, true)

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceYouTube, Id: "b"}))
	second := factory.last()
	second.store.SetReady(second.token, true)

	assert.Equal(t, 2, readyCount, "each mount gets its own ready notification")
}

func TestNilDescriptorRendersNothing(t *testing.T) {
	o, factory, store := newTestOrchestrator(nil)
	ctx := context.Background()

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceYouTube, Id: "a"}))
	old := factory.last()

	require.NoError(t, o.SetSource(ctx, nil))
	assert.True(t, old.unmounted)
	assert.Equal(t, domain.DefaultPlaybackState(), store.Snapshot())

	// the stable handle must stay safe with nothing mounted
	h := o.Handle()
	assert.NoError(t, h.Play())
	assert.NoError(t, h.SeekTo(10))
	_, err := h.Title(ctx)
	assert.ErrorIs(t, err, adapter.ErrNotMounted)
}

func TestHandleForwardsToActiveAdapter(t *testing.T) {
	o, factory, store := newTestOrchestrator(nil)
	ctx := context.Background()

	require.NoError(t, o.SetSource(ctx, &domain.VideoDescriptor{Service: domain.ServiceNative, Src: "https://x/v.mp4"}))
	adp := factory.last()

	h := o.Handle()
	require.NoError(t, h.SeekTo(42))
	assert.Equal(t, float64(42), store.CurrentTime())

	title, err := h.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", title)
	_ = adp
}
