package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	mu       sync.Mutex
	globals  map[string]bool
	injects  map[string]int
	rejected bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		globals: make(map[string]bool),
		injects: make(map[string]int),
	}
}

func (r *fakeRuntime) InjectScript(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejected {
		return errors.New("nowhere to put the script")
	}
	r.injects[url]++
	return nil
}

func (r *fakeRuntime) setRejected(rejected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = rejected
}

func (r *fakeRuntime) HasGlobal(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globals[symbol]
}

func (r *fakeRuntime) defineGlobal(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globals[symbol] = true
}

func (r *fakeRuntime) injectCount(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.injects[url]
}

func TestLoadResolvesWhenGlobalAppears(t *testing.T) {
	runtime := newFakeRuntime()
	l := NewLoader(runtime, &Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, slog.Default())

	go func() {
		time.Sleep(20 * time.Millisecond)
		runtime.defineGlobal("YT")
	}()

	err := l.Load(context.Background(), "youtube")
	require.NoError(t, err)
	assert.Equal(t, 1, runtime.injectCount("https://www.youtube.com/iframe_api"))
}

func TestLoadInjectsExactlyOnce(t *testing.T) {
	runtime := newFakeRuntime()
	l := NewLoader(runtime, &Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Load(context.Background(), "vimeo")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	runtime.defineGlobal("Vimeo")
	wg.Wait()

	assert.Equal(t, 1, runtime.injectCount("https://player.vimeo.com/api/player.js"), "concurrent loads must share one injection")
}

func TestLoadTimesOut(t *testing.T) {
	runtime := newFakeRuntime()
	l := NewLoader(runtime, &Config{PollInterval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond}, slog.Default())

	start := time.Now()
	err := l.Load(context.Background(), "bunny")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "timeout must surface as deadline exceeded")
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 150*time.Millisecond)

	// retrying must not duplicate the script tag
	err = l.Load(context.Background(), "bunny")
	require.Error(t, err)
	assert.Equal(t, 1, runtime.injectCount("https://assets.mediadelivery.net/playerjs/player-0.1.0.min.js"))
}

func TestLoadRetriesRejectedInjection(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.setRejected(true)
	l := NewLoader(runtime, &Config{PollInterval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}, slog.Default())

	// every injection attempt is rejected; the load times out without
	// recording the script as injected
	err := l.Load(context.Background(), "youtube")
	require.Error(t, err)
	assert.Equal(t, 0, runtime.injectCount("https://www.youtube.com/iframe_api"))

	// once the runtime accepts scripts, a fresh load must inject again
	// instead of waiting on the attempt that never landed
	runtime.setRejected(false)
	go func() {
		time.Sleep(20 * time.Millisecond)
		runtime.defineGlobal("YT")
	}()

	err = l.Load(context.Background(), "youtube")
	require.NoError(t, err)
	assert.Equal(t, 1, runtime.injectCount("https://www.youtube.com/iframe_api"))
}

func TestLoadRecoversWhenRuntimeStartsAccepting(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.setRejected(true)
	l := NewLoader(runtime, &Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, slog.Default())

	// the runtime starts accepting mid-load; the poll loop retries the
	// injection and the same call resolves
	go func() {
		time.Sleep(20 * time.Millisecond)
		runtime.setRejected(false)
		time.Sleep(20 * time.Millisecond)
		runtime.defineGlobal("Vimeo")
	}()

	err := l.Load(context.Background(), "vimeo")
	require.NoError(t, err)
	assert.Equal(t, 1, runtime.injectCount("https://player.vimeo.com/api/player.js"))
}

func TestLoadUnknownResource(t *testing.T) {
	runtime := newFakeRuntime()
	l := NewLoader(runtime, &Config{}, slog.Default())

	err := l.Load(context.Background(), "realplayer")
	assert.True(t, errors.Is(err, ErrUnknownResource))
}

func TestLoadShortCircuitsWhenGlobalPresent(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.defineGlobal("Hls")
	l := NewLoader(runtime, &Config{PollInterval: 5 * time.Millisecond, Timeout: time.Second}, slog.Default())

	err := l.Load(context.Background(), "hls")
	require.NoError(t, err)
	assert.Equal(t, 0, runtime.injectCount("https://cdn.jsdelivr.net/npm/hls.js@1"), "present global must skip injection")
}
