package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrUnknownResource = fmt.Errorf("unknown resource")

// Runtime is the environment the vendor scripts are injected into. In
// production it is backed by the embed bridge; tests use fakes.
type Runtime interface {
	InjectScript(url string) error
	HasGlobal(symbol string) bool
}

// Resource is an external vendor script identified by the global symbol it
// defines once evaluated.
type Resource struct {
	URL    string
	Global string
}

var resources = map[string]Resource{
	"youtube": {URL: "https://www.youtube.com/iframe_api", Global: "YT"},
	"vimeo":   {URL: "https://player.vimeo.com/api/player.js", Global: "Vimeo"},
	"bunny":   {URL: "https://assets.mediadelivery.net/playerjs/player-0.1.0.min.js", Global: "playerjs"},
	"hls":     {URL: "https://cdn.jsdelivr.net/npm/hls.js@1", Global: "Hls"},
	"dash":    {URL: "https://cdn.dashjs.org/latest/dash.all.min.js", Global: "dashjs"},
}

type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Loader injects vendor scripts at most once and waits for their global
// symbol to become observable. Each caller gets its own polling loop; the
// injection is shared.
type Loader struct {
	runtime      Runtime
	logger       *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration

	mu       sync.Mutex
	injected map[string]struct{}
}

func NewLoader(runtime Runtime, cfg *Config, logger *slog.Logger) *Loader {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Loader{
		runtime:      runtime,
		logger:       logger,
		pollInterval: pollInterval,
		timeout:      timeout,
		injected:     make(map[string]struct{}),
	}
}

// Load resolves once the resource's global symbol is observable, or fails
// after the configured timeout. Concurrent calls for the same name share a
// single script injection.
func (l *Loader) Load(ctx context.Context, name string) error {
	resource, ok := resources[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}

	if l.runtime.HasGlobal(resource.Global) {
		return nil
	}

	l.tryInject(resource, name)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for global %q of resource %s: %w", resource.Global, name, ctx.Err())
		case <-ticker.C:
			if l.runtime.HasGlobal(resource.Global) {
				l.logger.Debug("loader: resource resolved", "resource", name, "global", resource.Global)
				return nil
			}
			l.tryInject(resource, name)
		}
	}
}

// tryInject attempts the shared injection. A rejection (the runtime may have
// nowhere to put the script yet) leaves the resource un-injected, so the
// next poll tick retries instead of waiting on a script that never landed.
func (l *Loader) tryInject(resource Resource, name string) {
	if err := l.injectOnce(resource); err != nil {
		l.logger.Debug("loader: injection deferred", "resource", name, "error", err)
	}
}

func (l *Loader) injectOnce(resource Resource) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.injected[resource.URL]; ok {
		return nil
	}

	if err := l.runtime.InjectScript(resource.URL); err != nil {
		return err
	}
	l.injected[resource.URL] = struct{}{}

	l.logger.Debug("loader: script injected", "url", resource.URL)
	return nil
}
