package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playbridge/server/internal/adapter"
	"github.com/playbridge/server/internal/adapter/bunny"
	"github.com/playbridge/server/internal/adapter/native"
	"github.com/playbridge/server/internal/adapter/vimeo"
	"github.com/playbridge/server/internal/adapter/youtube"
	"github.com/playbridge/server/internal/bridge"
	"github.com/playbridge/server/internal/domain"
	"github.com/playbridge/server/internal/loader"
	"github.com/playbridge/server/internal/state"
	"github.com/playbridge/server/pkg/oembed"
)

type iTitleFetcher interface {
	YouTube(ctx context.Context, videoId string) (*oembed.VideoData, error)
}

// adapterFactory builds the vendor adapter matching a descriptor. All
// adapters of one session share the same bridge, loader and store.
type adapterFactory struct {
	bridge       *bridge.Bridge
	loader       *loader.Loader
	store        *state.Store
	titleFetcher iTitleFetcher
	noCookie     bool
	logger       *slog.Logger
}

func (f *adapterFactory) NewAdapter(descriptor domain.VideoDescriptor, token state.WriterToken) (adapter.Adapter, error) {
	switch descriptor.Service {
	case domain.ServiceYouTube, domain.ServiceYouTubeShorts:
		cfg := &youtube.Config{NoCookie: f.noCookie}
		return youtube.NewAdapter(descriptor, f.bridge, f.loader, ytTitles{f.titleFetcher}, f.store, token, cfg, f.logger), nil

	case domain.ServiceVimeo:
		return vimeo.NewAdapter(descriptor, f.bridge, f.loader, f.store, token, f.logger), nil

	case domain.ServiceBunny:
		return bunny.NewAdapter(descriptor, f.bridge, f.loader, f.store, token, f.logger), nil

	case domain.ServiceNative:
		return native.NewAdapter(descriptor, f.bridge, f.bridge.Engines(), f.loader, f.store, token, f.logger), nil

	case domain.ServiceGDrive, domain.ServiceOther:
		return adapter.NewPassive(f.store, token), nil

	default:
		return nil, fmt.Errorf("no adapter for service %q", descriptor.Service)
	}
}

// ytTitles narrows the oEmbed client to the single-title lookup the YouTube
// adapter wants.
type ytTitles struct {
	fetcher iTitleFetcher
}

func (t ytTitles) Title(ctx context.Context, videoId string) (string, error) {
	if t.fetcher == nil {
		return "", fmt.Errorf("no title fetcher configured")
	}

	videoData, err := t.fetcher.YouTube(ctx, videoId)
	if err != nil {
		return "", err
	}
	return videoData.Title, nil
}
