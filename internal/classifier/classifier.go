package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/playbridge/server/internal/domain"
)

// Config carries the host-provided hostname overrides for vendors that
// serve from per-customer domains.
type Config struct {
	// BunnyHosts lists additional hostnames that serve Bunny embeds,
	// next to the default delivery host.
	BunnyHosts []string
}

var (
	youtubeHosts = []string{"youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "www.youtube-nocookie.com"}
	vimeoHosts   = []string{"vimeo.com", "www.vimeo.com", "player.vimeo.com"}
	bunnyHosts   = []string{"iframe.mediadelivery.net", "video.bunnycdn.com"}

	nativeSuffixes = []string{".mp4", ".webm", ".ogg", ".ogv", ".mov", ".m3u8", ".mpd"}
)

// Classify maps a raw source string to a VideoDescriptor. Unparseable
// sources yield nil, which consumers treat as "render nothing".
func Classify(src string, cfg *Config) *domain.VideoDescriptor {
	if cfg == nil {
		cfg = &Config{}
	}

	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	host := strings.ToLower(u.Host)
	path := strings.Trim(u.Path, "/")
	segments := strings.Split(path, "/")

	switch {
	case host == "youtu.be":
		if path == "" {
			return nil
		}
		return youtubeDescriptor(domain.ServiceYouTube, segments[0], src)

	case lo.Contains(youtubeHosts, host):
		switch {
		case strings.HasPrefix(path, "shorts/") && len(segments) >= 2:
			return youtubeDescriptor(domain.ServiceYouTubeShorts, segments[1], src)
		case strings.HasPrefix(path, "embed/") && len(segments) >= 2:
			return youtubeDescriptor(domain.ServiceYouTube, segments[1], src)
		case path == "watch":
			id := u.Query().Get("v")
			if id == "" {
				return nil
			}
			return youtubeDescriptor(domain.ServiceYouTube, id, src)
		case strings.HasPrefix(path, "live/") && len(segments) >= 2:
			return youtubeDescriptor(domain.ServiceYouTube, segments[1], src)
		}
		return nil

	case lo.Contains(vimeoHosts, host):
		// vimeo.com/{id} or player.vimeo.com/video/{id}
		id := segments[len(segments)-1]
		if id == "" || !isDigits(id) {
			return nil
		}
		return &domain.VideoDescriptor{Service: domain.ServiceVimeo, Id: id, Src: src}

	case lo.Contains(bunnyHosts, host) || lo.Contains(cfg.BunnyHosts, host):
		// {embed|play}/{library}/{video}
		if len(segments) < 3 {
			return nil
		}
		return &domain.VideoDescriptor{
			Service: domain.ServiceBunny,
			Id:      segments[1] + "/" + segments[2],
			Src:     src,
		}

	case host == "drive.google.com":
		// file/d/{id}/view
		if len(segments) >= 3 && segments[0] == "file" && segments[1] == "d" {
			id := segments[2]
			return &domain.VideoDescriptor{
				Service: domain.ServiceGDrive,
				Id:      id,
				Src:     fmt.Sprintf("https://drive.google.com/file/d/%s/preview", id),
			}
		}
		return nil

	case hasNativeSuffix(path):
		return &domain.VideoDescriptor{Service: domain.ServiceNative, Id: path, Src: src}

	default:
		// a playable page we have no dedicated adapter for
		return &domain.VideoDescriptor{Service: domain.ServiceOther, Id: src, Src: src}
	}
}

func youtubeDescriptor(service domain.Service, id, src string) *domain.VideoDescriptor {
	if id == "" {
		return nil
	}
	return &domain.VideoDescriptor{
		Service:   service,
		Id:        id,
		Src:       src,
		Thumbnail: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id),
	}
}

func hasNativeSuffix(path string) bool {
	path = strings.ToLower(path)
	return lo.SomeBy(nativeSuffixes, func(suffix string) bool {
		return strings.HasSuffix(path, suffix)
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
