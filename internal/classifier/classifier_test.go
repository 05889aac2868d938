package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbridge/server/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		cfg         *Config
		wantService domain.Service
		wantId      string
	}{
		{
			name:        "youtube watch url",
			src:         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantService: domain.ServiceYouTube,
			wantId:      "dQw4w9WgXcQ",
		},
		{
			name:        "youtube short link",
			src:         "https://youtu.be/dQw4w9WgXcQ",
			wantService: domain.ServiceYouTube,
			wantId:      "dQw4w9WgXcQ",
		},
		{
			name:        "youtube shorts",
			src:         "https://www.youtube.com/shorts/abc123XYZ_-",
			wantService: domain.ServiceYouTubeShorts,
			wantId:      "abc123XYZ_-",
		},
		{
			name:        "youtube embed",
			src:         "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ",
			wantService: domain.ServiceYouTube,
			wantId:      "dQw4w9WgXcQ",
		},
		{
			name:        "vimeo page",
			src:         "https://vimeo.com/76979871",
			wantService: domain.ServiceVimeo,
			wantId:      "76979871",
		},
		{
			name:        "vimeo player",
			src:         "https://player.vimeo.com/video/76979871",
			wantService: domain.ServiceVimeo,
			wantId:      "76979871",
		},
		{
			name:        "bunny default host",
			src:         "https://iframe.mediadelivery.net/embed/12345/9f8e7d6c",
			wantService: domain.ServiceBunny,
			wantId:      "12345/9f8e7d6c",
		},
		{
			name:        "bunny configured host",
			src:         "https://video.example-school.com/embed/11/22",
			cfg:         &Config{BunnyHosts: []string{"video.example-school.com"}},
			wantService: domain.ServiceBunny,
			wantId:      "11/22",
		},
		{
			name:        "google drive file",
			src:         "https://drive.google.com/file/d/1a2b3c/view?usp=sharing",
			wantService: domain.ServiceGDrive,
			wantId:      "1a2b3c",
		},
		{
			name:        "progressive mp4",
			src:         "https://cdn.example.com/media/video.mp4",
			wantService: domain.ServiceNative,
		},
		{
			name:        "hls manifest",
			src:         "https://cdn.example.com/live/master.m3u8",
			wantService: domain.ServiceNative,
		},
		{
			name:        "dash manifest",
			src:         "https://cdn.example.com/vod/manifest.mpd",
			wantService: domain.ServiceNative,
		},
		{
			name:        "unknown page falls back to other",
			src:         "https://videos.example.com/embed/player?id=7",
			wantService: domain.ServiceOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.src, tt.cfg)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantService, got.Service)
			if tt.wantId != "" {
				assert.Equal(t, tt.wantId, got.Id)
			}
		})
	}
}

func TestClassifyUnparseable(t *testing.T) {
	for _, src := range []string{
		"",
		"   ",
		"not a url",
		"ftp://example.com/video.mp4",
		"https://www.youtube.com/watch",
		"https://vimeo.com/about",
	} {
		t.Run(src, func(t *testing.T) {
			assert.Nil(t, Classify(src, nil))
		})
	}
}

func TestClassifyYouTubeThumbnail(t *testing.T) {
	got := Classify("https://youtu.be/dQw4w9WgXcQ", nil)
	require.NotNil(t, got)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", got.Thumbnail)
}
