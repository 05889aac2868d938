// Package oembed resolves video metadata through the public oEmbed endpoints
// of the hosted vendors, falling back to scraping the watch page when the
// endpoint refuses to answer.
package oembed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrVideoNotFound      = fmt.Errorf("video not found")
	ErrVideoNotEmbeddable = fmt.Errorf("video is not embeddable")
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// YouTube fetches metadata for a YouTube video id. Videos with embedding
// disabled still have a public watch page, so those fall back to the scrape.
func (c *Client) YouTube(ctx context.Context, videoId string) (*VideoData, error) {
	watchUrl := "https://www.youtube.com/watch?v=" + videoId
	videoData, err := c.fetch(ctx, "https://www.youtube.com/oembed?url="+url.QueryEscape(watchUrl))
	if err == nil {
		return videoData, nil
	}
	if !errors.Is(err, ErrVideoNotEmbeddable) {
		return nil, fmt.Errorf("failed to get video data with oembed: %w", err)
	}

	videoData, err = c.fromPage(ctx, "https://youtu.be/"+videoId)
	if err != nil {
		return nil, fmt.Errorf("failed to get video data from page: %w", err)
	}
	videoData.ThumbnailUrl = fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoId)

	return videoData, nil
}

// Vimeo fetches metadata for a Vimeo video id.
func (c *Client) Vimeo(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.fetch(ctx, "https://vimeo.com/api/oembed.json?url="+url.QueryEscape("https://vimeo.com/"+videoId))
	if err != nil {
		return nil, fmt.Errorf("failed to get video data with oembed: %w", err)
	}

	return videoData, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*VideoData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound:
			return nil, ErrVideoNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, ErrVideoNotEmbeddable
		default:
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}

	var result VideoData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}
