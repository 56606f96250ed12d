package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/types"
)

type edgeResponse struct {
	VideoID   string   `json:"video_id"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  flexInt  `json:"duration"`
	StreamURL string   `json:"stream_url"`
	HLSURL    string   `json:"hls_url"`
	IsLive    flexBool `json:"is_live"`
	Author    string   `json:"author"`
	Formats   []struct {
		URL       string `json:"url"`
		Quality   string `json:"quality"`
		Type      string `json:"type"`
		Container string `json:"container"`
	} `json:"formats"`
	Error string `json:"error"`
}

// EdgeFunction calls a server-side function that resolves streams with a
// bearer key.
type EdgeFunction struct{ deps *Deps }

func NewEdgeFunction(deps *Deps) *EdgeFunction { return &EdgeFunction{deps: deps} }

func (a *EdgeFunction) Name() string           { return types.BackendEdgeFunction }
func (a *EdgeFunction) Timeout() time.Duration { return 8 * time.Second }

func (a *EdgeFunction) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	ep := a.deps.Endpoints
	if ep.EdgeURL == "" || ep.EdgeKey == "" {
		return nil, fail(a.Name(), ErrNotConfigured)
	}
	target := strings.TrimRight(ep.EdgeURL, "/") + "/functions/v1/get-youtube-stream?video_id=" + url.QueryEscape(videoID)
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	req.Header.Set("Authorization", "Bearer "+ep.EdgeKey)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := a.deps.Fetcher.Do(ctx, req, a.Timeout())
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	if status < 200 || status > 299 {
		return nil, fail(a.Name(), &race.HTTPStatusError{URL: target, StatusCode: status})
	}
	var data edgeResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fail(a.Name(), err)
	}
	if data.Error != "" {
		return nil, failf(a.Name(), "function error: %s", data.Error)
	}

	live := bool(data.IsLive)
	d := &types.StreamDescriptor{VideoID: videoID, IsLive: live, Title: data.Title, Author: data.Author}
	if data.StreamURL != "" {
		v := primaryVariant(data.StreamURL, live)
		if !v.IsHLS && strings.Contains(data.StreamURL, "manifest") {
			v.IsHLS, v.Container = true, "m3u8"
		}
		d.AddStream(v)
	}
	if data.HLSURL != "" && data.HLSURL != data.StreamURL {
		d.HLSURL = data.HLSURL
		d.AddStream(hlsVariant(data.HLSURL, live))
	}
	for _, f := range data.Formats {
		if f.URL != "" {
			d.AddStream(combinedVariant(f.URL, f.Quality, f.Container))
		}
	}
	return finish(a.Name(), d)
}
