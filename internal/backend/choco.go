package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

type chocoFormat struct {
	URL          string `json:"url"`
	Quality      string `json:"quality"`
	QualityLabel string `json:"qualityLabel"`
	Container    string `json:"container"`
}

type chocoVideoResponse struct {
	URL       string        `json:"url"`
	StreamURL string        `json:"stream_url"`
	HLSURL    string        `json:"hlsUrl"`
	HLSURLAlt string        `json:"hls_url"`
	IsLive    flexBool      `json:"isLive"`
	LiveNow   flexBool      `json:"liveNow"`
	Title     string        `json:"title"`
	Author    string        `json:"author"`
	Uploader  string        `json:"uploader"`
	Formats   []chocoFormat `json:"formats"`
}

// ChocoVideo queries the direct video API with a single GET.
type ChocoVideo struct{ deps *Deps }

func NewChocoVideo(deps *Deps) *ChocoVideo { return &ChocoVideo{deps: deps} }

func (a *ChocoVideo) Name() string           { return types.BackendChocoVideo }
func (a *ChocoVideo) Timeout() time.Duration { return 5 * time.Second }

func (a *ChocoVideo) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	target := a.deps.Endpoints.withDefaults().ChocoVideo + "?id=" + url.QueryEscape(videoID)
	body, err := a.deps.Fetcher.FetchWith(ctx, validate.Lenient(), target, a.Timeout())
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	var data chocoVideoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fail(a.Name(), err)
	}

	live := bool(data.IsLive || data.LiveNow)
	d := &types.StreamDescriptor{
		VideoID: videoID,
		IsLive:  live,
		Title:   data.Title,
		Author:  firstNonEmpty(data.Author, data.Uploader),
	}
	if main := firstNonEmpty(data.URL, data.StreamURL); main != "" {
		d.AddStream(primaryVariant(main, live))
	}
	for _, f := range data.Formats {
		if f.URL == "" {
			continue
		}
		d.AddStream(combinedVariant(f.URL, firstNonEmpty(f.Quality, f.QualityLabel), f.Container))
	}
	if hls := firstNonEmpty(data.HLSURL, data.HLSURLAlt); hls != "" {
		d.HLSURL = hls
		d.AddStream(hlsVariant(hls, live))
	}
	return finish(a.Name(), d)
}

// ChocoStream probes a direct stream URL with HEAD and hands it out together
// with its HLS counterpart.
type ChocoStream struct{ deps *Deps }

func NewChocoStream(deps *Deps) *ChocoStream { return &ChocoStream{deps: deps} }

func (a *ChocoStream) Name() string           { return types.BackendChocoStream }
func (a *ChocoStream) Timeout() time.Duration { return 4 * time.Second }

func (a *ChocoStream) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	ep := a.deps.Endpoints.withDefaults()
	streamURL := ep.ChocoStream + "?id=" + url.QueryEscape(videoID)
	m3u8URL := ep.ChocoM3U8 + "?id=" + url.QueryEscape(videoID)

	req, err := http.NewRequest(http.MethodHead, streamURL, nil)
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	status, _, err := a.deps.Fetcher.Do(ctx, req, a.Timeout())
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	if status < 200 || status > 299 {
		return nil, failf(a.Name(), "probe status %d", status)
	}

	d := &types.StreamDescriptor{VideoID: videoID, HLSURL: m3u8URL}
	d.AddStream(combinedVariant(streamURL, "Best", "mp4"))
	d.AddStream(hlsVariant(m3u8URL, false))
	return finish(a.Name(), d)
}
