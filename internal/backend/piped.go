package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"time"

	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

const (
	pipedRequestTimeout = 5 * time.Second
	pipedRaceDeadline   = 7 * time.Second
	// pipedMaxStreams caps the combined streams copied from one response.
	pipedMaxStreams = 5
)

type pipedStream struct {
	URL       string  `json:"url"`
	Format    string  `json:"format"`
	Quality   string  `json:"quality"`
	MimeType  string  `json:"mimeType"`
	Codec     string  `json:"codec"`
	VideoOnly bool    `json:"videoOnly"`
	Bitrate   flexInt `json:"bitrate"`
	Width     flexInt `json:"width"`
	Height    flexInt `json:"height"`
}

type pipedItem struct {
	URL          string  `json:"url"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	Thumbnail    string  `json:"thumbnail"`
	UploaderName string  `json:"uploaderName"`
	UploaderURL  string  `json:"uploaderUrl"`
	UploadedDate string  `json:"uploadedDate"`
	Duration     flexInt `json:"duration"`
	Views        flexInt `json:"views"`
	Uploaded     flexInt `json:"uploaded"`
}

type pipedStreamsResponse struct {
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	UploadDate     string        `json:"uploadDate"`
	Uploader       string        `json:"uploader"`
	UploaderURL    string        `json:"uploaderUrl"`
	UploaderAvatar string        `json:"uploaderAvatar"`
	ThumbnailURL   string        `json:"thumbnailUrl"`
	HLS            string        `json:"hls"`
	DASH           string        `json:"dash"`
	Duration       flexInt       `json:"duration"`
	Views          flexInt       `json:"views"`
	Likes          flexInt       `json:"likes"`
	Livestream     bool          `json:"livestream"`
	VideoStreams   []pipedStream `json:"videoStreams"`
	AudioStreams   []pipedStream `json:"audioStreams"`
	RelatedStreams []pipedItem   `json:"relatedStreams"`
}

func pipedStreamValidator() validate.Validator {
	return validate.Chain{
		validate.Status{},
		validate.NewDenylist("error", "<!DOCTYPE"),
		validate.JSONObject{},
		validate.Structural{Required: []string{"title"}},
	}
}

func (p pipedStream) variant(hasAudio bool) types.StreamVariant {
	container := p.Format
	if container == "" {
		container = "mp4"
	}
	return types.StreamVariant{
		URL:       p.URL,
		Quality:   p.Quality,
		Container: container,
		MimeType:  p.MimeType,
		HasAudio:  hasAudio,
		HasVideo:  true,
		Bitrate:   int(p.Bitrate),
		Width:     int(p.Width),
		Height:    int(p.Height),
	}
}

func (r *pipedStreamsResponse) descriptor(videoID string) *types.StreamDescriptor {
	d := &types.StreamDescriptor{
		VideoID: videoID,
		IsLive:  r.Livestream,
		Title:   r.Title,
		Author:  r.Uploader,
		DASHURL: r.DASH,
	}
	if r.HLS != "" {
		d.HLSURL = r.HLS
		d.AddStream(hlsVariant(r.HLS, r.Livestream))
	}

	combined := make([]pipedStream, 0, len(r.VideoStreams))
	for _, s := range r.VideoStreams {
		if s.URL == "" {
			continue
		}
		if s.VideoOnly {
			d.Adaptive = append(d.Adaptive, s.variant(false))
			continue
		}
		combined = append(combined, s)
	}
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].variant(true).ResolutionHeight() > combined[j].variant(true).ResolutionHeight()
	})
	if len(combined) > pipedMaxStreams {
		combined = combined[:pipedMaxStreams]
	}
	for _, s := range combined {
		d.AddStream(s.variant(true))
	}
	for _, a := range r.AudioStreams {
		if a.URL == "" {
			continue
		}
		v := a.variant(true)
		v.HasVideo = false
		d.Adaptive = append(d.Adaptive, v)
	}
	return d
}

// PipedStreams races the Piped pool for /streams/{id}.
type PipedStreams struct{ deps *Deps }

func NewPipedStreams(deps *Deps) *PipedStreams { return &PipedStreams{deps: deps} }

func (a *PipedStreams) Name() string           { return types.BackendPiped }
func (a *PipedStreams) Timeout() time.Duration { return pipedRaceDeadline + time.Second }

func (a *PipedStreams) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	hosts := a.deps.Registry.Hosts(registry.PoolPiped)
	if a.deps.Piped != nil {
		hosts = a.deps.Piped.Ordered(ctx, hosts)
	}
	v := pipedStreamValidator()
	res, err := a.deps.Fetcher.RaceFunc(ctx, hosts, pipedRaceDeadline, func(ctx context.Context, host string) (*race.Result, error) {
		target := host + "/streams/" + url.PathEscape(videoID)
		body, err := a.deps.Fetcher.FetchWith(ctx, v, target, pipedRequestTimeout)
		if err != nil {
			return nil, err
		}
		return &race.Result{Body: body, Host: host, URL: target}, nil
	})
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	var data pipedStreamsResponse
	if err := json.Unmarshal(res.Body, &data); err != nil {
		return nil, fail(a.Name(), err)
	}
	if a.deps.Piped != nil {
		a.deps.Piped.Promote(ctx, res.Host)
	}
	return finish(a.Name(), data.descriptor(videoID))
}

// Piped serves metadata and listings from the Piped pool.
type Piped struct{ deps *Deps }

func NewPiped(deps *Deps) *Piped { return &Piped{deps: deps} }

func (a *Piped) Name() string           { return types.BackendPiped }
func (a *Piped) Timeout() time.Duration { return pipedRequestTimeout + 2*time.Second }

// fetch races path over the memory-ordered pool and promotes the winner.
func (a *Piped) fetch(ctx context.Context, path string, out any) error {
	hosts := a.deps.Registry.Hosts(registry.PoolPiped)
	if a.deps.Piped != nil {
		hosts = a.deps.Piped.Ordered(ctx, hosts)
	}
	res, err := a.deps.Fetcher.RaceWith(ctx, validate.Lenient(), func(host string) string { return host + path }, hosts, "", pipedRequestTimeout)
	if err != nil {
		return fail(a.Name(), err)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fail(a.Name(), err)
	}
	if a.deps.Piped != nil {
		a.deps.Piped.Promote(ctx, res.Host)
	}
	return nil
}

func (a *Piped) Metadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	var data pipedStreamsResponse
	if err := a.fetch(ctx, "/streams/"+url.PathEscape(videoID), &data); err != nil {
		return nil, err
	}
	if data.Title == "" {
		return nil, fail(a.Name(), types.ErrEmptyResult)
	}
	host := a.deps.thumbHost()
	m := &types.VideoMetadata{
		VideoID:         videoID,
		Title:           data.Title,
		Author:          data.Uploader,
		AuthorID:        lastSegment(data.UploaderURL, "/"),
		Description:     data.Description,
		ViewCount:       int64(data.Views),
		LengthSeconds:   int(data.Duration),
		PublishedText:   data.UploadDate,
		Thumbnail:       types.ThumbnailURL(host, videoID, "maxresdefault"),
		AuthorThumbnail: data.UploaderAvatar,
		LikeCount:       int64(data.Likes),
		LiveNow:         data.Livestream,
		Source:          a.Name(),
	}
	for _, r := range data.RelatedStreams {
		if s, ok := r.stub(host); ok {
			m.Recommended = append(m.Recommended, s)
		}
	}
	return m, nil
}

func (a *Piped) Search(ctx context.Context, query string) ([]types.VideoMetadata, error) {
	var data struct {
		Items []pipedItem `json:"items"`
	}
	path := "/search?q=" + url.QueryEscape(query) + "&filter=videos"
	if err := a.fetch(ctx, path, &data); err != nil {
		return nil, err
	}
	return a.listing(data.Items), nil
}

func (a *Piped) Trending(ctx context.Context, region string) ([]types.VideoMetadata, error) {
	if region == "" {
		region = DefaultRegion
	}
	var items []pipedItem
	if err := a.fetch(ctx, "/trending?region="+url.QueryEscape(region), &items); err != nil {
		return nil, err
	}
	return a.listing(items), nil
}

func (a *Piped) listing(items []pipedItem) []types.VideoMetadata {
	host := a.deps.thumbHost()
	out := make([]types.VideoMetadata, 0, len(items))
	for _, it := range items {
		s, ok := it.stub(host)
		if !ok {
			continue
		}
		out = append(out, types.VideoMetadata{
			VideoID:       s.VideoID,
			Title:         s.Title,
			Author:        s.Author,
			AuthorID:      s.AuthorID,
			ViewCount:     s.ViewCount,
			LengthSeconds: s.LengthSeconds,
			Published:     s.Published,
			PublishedText: s.PublishedText,
			Thumbnail:     s.Thumbnail,
			Source:        a.Name(),
		})
	}
	return out
}

// stub converts a Piped list item. Channels and playlists are skipped.
func (it pipedItem) stub(host types.ThumbnailHost) (types.VideoStub, bool) {
	if it.Type != "" && it.Type != "stream" {
		return types.VideoStub{}, false
	}
	id := lastSegment(it.URL, "=")
	if !types.ValidVideoID(id) {
		return types.VideoStub{}, false
	}
	return types.VideoStub{
		VideoID:       id,
		Title:         it.Title,
		Author:        it.UploaderName,
		AuthorID:      lastSegment(it.UploaderURL, "/"),
		ViewCount:     int64(it.Views),
		LengthSeconds: int(it.Duration),
		Published:     int64(it.Uploaded) / 1000,
		PublishedText: it.UploadedDate,
		Thumbnail:     types.ThumbnailURL(host, id, "mqdefault"),
	}, true
}
