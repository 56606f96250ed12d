package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

const (
	invidiousStreamRequestTimeout = 5 * time.Second
	invidiousStreamDeadline       = 8 * time.Second

	invidiousRequestTimeout = 2 * time.Second
	invidiousBatchSize      = 6
	// invidiousMaxRetries is the number of passes over the static relays.
	invidiousMaxRetries = 3
)

type invidiousThumb struct {
	Quality string  `json:"quality"`
	URL     string  `json:"url"`
	Width   flexInt `json:"width"`
}

type invidiousFormat struct {
	URL          string  `json:"url"`
	Type         string  `json:"type"`
	Quality      string  `json:"quality"`
	QualityLabel string  `json:"qualityLabel"`
	Container    string  `json:"container"`
	Resolution   string  `json:"resolution"`
	Bitrate      flexInt `json:"bitrate"`
}

type invidiousVideo struct {
	Type             string            `json:"type"`
	VideoID          string            `json:"videoId"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Author           string            `json:"author"`
	AuthorID         string            `json:"authorId"`
	AuthorThumbnails []invidiousThumb  `json:"authorThumbnails"`
	VideoThumbnails  []invidiousThumb  `json:"videoThumbnails"`
	ViewCount        flexInt           `json:"viewCount"`
	LikeCount        flexInt           `json:"likeCount"`
	LengthSeconds    flexInt           `json:"lengthSeconds"`
	Published        flexInt           `json:"published"`
	PublishedText    string            `json:"publishedText"`
	LiveNow          bool              `json:"liveNow"`
	HLSURL           string            `json:"hlsUrl"`
	DASHURL          string            `json:"dashUrl"`
	FormatStreams    []invidiousFormat `json:"formatStreams"`
	AdaptiveFormats  []invidiousFormat `json:"adaptiveFormats"`
	Recommended      []invidiousVideo  `json:"recommendedVideos"`
}

type invidiousComment struct {
	Author           string           `json:"author"`
	AuthorThumbnails []invidiousThumb `json:"authorThumbnails"`
	Content          string           `json:"content"`
	Published        flexInt          `json:"published"`
	PublishedText    string           `json:"publishedText"`
	LikeCount        flexInt          `json:"likeCount"`
	Replies          struct {
		ReplyCount flexInt `json:"replyCount"`
	} `json:"replies"`
}

func firstThumb(thumbs []invidiousThumb) string {
	for _, t := range thumbs {
		if t.URL != "" {
			return t.URL
		}
	}
	return ""
}

func (v *invidiousVideo) stub(host types.ThumbnailHost) types.VideoStub {
	thumb := types.NormalizeThumbnail(host, firstThumb(v.VideoThumbnails))
	if thumb == "" {
		thumb = types.ThumbnailURL(host, v.VideoID, "mqdefault")
	}
	return types.VideoStub{
		VideoID:       v.VideoID,
		Title:         v.Title,
		Author:        v.Author,
		AuthorID:      v.AuthorID,
		ViewCount:     int64(v.ViewCount),
		LengthSeconds: int(v.LengthSeconds),
		Published:     int64(v.Published),
		PublishedText: v.PublishedText,
		Thumbnail:     thumb,
	}
}

func (v *invidiousVideo) metadata(host types.ThumbnailHost, source string) types.VideoMetadata {
	s := v.stub(host)
	m := types.VideoMetadata{
		VideoID:         s.VideoID,
		Title:           s.Title,
		Author:          s.Author,
		AuthorID:        s.AuthorID,
		Description:     v.Description,
		ViewCount:       s.ViewCount,
		LengthSeconds:   s.LengthSeconds,
		Published:       s.Published,
		PublishedText:   s.PublishedText,
		Thumbnail:       s.Thumbnail,
		AuthorThumbnail: firstThumb(v.AuthorThumbnails),
		LikeCount:       int64(v.LikeCount),
		LiveNow:         v.LiveNow,
		Source:          source,
	}
	for i := range v.Recommended {
		if types.ValidVideoID(v.Recommended[i].VideoID) {
			m.Recommended = append(m.Recommended, v.Recommended[i].stub(host))
		}
	}
	return m
}

func (v *invidiousVideo) descriptor(videoID string) *types.StreamDescriptor {
	d := &types.StreamDescriptor{
		VideoID: videoID,
		IsLive:  v.LiveNow,
		Title:   v.Title,
		Author:  v.Author,
		DASHURL: v.DASHURL,
	}
	if v.HLSURL != "" {
		d.HLSURL = v.HLSURL
		d.AddStream(hlsVariant(v.HLSURL, v.LiveNow))
	}
	for _, f := range v.FormatStreams {
		if f.URL == "" {
			continue
		}
		sv := combinedVariant(f.URL, firstNonEmpty(f.QualityLabel, f.Quality), f.Container)
		sv.MimeType = f.Type
		d.AddStream(sv)
	}
	for _, f := range v.AdaptiveFormats {
		if f.URL == "" {
			continue
		}
		audio := strings.HasPrefix(f.Type, "audio")
		d.Adaptive = append(d.Adaptive, types.StreamVariant{
			URL:       f.URL,
			Quality:   firstNonEmpty(f.QualityLabel, f.Resolution, f.Quality),
			Container: f.Container,
			MimeType:  f.Type,
			HasAudio:  audio,
			HasVideo:  !audio,
			Bitrate:   int(f.Bitrate),
		})
	}
	return d
}

// InvidiousStreams walks the invidious stream pool. Each instance is tried
// directly and then through every stream relay in turn; instances race
// against each other.
type InvidiousStreams struct{ deps *Deps }

func NewInvidiousStreams(deps *Deps) *InvidiousStreams { return &InvidiousStreams{deps: deps} }

func (a *InvidiousStreams) Name() string           { return types.BackendInvidious }
func (a *InvidiousStreams) Timeout() time.Duration { return invidiousStreamDeadline + time.Second }

func invidiousStreamValidator() validate.Validator {
	return validate.Chain{
		validate.Status{},
		validate.NewDenylist("shutdown", "blocked", "<!DOCTYPE"),
		validate.JSONObject{},
		validate.Structural{Required: []string{"title"}},
	}
}

func (a *InvidiousStreams) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	hosts := a.deps.Registry.Hosts(registry.PoolInvidiousStream)
	routes := append([]string{""}, a.deps.relays()...)
	v := invidiousStreamValidator()

	res, err := a.deps.Fetcher.RaceFunc(ctx, hosts, invidiousStreamDeadline, func(ctx context.Context, host string) (*race.Result, error) {
		target := host + "/api/v1/videos/" + url.PathEscape(videoID)
		var lastErr error
		for _, proxy := range routes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			via := race.ViaProxy(proxy, target)
			body, err := a.deps.Fetcher.FetchWith(ctx, v, via, invidiousStreamRequestTimeout)
			if err != nil {
				lastErr = err
				continue
			}
			var data invidiousVideo
			if err := json.Unmarshal(body, &data); err != nil {
				lastErr = err
				continue
			}
			if len(data.FormatStreams) == 0 && data.HLSURL == "" {
				lastErr = types.ErrNoStreams
				continue
			}
			return &race.Result{Body: body, Host: host, Proxy: proxy, URL: via}, nil
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	var data invidiousVideo
	if err := json.Unmarshal(res.Body, &data); err != nil {
		return nil, fail(a.Name(), err)
	}
	return finish(a.Name(), data.descriptor(videoID))
}

// Invidious serves metadata, listings and comments from the invidious pool.
// Requests go through CORS relays: the working-instance memory is tried
// first, then batches of the whole pool over every static relay, then over
// the remote relay list.
type Invidious struct{ deps *Deps }

func NewInvidious(deps *Deps) *Invidious { return &Invidious{deps: deps} }

func (a *Invidious) Name() string           { return types.BackendInvidious }
func (a *Invidious) Timeout() time.Duration { return 30 * time.Second }

func (a *Invidious) staticRelays() []string {
	if a.deps.Proxies == nil {
		return []string{""}
	}
	return a.deps.Proxies.Static()
}

func (a *Invidious) fetch(ctx context.Context, path string, out any) error {
	build := func(host string) string { return host + "/api/v1" + path }
	f := a.deps.Fetcher
	mem := a.deps.Invidious
	all := a.deps.Registry.Hosts(registry.PoolInvidious)
	static := a.staticRelays()

	var res *race.Result
	var err error
	if mem != nil {
		if working := mem.Working(ctx); len(working) > 0 && len(static) > 0 {
			res, err = f.Race(ctx, build, working, static[0], invidiousRequestTimeout)
		}
		all = mem.Ordered(ctx, all)
	}
	for pass := 0; res == nil && pass < invidiousMaxRetries; pass++ {
		if ctx.Err() != nil {
			break
		}
		res, err = f.Batched(ctx, build, all, static, invidiousBatchSize, invidiousRequestTimeout)
	}
	if res == nil && a.deps.Proxies != nil && ctx.Err() == nil {
		if dynamic := a.deps.Proxies.Dynamic(ctx); len(dynamic) > 0 {
			res, err = f.Batched(ctx, build, all, dynamic, invidiousBatchSize, invidiousRequestTimeout)
		}
	}
	if res == nil {
		if err == nil {
			err = race.ErrNoWinner
		}
		return fail(a.Name(), err)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fail(a.Name(), err)
	}
	if mem != nil {
		mem.Promote(ctx, res.Host)
	}
	return nil
}

func (a *Invidious) Metadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	var data invidiousVideo
	if err := a.fetch(ctx, "/videos/"+url.PathEscape(videoID), &data); err != nil {
		return nil, err
	}
	if data.Title == "" {
		return nil, fail(a.Name(), types.ErrEmptyResult)
	}
	if data.VideoID == "" {
		data.VideoID = videoID
	}
	m := data.metadata(a.deps.thumbHost(), a.Name())
	return &m, nil
}

func (a *Invidious) Search(ctx context.Context, query string) ([]types.VideoMetadata, error) {
	var items []invidiousVideo
	if err := a.fetch(ctx, "/search?q="+url.QueryEscape(query)+"&type=video", &items); err != nil {
		return nil, err
	}
	return a.listing(items), nil
}

func (a *Invidious) Trending(ctx context.Context, region string) ([]types.VideoMetadata, error) {
	if region == "" {
		region = DefaultRegion
	}
	var items []invidiousVideo
	if err := a.fetch(ctx, "/trending?region="+url.QueryEscape(region), &items); err != nil {
		return nil, err
	}
	return a.listing(items), nil
}

func (a *Invidious) listing(items []invidiousVideo) []types.VideoMetadata {
	host := a.deps.thumbHost()
	out := make([]types.VideoMetadata, 0, len(items))
	for i := range items {
		if items[i].Type != "" && items[i].Type != "video" {
			continue
		}
		if !types.ValidVideoID(items[i].VideoID) {
			continue
		}
		m := items[i].metadata(host, a.Name())
		m.Recommended = nil
		out = append(out, m)
	}
	return out
}

func (a *Invidious) Comments(ctx context.Context, videoID string) (*types.CommentPage, error) {
	var data struct {
		Comments     []invidiousComment `json:"comments"`
		Continuation string             `json:"continuation"`
	}
	if err := a.fetch(ctx, "/comments/"+url.PathEscape(videoID), &data); err != nil {
		return nil, err
	}
	page := &types.CommentPage{Continuation: data.Continuation, Comments: make([]types.Comment, 0, len(data.Comments))}
	for _, c := range data.Comments {
		page.Comments = append(page.Comments, types.Comment{
			Author:        c.Author,
			AuthorAvatar:  firstThumb(c.AuthorThumbnails),
			Content:       c.Content,
			Published:     int64(c.Published),
			PublishedText: c.PublishedText,
			LikeCount:     int64(c.LikeCount),
			ReplyCount:    int(c.Replies.ReplyCount),
		})
	}
	return page, nil
}
