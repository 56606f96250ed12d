package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

const (
	siawaseRequestTimeout = 3 * time.Second
	// siawaseRelays is how many stream relays are tried after the direct URL.
	siawaseRelays = 2
)

type siawaseResponse struct {
	VideoID         string  `json:"videoId"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	ChannelTitle    string  `json:"channelTitle"`
	Uploader        string  `json:"uploader"`
	AuthorID        string  `json:"authorId"`
	ChannelID       string  `json:"channelId"`
	Description     string  `json:"description"`
	ViewCount       flexInt `json:"viewCount"`
	Views           flexInt `json:"views"`
	LengthSeconds   flexInt `json:"lengthSeconds"`
	Duration        flexInt `json:"duration"`
	PublishedText   string  `json:"publishedText"`
	UploadDate      string  `json:"uploadDate"`
	Thumbnail       string  `json:"thumbnail"`
	ThumbnailURL    string  `json:"thumbnailUrl"`
	AuthorThumbnail string  `json:"authorThumbnail"`
	UploaderAvatar  string  `json:"uploaderAvatar"`
	LikeCount       flexInt `json:"likeCount"`
	Likes           flexInt `json:"likes"`
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func nonZero(vals ...flexInt) int64 {
	for _, v := range vals {
		if v != 0 {
			return int64(v)
		}
	}
	return 0
}

// Siawase reads the siawase video API with an oEmbed fallback. The
// results carry no recommendations.
type Siawase struct{ deps *Deps }

func NewSiawase(deps *Deps) *Siawase { return &Siawase{deps: deps} }

func (a *Siawase) Name() string { return types.BackendSiawase }

// Timeout covers the direct and relayed siawase attempts plus oEmbed.
func (a *Siawase) Timeout() time.Duration { return 15 * time.Second }

// routes returns target followed by its relayed forms.
func (a *Siawase) routes(target string) []string {
	out := []string{target}
	relays := a.deps.relays()
	if len(relays) > siawaseRelays {
		relays = relays[:siawaseRelays]
	}
	for _, p := range relays {
		out = append(out, race.ViaProxy(p, target))
	}
	return out
}

func (a *Siawase) Metadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	if m, err := a.siawase(ctx, videoID); err == nil {
		return m, nil
	}
	m, err := a.OEmbed(ctx, videoID)
	if err != nil {
		return nil, err
	}
	m.Source = a.Name()
	return m, nil
}

func (a *Siawase) siawase(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	target := strings.TrimRight(a.deps.Endpoints.withDefaults().Siawase, "/") + "/" + url.PathEscape(videoID)
	var lastErr error
	for _, u := range a.routes(target) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := a.deps.Fetcher.FetchWith(ctx, validate.Lenient(), u, siawaseRequestTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		var data siawaseResponse
		if err := json.Unmarshal(body, &data); err != nil {
			lastErr = err
			continue
		}
		if data.Title == "" && data.VideoID == "" {
			lastErr = types.ErrEmptyResult
			continue
		}
		host := a.deps.thumbHost()
		thumb := firstNonEmpty(data.Thumbnail, data.ThumbnailURL)
		if thumb == "" {
			thumb = types.ThumbnailURL(host, videoID, "maxresdefault")
		}
		return &types.VideoMetadata{
			VideoID:         firstNonEmpty(data.VideoID, videoID),
			Title:           firstNonEmpty(data.Title, "Unknown"),
			Author:          firstNonEmpty(data.Author, data.ChannelTitle, data.Uploader, "Unknown"),
			AuthorID:        firstNonEmpty(data.AuthorID, data.ChannelID),
			Description:     data.Description,
			ViewCount:       nonZero(data.ViewCount, data.Views),
			LengthSeconds:   int(nonZero(data.LengthSeconds, data.Duration)),
			PublishedText:   firstNonEmpty(data.PublishedText, data.UploadDate),
			Thumbnail:       thumb,
			AuthorThumbnail: firstNonEmpty(data.AuthorThumbnail, data.UploaderAvatar),
			LikeCount:       nonZero(data.LikeCount, data.Likes),
			Source:          a.Name(),
		}, nil
	}
	return nil, fail(a.Name(), lastErr)
}

// OEmbed returns the minimal record available from the oEmbed endpoints.
// Each endpoint is tried directly, then through the relays.
func (a *Siawase) OEmbed(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	var lastErr error = types.ErrEmptyResult
	for _, base := range a.deps.Endpoints.withDefaults().OEmbed {
		for _, u := range a.routes(base + url.QueryEscape(videoID)) {
			if err := ctx.Err(); err != nil {
				return nil, fail("oembed", err)
			}
			body, err := a.deps.Fetcher.FetchWith(ctx, validate.Lenient(), u, siawaseRequestTimeout)
			if err != nil {
				lastErr = err
				continue
			}
			var data oembedResponse
			if err := json.Unmarshal(body, &data); err != nil || data.Title == "" {
				lastErr = types.ErrEmptyResult
				continue
			}
			thumb := data.ThumbnailURL
			if thumb == "" {
				thumb = types.ThumbnailURL(a.deps.thumbHost(), videoID, "maxresdefault")
			}
			return &types.VideoMetadata{
				VideoID:   videoID,
				Title:     data.Title,
				Author:    firstNonEmpty(data.AuthorName, "Unknown"),
				AuthorID:  lastSegment(data.AuthorURL, "/"),
				Thumbnail: thumb,
				Source:    "oembed",
			}, nil
		}
	}
	return nil, fail("oembed", lastErr)
}
