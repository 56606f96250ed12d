package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

const (
	youtubeRequestTimeout = 2 * time.Second
	youtubeKeyAttempts    = 5
	youtubeRelayRetries   = 3
	youtubeSearchResults  = 20
	youtubeTrendingCount  = 25
)

type youtubeSnippet struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelID    string `json:"channelId"`
	ChannelTitle string `json:"channelTitle"`
	PublishedAt  string `json:"publishedAt"`
	Thumbnails   map[string]struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
	LiveBroadcastContent string `json:"liveBroadcastContent"`
}

type youtubeVideo struct {
	ID      json.RawMessage `json:"id"`
	Snippet youtubeSnippet  `json:"snippet"`
	Details struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount flexInt `json:"viewCount"`
		LikeCount flexInt `json:"likeCount"`
	} `json:"statistics"`
}

// videoID reads the id as either a plain string (videos) or an
// {"videoId": ...} object (search).
func (v *youtubeVideo) videoID() string {
	var s string
	if json.Unmarshal(v.ID, &s) == nil {
		return s
	}
	var obj struct {
		VideoID string `json:"videoId"`
	}
	if json.Unmarshal(v.ID, &obj) == nil {
		return obj.VideoID
	}
	return ""
}

type youtubeList struct {
	Items []youtubeVideo `json:"items"`
}

// YouTube queries the YouTube Data API with rotating keys through CORS
// relays.
type YouTube struct {
	deps *Deps
	now  func() time.Time
}

func NewYouTube(deps *Deps) *YouTube { return &YouTube{deps: deps, now: time.Now} }

func (a *YouTube) Name() string           { return types.BackendYouTube }
func (a *YouTube) Timeout() time.Duration { return 20 * time.Second }

// get fetches target and decodes it into out, through the relay directory
// when one is configured.
func (a *YouTube) get(ctx context.Context, target string, out any) bool {
	if a.deps.Proxies != nil {
		return a.deps.Proxies.FetchWithFallback(ctx, target, youtubeRequestTimeout, youtubeRelayRetries, out)
	}
	body, err := a.deps.Fetcher.FetchWith(ctx, validate.Lenient(), target, youtubeRequestTimeout)
	if err != nil {
		return false
	}
	return json.Unmarshal(body, out) == nil
}

// withKeys runs call with up to youtubeKeyAttempts rotated keys.
func (a *YouTube) withKeys(ctx context.Context, call func(key string) bool) error {
	if a.deps.Keys == nil || a.deps.Keys.Len() == 0 {
		return fail(a.Name(), ErrNotConfigured)
	}
	for i := 0; i < youtubeKeyAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return fail(a.Name(), err)
		}
		key, ok := a.deps.Keys.Next()
		if !ok {
			break
		}
		if call(key) {
			return nil
		}
	}
	return fail(a.Name(), types.ErrEmptyResult)
}

func (a *YouTube) api() string {
	return strings.TrimRight(a.deps.Endpoints.withDefaults().YouTubeAPI, "/")
}

func (a *YouTube) Search(ctx context.Context, query string) ([]types.VideoMetadata, error) {
	var out []types.VideoMetadata
	err := a.withKeys(ctx, func(key string) bool {
		var found youtubeList
		target := fmt.Sprintf("%s/search?part=snippet&q=%s&type=video&maxResults=%d&key=%s",
			a.api(), url.QueryEscape(query), youtubeSearchResults, url.QueryEscape(key))
		if !a.get(ctx, target, &found) || found.Items == nil {
			return false
		}

		ids := make([]string, 0, len(found.Items))
		for i := range found.Items {
			if id := found.Items[i].videoID(); id != "" {
				ids = append(ids, id)
			}
		}
		details := map[string]youtubeVideo{}
		if len(ids) > 0 {
			var list youtubeList
			target := fmt.Sprintf("%s/videos?part=contentDetails,statistics&id=%s&key=%s",
				a.api(), url.QueryEscape(strings.Join(ids, ",")), url.QueryEscape(key))
			if a.get(ctx, target, &list) {
				for _, it := range list.Items {
					details[it.videoID()] = it
				}
			}
		}

		out = make([]types.VideoMetadata, 0, len(found.Items))
		for i := range found.Items {
			item := found.Items[i]
			id := item.videoID()
			if id == "" {
				continue
			}
			if d, ok := details[id]; ok {
				item.Details = d.Details
				item.Statistics = d.Statistics
			}
			out = append(out, a.convert(id, &item))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *YouTube) Trending(ctx context.Context, region string) ([]types.VideoMetadata, error) {
	if region == "" {
		region = DefaultRegion
	}
	var out []types.VideoMetadata
	err := a.withKeys(ctx, func(key string) bool {
		var list youtubeList
		target := fmt.Sprintf("%s/videos?part=snippet,contentDetails,statistics&chart=mostPopular&regionCode=%s&maxResults=%d&key=%s",
			a.api(), url.QueryEscape(region), youtubeTrendingCount, url.QueryEscape(key))
		if !a.get(ctx, target, &list) || list.Items == nil {
			return false
		}
		out = make([]types.VideoMetadata, 0, len(list.Items))
		for i := range list.Items {
			if id := list.Items[i].videoID(); id != "" {
				out = append(out, a.convert(id, &list.Items[i]))
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *YouTube) convert(id string, v *youtubeVideo) types.VideoMetadata {
	thumb := ""
	for _, q := range []string{"medium", "default"} {
		if t, ok := v.Snippet.Thumbnails[q]; ok && t.URL != "" {
			thumb = t.URL
			break
		}
	}
	thumb = types.NormalizeThumbnail(a.deps.thumbHost(), thumb)
	if thumb == "" {
		thumb = types.ThumbnailURL(a.deps.thumbHost(), id, "mqdefault")
	}
	m := types.VideoMetadata{
		VideoID:       id,
		Title:         v.Snippet.Title,
		Author:        v.Snippet.ChannelTitle,
		AuthorID:      v.Snippet.ChannelID,
		Description:   v.Snippet.Description,
		ViewCount:     int64(v.Statistics.ViewCount),
		LikeCount:     int64(v.Statistics.LikeCount),
		LengthSeconds: ParseISODuration(v.Details.Duration),
		Thumbnail:     thumb,
		LiveNow:       v.Snippet.LiveBroadcastContent == "live",
		Source:        a.Name(),
	}
	if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
		m.Published = t.Unix()
		m.PublishedText = RelativeTime(a.now(), t)
	}
	return m
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO 8601 duration such as PT1H2M3S to
// seconds. Unparseable input yields 0.
func ParseISODuration(s string) int {
	m := isoDurationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * unit
	}
	return total
}

// RelativeTime renders the age of t as "Today", "3 days ago", "2 weeks ago",
// "5 months ago" or "1 years ago".
func RelativeTime(now, t time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days < 1:
		return "Today"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return fmt.Sprintf("%d years ago", days/365)
	}
}
