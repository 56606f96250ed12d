package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famomatic/ytmirror/internal/instances"
	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/store"
	"github.com/famomatic/ytmirror/internal/types"
)

const testRelay = "https://relay.example/?url="

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

// target returns the URL a request is really for, unwrapping the test relay.
func target(r *http.Request) (string, bool) {
	if r.URL.Host == "relay.example" {
		return r.URL.Query().Get("url"), true
	}
	return r.URL.String(), false
}

func newDeps(t *testing.T, rt roundTripFunc, pools map[string][]string) *Deps {
	t.Helper()
	if pools == nil {
		pools = map[string][]string{}
	}
	if _, ok := pools[registry.PoolStreamRelays]; !ok {
		pools[registry.PoolStreamRelays] = []string{testRelay}
	}
	st := store.NewMemory()
	ctx := context.Background()
	return &Deps{
		Fetcher:   race.New(&http.Client{Transport: rt}),
		Registry:  registry.New(pools),
		Invidious: instances.New(ctx, instances.Config{Backend: types.BackendInvidious, Store: st}),
		Piped:     instances.New(ctx, instances.Config{Backend: types.BackendPiped, Store: st}),
	}
}

func TestChocoVideoPutsPrimaryFirst(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "jNQXAC9IVRw", r.URL.Query().Get("id"))
		return respond(200, `{
			"title":"Me at the zoo","uploader":"jawed","isLive":"false",
			"stream_url":"https://cdn.example/best.mp4",
			"formats":[{"url":"https://cdn.example/360.mp4","qualityLabel":"360p"},{"url":""}],
			"hls_url":"https://cdn.example/master.m3u8"
		}`), nil
	}, nil)

	d, err := NewChocoVideo(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	require.Len(t, d.Streams, 3)
	assert.Equal(t, "https://cdn.example/best.mp4", d.Streams[0].URL)
	assert.Equal(t, "Best", d.Streams[0].Quality)
	assert.Equal(t, "360p", d.Streams[1].Quality)
	assert.Equal(t, "https://cdn.example/master.m3u8", d.HLSURL)
	assert.Equal(t, "jawed", d.Author)
	assert.Equal(t, types.BackendChocoVideo, d.Source)
}

func TestChocoVideoEmptyIsFailure(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		return respond(200, `{"title":"x"}`), nil
	}, nil)
	_, err := NewChocoVideo(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.ErrorIs(t, err, types.ErrNoStreams)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, types.BackendChocoVideo, be.Backend)
}

func TestChocoStreamProbe(t *testing.T) {
	status := 200
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodHead, r.Method)
		return respond(status, ""), nil
	}, nil)
	a := NewChocoStream(deps)

	d, err := a.Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	require.Len(t, d.Streams, 2)
	assert.Equal(t, "mp4", d.Streams[0].Container)
	assert.True(t, d.Streams[1].IsHLS)
	assert.Contains(t, d.HLSURL, "/m3u8/?id=jNQXAC9IVRw")

	status = 404
	_, err = a.Streams(context.Background(), "jNQXAC9IVRw")
	require.Error(t, err)
}

func TestEdgeFunctionRequiresConfig(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}, nil)
	_, err := NewEdgeFunction(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestEdgeFunctionSendsBearer(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/functions/v1/get-youtube-stream", r.URL.Path)
		return respond(200, `{"title":"t","stream_url":"https://cdn.example/manifest/hls","is_live":true}`), nil
	}, nil)
	deps.Endpoints = Endpoints{EdgeURL: "https://edge.example/", EdgeKey: "secret"}

	d, err := NewEdgeFunction(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.True(t, d.IsLive)
	assert.True(t, d.Streams[0].IsHLS)
	assert.Equal(t, "https://cdn.example/manifest/hls", d.HLSURL)
}

func TestMinTubeRequiresStreamURL(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		switch r.URL.Host {
		case "empty.example":
			return respond(200, `{"title":"no url"}`), nil
		case "good.example":
			time.Sleep(20 * time.Millisecond)
			return respond(200, `{"videoTitle":"zoo","stream_url":"https://cdn.example/v.mp4","is_live":0}`), nil
		}
		return respond(500, ""), nil
	}, map[string][]string{registry.PoolMinTube: {"https://empty.example", "https://good.example"}})

	d, err := NewMinTube(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Equal(t, "zoo", d.Title)
	assert.Equal(t, "https://cdn.example/v.mp4", d.Streams[0].URL)
}

func TestPipedStreamsShapesAndPromotes(t *testing.T) {
	var videoStreams []string
	for _, h := range []int{144, 720, 360, 1080, 240, 480} {
		videoStreams = append(videoStreams, fmt.Sprintf(`{"url":"https://cdn.example/%d.mp4","quality":"%dp","format":"MPEG_4","height":%d}`, h, h, h))
	}
	videoStreams = append(videoStreams, `{"url":"https://cdn.example/2160.webm","quality":"2160p","videoOnly":true,"height":2160}`)
	body := `{"title":"zoo","uploader":"jawed","hls":"https://piped.example/master.m3u8","videoStreams":[` + strings.Join(videoStreams, ",") + `]}`

	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "good.example" {
			return respond(200, body), nil
		}
		return respond(200, `{"error":"Could not extract"}`), nil
	}, map[string][]string{registry.PoolPiped: {"https://bad.example", "https://good.example"}})

	d, err := NewPipedStreams(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	require.Len(t, d.Streams, 1+pipedMaxStreams)
	assert.True(t, d.Streams[0].IsHLS)
	assert.Equal(t, "1080p", d.Streams[1].Quality)
	assert.Equal(t, "240p", d.Streams[5].Quality)
	require.Len(t, d.Adaptive, 1)
	assert.True(t, d.Adaptive[0].VideoOnly())

	assert.Equal(t, []string{"https://good.example"}, deps.Piped.Working(context.Background()))
}

func TestInvidiousStreamsFallsBackToRelay(t *testing.T) {
	var relayed atomic.Int32
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		if _, viaRelay := target(r); viaRelay {
			relayed.Add(1)
			return respond(200, `{"title":"zoo","formatStreams":[{"url":"https://cdn.example/360.mp4","qualityLabel":"360p","container":"mp4"}]}`), nil
		}
		return respond(403, "Forbidden"), nil
	}, map[string][]string{registry.PoolInvidiousStream: {"https://inv.example"}})

	d, err := NewInvidiousStreams(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Equal(t, int32(1), relayed.Load())
	assert.Equal(t, "360p", d.Streams[0].Quality)
	assert.Equal(t, types.BackendInvidious, d.Source)
}

func TestInvidiousStreamsRejectsBlockedBodies(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		return respond(200, `{"title":"instance blocked"}`), nil
	}, map[string][]string{registry.PoolInvidiousStream: {"https://inv.example"}})

	_, err := NewInvidiousStreams(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.ErrorIs(t, err, race.ErrNoWinner)
}

func TestCobaltWalksModes(t *testing.T) {
	var modes []string
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(raw), `"vQuality":"max"`):
			modes = append(modes, "max")
			return respond(200, `{"status":"error","text":"unavailable"}`), nil
		case strings.Contains(string(raw), `"vQuality":"1080"`):
			modes = append(modes, "1080")
			return respond(200, `{"status":"stream","url":"https://cobalt.example/tunnel?id=1"}`), nil
		}
		return respond(500, ""), nil
	}, map[string][]string{registry.PoolCobalt: {"https://cobalt.example"}})

	d, err := NewCobalt(deps).Streams(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Equal(t, []string{"max", "1080"}, modes)
	assert.Equal(t, "1080p", d.Streams[0].Quality)
}

func invidiousVideoBody(id string, related int) string {
	var recs []string
	for i := 0; i < related; i++ {
		recs = append(recs, fmt.Sprintf(`{"videoId":"rel%08d","title":"r%d","videoThumbnails":[{"url":"https://inv.example/vi/rel%08d/mqdefault.jpg"}]}`, i, i, i))
	}
	return `{"videoId":"` + id + `","title":"zoo","author":"jawed","viewCount":"1,234","lengthSeconds":19,
		"videoThumbnails":[{"quality":"maxres","url":"https://inv.example/vi/` + id + `/maxres.jpg"}],
		"recommendedVideos":[` + strings.Join(recs, ",") + `]}`
}

func TestInvidiousMetadataPromotesWinner(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "good.example" {
			return respond(200, invidiousVideoBody("jNQXAC9IVRw", 2)), nil
		}
		return respond(503, "maintenance"), nil
	}, map[string][]string{registry.PoolInvidious: {"https://bad.example", "https://good.example"}})

	m, err := NewInvidious(deps).Metadata(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), m.ViewCount)
	assert.Equal(t, "https://i.ytimg.com/vi/jNQXAC9IVRw/mqdefault.jpg", m.Thumbnail)
	require.Len(t, m.Recommended, 2)
	assert.Equal(t, "https://i.ytimg.com/vi/rel00000001/mqdefault.jpg", m.Recommended[1].Thumbnail)
	assert.Equal(t, []string{"https://good.example"}, deps.Invidious.Working(context.Background()))
}

func TestInvidiousComments(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/comments/jNQXAC9IVRw", r.URL.Path)
		return respond(200, `{"comments":[{"author":"a","content":"first","likeCount":3,"replies":{"replyCount":2}}],"continuation":"next"}`), nil
	}, map[string][]string{registry.PoolInvidious: {"https://inv.example"}})

	page, err := NewInvidious(deps).Comments(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, 2, page.Comments[0].ReplyCount)
	assert.Equal(t, "next", page.Continuation)
}

func TestPipedListingSkipsChannels(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "videos", r.URL.Query().Get("filter"))
		return respond(200, `{"items":[
			{"url":"/watch?v=jNQXAC9IVRw","type":"stream","title":"zoo","uploaderUrl":"/channel/UC4QobU6STFB0P71PMvOGN5A","views":10,"uploaded":1700000000000},
			{"url":"/channel/UCxyz","type":"channel","title":"chan"}
		]}`), nil
	}, map[string][]string{registry.PoolPiped: {"https://piped.example"}})

	got, err := NewPiped(deps).Search(context.Background(), "zoo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "jNQXAC9IVRw", got[0].VideoID)
	assert.Equal(t, "UC4QobU6STFB0P71PMvOGN5A", got[0].AuthorID)
	assert.Equal(t, int64(1700000000), got[0].Published)
}

func TestSiawaseFallsBackToOEmbed(t *testing.T) {
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		u, _ := target(r)
		if strings.Contains(u, "noembed.com") {
			return respond(200, `{"title":"zoo","author_name":"jawed","author_url":"https://www.youtube.com/@jawed"}`), nil
		}
		return respond(500, ""), nil
	}, nil)

	m, err := NewSiawase(deps).Metadata(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Equal(t, "zoo", m.Title)
	assert.Equal(t, "@jawed", m.AuthorID)
	assert.Equal(t, types.BackendSiawase, m.Source)
	assert.Equal(t, "https://i.ytimg.com/vi/jNQXAC9IVRw/maxresdefault.jpg", m.Thumbnail)
}

func TestSiawaseFlexibleFields(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		return respond(200, `{"title":"zoo","channelTitle":"jawed","views":"42","duration":19}`), nil
	}, nil)
	m, err := NewSiawase(deps).Metadata(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Equal(t, "jawed", m.Author)
	assert.Equal(t, int64(42), m.ViewCount)
	assert.Equal(t, 19, m.LengthSeconds)
}

func TestEduCapsRelated(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		return respond(200, invidiousVideoBody("jNQXAC9IVRw", 30)), nil
	}, nil)
	m, err := NewEdu(deps).Metadata(context.Background(), "jNQXAC9IVRw")
	require.NoError(t, err)
	assert.Len(t, m.Recommended, eduMaxRelated)
	assert.Equal(t, types.BackendEdu, m.Source)
}

func TestEduRejectsHTML(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		return respond(200, `<!DOCTYPE html><title>x</title>`), nil
	}, nil)
	_, err := NewEdu(deps).Metadata(context.Background(), "jNQXAC9IVRw")
	require.Error(t, err)
}

func TestYouTubeSearchMergesDetails(t *testing.T) {
	var keys []string
	deps := newDeps(t, func(r *http.Request) (*http.Response, error) {
		keys = append(keys, r.URL.Query().Get("key"))
		switch r.URL.Path {
		case "/youtube/v3/search":
			if r.URL.Query().Get("key") == "k1" {
				return respond(403, `{"error":{"code":403}}`), nil
			}
			return respond(200, `{"items":[{"id":{"videoId":"jNQXAC9IVRw"},"snippet":{"title":"zoo","channelTitle":"jawed","publishedAt":"2005-04-24T03:31:52Z","thumbnails":{"medium":{"url":"https://i.ytimg.com/vi/jNQXAC9IVRw/mqdefault.jpg"}}}}]}`), nil
		case "/youtube/v3/videos":
			return respond(200, `{"items":[{"id":"jNQXAC9IVRw","contentDetails":{"duration":"PT19S"},"statistics":{"viewCount":"300"}}]}`), nil
		}
		return respond(404, ""), nil
	}, nil)
	deps.Keys = registry.NewKeyPool([]string{"k1", "k2"})

	got, err := NewYouTube(deps).Search(context.Background(), "zoo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 19, got[0].LengthSeconds)
	assert.Equal(t, int64(300), got[0].ViewCount)
	assert.True(t, strings.HasSuffix(got[0].PublishedText, "years ago"), got[0].PublishedText)
	assert.Equal(t, []string{"k1", "k2", "k2"}, keys)
}

func TestYouTubeWithoutKeys(t *testing.T) {
	deps := newDeps(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("unexpected request")
	}, nil)
	_, err := NewYouTube(deps).Trending(context.Background(), "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseISODuration(t *testing.T) {
	cases := map[string]int{
		"PT19S":    19,
		"PT1H2M3S": 3723,
		"PT4M":     240,
		"P1DT1S":   86401,
		"":         0,
		"garbage":  0,
		"PT10M05S": 605,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseISODuration(in), in)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	assert.Equal(t, "Today", RelativeTime(now, now.Add(-time.Hour)))
	assert.Equal(t, "3 days ago", RelativeTime(now, now.Add(-3*day)))
	assert.Equal(t, "2 weeks ago", RelativeTime(now, now.Add(-15*day)))
	assert.Equal(t, "4 months ago", RelativeTime(now, now.Add(-125*day)))
	assert.Equal(t, "2 years ago", RelativeTime(now, now.Add(-800*day)))
}

func TestFlexIntAcceptsStrings(t *testing.T) {
	var v struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
		C flexInt `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1,234","b":5.0,"c":"n/a"}`), &v))
	assert.Equal(t, flexInt(1234), v.A)
	assert.Equal(t, flexInt(5), v.B)
	assert.Equal(t, flexInt(0), v.C)
}
