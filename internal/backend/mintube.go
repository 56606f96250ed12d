package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

const (
	minTubeRequestTimeout = 6 * time.Second
	minTubeRaceDeadline   = 8 * time.Second
)

type minTubeResponse struct {
	StreamURL  string        `json:"stream_url"`
	HLSURL     string        `json:"hls_url"`
	IsLive     flexBool      `json:"is_live"`
	IsLiveAlt  flexBool      `json:"isLive"`
	Title      string        `json:"title"`
	VideoTitle string        `json:"videoTitle"`
	Author     string        `json:"author"`
	Formats    []chocoFormat `json:"formats"`
}

// MinTube races every server of the MIN-Tube pool for /api/video/{id}.
type MinTube struct{ deps *Deps }

func NewMinTube(deps *Deps) *MinTube { return &MinTube{deps: deps} }

func (a *MinTube) Name() string { return types.BackendMinTube }

// Timeout covers the remote list refresh plus the race.
func (a *MinTube) Timeout() time.Duration { return minTubeRaceDeadline + 2*time.Second }

var errNoStreamURL = errors.New("response without stream_url")

func (a *MinTube) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	servers := a.deps.Registry.Hosts(registry.PoolMinTube)
	if a.deps.MinTubeList != nil {
		servers = a.deps.MinTubeList.Refresh(ctx)
	}

	var parsed *types.StreamDescriptor
	res, err := a.deps.Fetcher.RaceFunc(ctx, servers, minTubeRaceDeadline, func(ctx context.Context, base string) (*race.Result, error) {
		target := base + "/api/video/" + url.PathEscape(videoID)
		body, err := a.deps.Fetcher.FetchWith(ctx, validate.Lenient(), target, minTubeRequestTimeout)
		if err != nil {
			return nil, err
		}
		var data minTubeResponse
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, err
		}
		if data.StreamURL == "" {
			return nil, errNoStreamURL
		}
		return &race.Result{Body: body, Host: base, URL: target}, nil
	})
	if err != nil {
		return nil, fail(a.Name(), err)
	}

	var data minTubeResponse
	if err := json.Unmarshal(res.Body, &data); err != nil {
		return nil, fail(a.Name(), err)
	}
	live := bool(data.IsLive || data.IsLiveAlt)
	parsed = &types.StreamDescriptor{
		VideoID: videoID,
		IsLive:  live,
		Title:   firstNonEmpty(data.VideoTitle, data.Title),
		Author:  data.Author,
	}
	parsed.AddStream(primaryVariant(data.StreamURL, live))
	if data.HLSURL != "" && data.HLSURL != data.StreamURL {
		parsed.HLSURL = data.HLSURL
		parsed.AddStream(hlsVariant(data.HLSURL, live))
	}
	for _, f := range data.Formats {
		if f.URL != "" {
			parsed.AddStream(combinedVariant(f.URL, firstNonEmpty(f.Quality, f.QualityLabel), f.Container))
		}
	}
	a.deps.Logger.Debug().Str("server", res.Host).Msg("min_tube success")
	return finish(a.Name(), parsed)
}
