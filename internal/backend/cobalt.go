package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/types"
)

const cobaltRequestTimeout = 6 * time.Second

// cobaltModes are the requested qualities, best first.
var cobaltModes = []string{"max", "1080", "720"}

type cobaltRequest struct {
	URL             string `json:"url"`
	VQuality        string `json:"vQuality"`
	FilenamePattern string `json:"filenamePattern"`
	IsAudioOnly     bool   `json:"isAudioOnly"`
}

type cobaltResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
	Text   string `json:"text"`
}

// Cobalt asks Cobalt download APIs for a direct URL. APIs, relays and
// quality modes are tried sequentially until one answers with a URL.
type Cobalt struct{ deps *Deps }

func NewCobalt(deps *Deps) *Cobalt { return &Cobalt{deps: deps} }

func (a *Cobalt) Name() string           { return types.BackendCobalt }
func (a *Cobalt) Timeout() time.Duration { return 20 * time.Second }

func (a *Cobalt) Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	pool, ok := a.deps.Registry.Get(registry.PoolCobalt)
	if !ok {
		return nil, fail(a.Name(), ErrNotConfigured)
	}
	routes := append([]string{""}, a.deps.relays()...)
	watch := "https://www.youtube.com/watch?v=" + videoID

	var lastErr error = race.ErrNoWinner
	for _, ep := range pool.Endpoints(a.Name(), "/api/json") {
		target := ep.URL()
		for _, proxy := range routes {
			for _, mode := range cobaltModes {
				if err := ctx.Err(); err != nil {
					return nil, fail(a.Name(), err)
				}
				streamURL, err := a.post(ctx, race.ViaProxy(proxy, target), watch, mode)
				if err != nil {
					lastErr = err
					continue
				}
				quality := "Best"
				if mode != "max" {
					quality = mode + "p"
				}
				d := &types.StreamDescriptor{VideoID: videoID}
				v := primaryVariant(streamURL, false)
				v.Quality = quality
				d.AddStream(v)
				a.deps.Logger.Debug().Str("api", ep.Host).Str("proxy", proxy).Str("mode", mode).Msg("cobalt success")
				return finish(a.Name(), d)
			}
		}
	}
	return nil, fail(a.Name(), lastErr)
}

func (a *Cobalt) post(ctx context.Context, target, watch, mode string) (string, error) {
	payload, err := json.Marshal(cobaltRequest{URL: watch, VQuality: mode, FilenamePattern: "basic"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	status, body, err := a.deps.Fetcher.Do(ctx, req, cobaltRequestTimeout)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &race.HTTPStatusError{URL: target, StatusCode: status}
	}
	var data cobaltResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", err
	}
	if data.URL == "" {
		return "", failf(a.Name(), "status %q: %s", data.Status, data.Text)
	}
	return data.URL, nil
}
