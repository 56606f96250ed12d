package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

// eduMaxRelated caps the recommendations kept from an edu response.
const eduMaxRelated = 20

// Edu reads the education video API, an invidious-shaped single endpoint.
type Edu struct{ deps *Deps }

func NewEdu(deps *Deps) *Edu { return &Edu{deps: deps} }

func (a *Edu) Name() string           { return types.BackendEdu }
func (a *Edu) Timeout() time.Duration { return 4 * time.Second }

func eduValidator() validate.Validator {
	return validate.Chain{
		validate.Status{},
		validate.NewDenylist("<!DOCTYPE", "<html"),
		validate.JSONObject{},
		validate.Structural{Required: []string{"title"}},
	}
}

func (a *Edu) Metadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	target := a.deps.Endpoints.withDefaults().Edu + url.PathEscape(videoID)
	body, err := a.deps.Fetcher.FetchWith(ctx, eduValidator(), target, a.Timeout())
	if err != nil {
		return nil, fail(a.Name(), err)
	}
	var data invidiousVideo
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fail(a.Name(), err)
	}
	if data.Title == "" {
		return nil, fail(a.Name(), types.ErrEmptyResult)
	}
	data.VideoID = videoID
	if len(data.Recommended) > eduMaxRelated {
		data.Recommended = data.Recommended[:eduMaxRelated]
	}
	m := data.metadata(a.deps.thumbHost(), a.Name())
	m.Thumbnail = types.ThumbnailURL(a.deps.thumbHost(), videoID, "mqdefault")
	return &m, nil
}
