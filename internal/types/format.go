package types

import (
	"sort"
	"strconv"
	"strings"
)

// StreamVariant is one playable rendition of a video.
type StreamVariant struct {
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	Container string `json:"container"`
	MimeType  string `json:"mimeType,omitempty"`
	HasAudio  bool   `json:"hasAudio"`
	HasVideo  bool   `json:"hasVideo"`
	IsLive    bool   `json:"isLive,omitempty"`
	IsHLS     bool   `json:"isHLS,omitempty"`
	IsDASH    bool   `json:"isDASH,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Adaptive reports whether the variant carries only one of audio or video.
func (v StreamVariant) Adaptive() bool {
	return v.HasAudio != v.HasVideo
}

// VideoOnly reports whether the variant has no audio track.
func (v StreamVariant) VideoOnly() bool { return v.HasVideo && !v.HasAudio }

// AudioOnly reports whether the variant has no video track.
func (v StreamVariant) AudioOnly() bool { return v.HasAudio && !v.HasVideo }

// ResolutionHeight returns Height, falling back to a "720p"-style quality label.
func (v StreamVariant) ResolutionHeight() int {
	if v.Height > 0 {
		return v.Height
	}
	q := strings.TrimSpace(strings.ToLower(v.Quality))
	if i := strings.IndexByte(q, 'p'); i > 0 {
		if n, err := strconv.Atoi(q[:i]); err == nil {
			return n
		}
	}
	return 0
}

// StreamDescriptor is the normalized result of a stream resolution.
type StreamDescriptor struct {
	VideoID  string          `json:"videoId"`
	Streams  []StreamVariant `json:"streams"`
	Adaptive []StreamVariant `json:"adaptive,omitempty"`
	HLSURL   string          `json:"hlsUrl,omitempty"`
	DASHURL  string          `json:"dashUrl,omitempty"`
	IsLive   bool            `json:"isLive,omitempty"`
	Title    string          `json:"title,omitempty"`
	Author   string          `json:"author,omitempty"`
	Source   string          `json:"source"`
}

// Validate checks the success invariant: at least one combined stream or manifest.
func (d *StreamDescriptor) Validate() error {
	if d == nil {
		return ErrNoStreams
	}
	if len(d.Streams) == 0 && d.HLSURL == "" && d.DASHURL == "" {
		return ErrNoStreams
	}
	return nil
}

// Clone returns a deep copy of the descriptor.
func (d *StreamDescriptor) Clone() *StreamDescriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Streams = append([]StreamVariant(nil), d.Streams...)
	out.Adaptive = append([]StreamVariant(nil), d.Adaptive...)
	return &out
}

// AddStream appends v unless a variant with the same URL is already present.
func (d *StreamDescriptor) AddStream(v StreamVariant) bool {
	if strings.TrimSpace(v.URL) == "" {
		return false
	}
	for _, s := range d.Streams {
		if s.URL == v.URL {
			return false
		}
	}
	d.Streams = append(d.Streams, v)
	return true
}

// Best picks the combined stream closest to the preferred quality label
// ("720p", "1080p"). Live descriptors with an HLS manifest return the
// manifest variant. The second return is false when nothing is playable.
func (d *StreamDescriptor) Best(preferred string) (StreamVariant, bool) {
	if d == nil {
		return StreamVariant{}, false
	}
	if d.IsLive && d.HLSURL != "" {
		return StreamVariant{URL: d.HLSURL, Quality: "Auto (HLS)", Container: "m3u8", HasAudio: true, HasVideo: true, IsHLS: true, IsLive: true}, true
	}
	var combined []StreamVariant
	for _, s := range d.Streams {
		if s.HasVideo && s.HasAudio && !s.IsHLS && !s.IsDASH {
			combined = append(combined, s)
		}
	}
	if len(combined) == 0 {
		if len(d.Streams) > 0 {
			return d.Streams[0], true
		}
		if d.HLSURL != "" {
			return StreamVariant{URL: d.HLSURL, Quality: "Auto (HLS)", Container: "m3u8", HasAudio: true, HasVideo: true, IsHLS: true}, true
		}
		if d.DASHURL != "" {
			return StreamVariant{URL: d.DASHURL, Quality: "Auto (DASH)", Container: "mpd", HasAudio: true, HasVideo: true, IsDASH: true}, true
		}
		return StreamVariant{}, false
	}

	want := StreamVariant{Quality: preferred}.ResolutionHeight()
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].ResolutionHeight() > combined[j].ResolutionHeight()
	})
	if want <= 0 {
		return combined[0], true
	}
	// Highest variant not above the preference, else the lowest available.
	for _, s := range combined {
		if h := s.ResolutionHeight(); h > 0 && h <= want {
			return s, true
		}
	}
	for _, s := range combined {
		if s.ResolutionHeight() == 0 {
			return s, true
		}
	}
	return combined[len(combined)-1], true
}

// ClassifyURL guesses manifest flags and container from a stream URL.
func ClassifyURL(raw string) (container string, isHLS, isDASH bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, ".m3u8"):
		return "m3u8", true, false
	case strings.Contains(lower, ".mpd"):
		return "mpd", false, true
	default:
		return "mp4", false, false
	}
}
