package client

import (
	"net/url"
	"slices"
	"strings"

	"github.com/famomatic/ytmirror/internal/types"
)

var videoHosts = []string{
	"youtube.com",
	"www.youtube.com",
	"m.youtube.com",
	"music.youtube.com",
	"youtu.be",
	"youtube-nocookie.com",
	"www.youtube-nocookie.com",
}

var idPathPrefixes = []string{"/shorts/", "/embed/", "/v/", "/live/"}

// ExtractVideoID accepts either a raw id or common YouTube URL shapes.
func ExtractVideoID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", &InvalidInputDetailError{Input: input, Reason: "empty"}
	}
	if types.ValidVideoID(s) {
		return s, nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", &InvalidInputDetailError{Input: input, Reason: "malformed_url"}
	}
	if !slices.Contains(videoHosts, strings.ToLower(u.Hostname())) {
		return "", &InvalidInputDetailError{Input: input, Reason: "unsupported_host"}
	}

	candidate := ""
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		candidate = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		candidate = u.Query().Get("v")
	default:
		for _, prefix := range idPathPrefixes {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				candidate, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	}
	if !types.ValidVideoID(candidate) {
		return "", &InvalidInputDetailError{Input: input, Reason: "missing_video_id"}
	}
	return candidate, nil
}
