package types

import (
	"fmt"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id looks like an 11 character YouTube id.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// VideoStub is a lightweight entry used for recommendations and listings.
type VideoStub struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	AuthorID      string `json:"authorId"`
	ViewCount     int64  `json:"viewCount"`
	LengthSeconds int    `json:"lengthSeconds"`
	Published     int64  `json:"published,omitempty"`
	PublishedText string `json:"publishedText,omitempty"`
	Thumbnail     string `json:"thumbnail"`
}

// VideoMetadata is the normalized descriptive record of a video.
type VideoMetadata struct {
	VideoID         string      `json:"videoId"`
	Title           string      `json:"title"`
	Author          string      `json:"author"`
	AuthorID        string      `json:"authorId"`
	Description     string      `json:"description"`
	ViewCount       int64       `json:"viewCount"`
	LengthSeconds   int         `json:"lengthSeconds"`
	Published       int64       `json:"published,omitempty"`
	PublishedText   string      `json:"publishedText"`
	Thumbnail       string      `json:"thumbnail"`
	AuthorThumbnail string      `json:"authorThumbnail,omitempty"`
	LikeCount       int64       `json:"likeCount,omitempty"`
	LiveNow         bool        `json:"liveNow,omitempty"`
	Recommended     []VideoStub `json:"recommended,omitempty"`
	Source          string      `json:"source"`
}

// Clone returns a deep copy of the metadata.
func (m *VideoMetadata) Clone() *VideoMetadata {
	if m == nil {
		return nil
	}
	out := *m
	out.Recommended = append([]VideoStub(nil), m.Recommended...)
	return &out
}

// Stub reduces the record to a listing entry.
func (m *VideoMetadata) Stub() VideoStub {
	return VideoStub{
		VideoID:       m.VideoID,
		Title:         m.Title,
		Author:        m.Author,
		AuthorID:      m.AuthorID,
		ViewCount:     m.ViewCount,
		LengthSeconds: m.LengthSeconds,
		Published:     m.Published,
		PublishedText: m.PublishedText,
		Thumbnail:     m.Thumbnail,
	}
}

// Comment is a single top-level comment.
type Comment struct {
	Author        string `json:"author"`
	AuthorAvatar  string `json:"authorAvatar,omitempty"`
	Content       string `json:"content"`
	Published     int64  `json:"published"`
	PublishedText string `json:"publishedText"`
	LikeCount     int64  `json:"likeCount"`
	ReplyCount    int    `json:"replyCount,omitempty"`
}

// CommentPage is one page of comments.
type CommentPage struct {
	Comments     []Comment `json:"comments"`
	Continuation string    `json:"continuation,omitempty"`
}

// ThumbnailHost is the host serving direct video thumbnails.
type ThumbnailHost string

const (
	ThumbnailYTImg   ThumbnailHost = "i.ytimg.com"
	ThumbnailYouTube ThumbnailHost = "img.youtube.com"
)

// Valid reports whether h is one of the supported thumbnail hosts.
func (h ThumbnailHost) Valid() bool {
	return h == ThumbnailYTImg || h == ThumbnailYouTube
}

var thumbnailIDPattern = regexp.MustCompile(`/vi/([A-Za-z0-9_-]+)/`)

// ThumbnailURL builds a direct thumbnail URL ("mqdefault", "maxresdefault", ...).
func ThumbnailURL(host ThumbnailHost, videoID, quality string) string {
	if !host.Valid() {
		host = ThumbnailYTImg
	}
	if quality == "" {
		quality = "mqdefault"
	}
	return fmt.Sprintf("https://%s/vi/%s/%s.jpg", host, videoID, quality)
}

// NormalizeThumbnail rewrites mirror-hosted thumbnail URLs that embed a
// /vi/<id>/ path to the preferred direct host. Other URLs pass through.
func NormalizeThumbnail(host ThumbnailHost, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := thumbnailIDPattern.FindStringSubmatch(raw); len(m) > 1 {
		return ThumbnailURL(host, m[1], "mqdefault")
	}
	return raw
}

// FormatDuration renders seconds as h:mm:ss or m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatViewCount renders a compact view count (1.2K, 3.4M).
func FormatViewCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
