package client

import (
	"errors"

	"github.com/famomatic/ytmirror/internal/fallback"
	"github.com/famomatic/ytmirror/internal/types"
)

var (
	// ErrInvalidInput indicates malformed input (not a video ID/url).
	ErrInvalidInput = types.ErrInvalidVideoID
	// ErrAllBackendsFailed indicates every backend failed. Callers should
	// degrade to an embedded player.
	ErrAllBackendsFailed = types.ErrAllBackendsFailed
	// ErrNoStreams indicates a backend answered without a playable stream.
	ErrNoStreams = types.ErrNoStreams
	// ErrEmptyResult indicates an empty listing or record.
	ErrEmptyResult = types.ErrEmptyResult
	// ErrAllPlayersFailed indicates the player fallback chain is exhausted.
	ErrAllPlayersFailed = fallback.ErrAllPlayersFailed
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
)

// InvalidInputDetailError explains why input was rejected.
type InvalidInputDetailError struct {
	Input  string
	Reason string
}

func (e *InvalidInputDetailError) Error() string {
	return "invalid input (" + e.Reason + "): " + e.Input
}

func (e *InvalidInputDetailError) Is(target error) bool {
	return target == ErrInvalidInput
}
