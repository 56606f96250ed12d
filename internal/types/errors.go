package types

import "errors"

var (
	// ErrInvalidVideoID indicates the input is not an 11 character video id.
	ErrInvalidVideoID = errors.New("invalid video id")

	// ErrAllBackendsFailed indicates every configured backend failed for a request.
	// Callers are expected to degrade to an embedded player.
	ErrAllBackendsFailed = errors.New("all backends failed")

	// ErrNoStreams indicates a backend answered but produced no playable stream.
	ErrNoStreams = errors.New("no playable streams")

	// ErrEmptyResult indicates a backend answered with an empty listing or record.
	ErrEmptyResult = errors.New("empty result")

	// ErrNoBackends indicates the priority policy returned no usable backend.
	ErrNoBackends = errors.New("no backends available")
)
