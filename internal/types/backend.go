package types

import "fmt"

// Backend identifiers. The stream chain is user-orderable; the metadata
// chain is ordered adaptively from ApiStats.
const (
	BackendChocoVideo   = "choco_video"
	BackendChocoStream  = "choco_stream"
	BackendMinTube      = "min_tube"
	BackendEdgeFunction = "edge_function"
	BackendPiped        = "piped"
	BackendInvidious    = "invidious"
	BackendCobalt       = "cobalt"

	BackendYouTube = "youtube"
	BackendSiawase = "siawase"
	BackendEdu     = "edu"

	// SourceCache tags results served from the resolution cache.
	SourceCache = "cache"
)

// DefaultStreamOrder is the built-in stream backend priority.
var DefaultStreamOrder = []string{
	BackendChocoVideo,
	BackendChocoStream,
	BackendMinTube,
	BackendEdgeFunction,
	BackendPiped,
	BackendInvidious,
	BackendCobalt,
}

// DefaultMetadataOrder is the enumeration order used to break adaptive ties.
var DefaultMetadataOrder = []string{
	BackendYouTube,
	BackendSiawase,
	BackendEdu,
	BackendInvidious,
	BackendPiped,
}

// ListingOrder is the fixed search/trending chain.
var ListingOrder = []string{
	BackendYouTube,
	BackendInvidious,
	BackendPiped,
}

// BackendEndpoint is a host plus path template belonging to a backend family.
type BackendEndpoint struct {
	Backend      string
	Host         string
	PathTemplate string
}

// URL expands PathTemplate (e.g. "/api/v1/videos/%s") with args and joins it to Host.
func (e BackendEndpoint) URL(args ...any) string {
	if len(args) == 0 {
		return e.Host + e.PathTemplate
	}
	return e.Host + fmt.Sprintf(e.PathTemplate, args...)
}
