package orchestrator

import (
	"fmt"
	"strings"

	"github.com/famomatic/ytmirror/internal/types"
)

// AttemptError captures one backend attempt failure.
type AttemptError struct {
	Backend string
	Err     error
}

func (e AttemptError) Error() string { return e.Backend + ": " + e.Err.Error() }

// AllBackendsFailedError is returned when no backend of a chain succeeded.
// It matches types.ErrAllBackendsFailed with errors.Is.
type AllBackendsFailedError struct {
	Chain    string
	Attempts []AttemptError
}

func (e *AllBackendsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: all backends failed", e.Chain)
	}
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Backend)
	}
	return fmt.Sprintf("%s: all backends failed: %d attempt(s) [%s]", e.Chain, len(e.Attempts), strings.Join(names, ","))
}

func (e *AllBackendsFailedError) Is(target error) bool {
	return target == types.ErrAllBackendsFailed
}
