// Package homedir materializes and retrieves workspace home-directory
// contents. Two backends exist with different atomicity guarantees: the
// object store commits content durably on its own (per-object atomic
// puts into a per-version namespace), while the networked filesystem can
// only stage content and relies on the orchestrator to perform the final
// directory move under the workspace row lock.
package homedir

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/coursebench/workspaced/internal/core"
)

type Backend interface {
	// MaterializeInitialContent prepares the initial contents for the
	// workspace's current generation. A nil result means the contents
	// are already durably placed; a non-nil result names a staged source
	// the caller must move to the destination atomically.
	MaterializeInitialContent(ctx context.Context, ws core.Workspace) (*core.InitResult, error)

	// FetchGradedFiles collects the named files into a zip archive and
	// returns its local path. Files that do not exist are skipped, not
	// errors: a student may simply not have produced them yet.
	FetchGradedFiles(ctx context.Context, ws core.Workspace, files []string) (string, error)
}

// safeGradedName reports whether a catalog-supplied file name stays
// inside the workspace when joined to its directory or object prefix.
// Names are slash-separated relative paths; catalog rows are operator
// input and must never reach outside the workspace's namespace.
func safeGradedName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	clean := path.Clean(name)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

// Selector maps a workspace's homedir location to its backend. Backends
// are a closed set; an unrecognized location is a data inconsistency and
// is never retried.
type Selector struct {
	objectStore Backend
	filesystem  Backend
}

func NewSelector(objectStore, filesystem Backend) *Selector {
	return &Selector{objectStore: objectStore, filesystem: filesystem}
}

func (s *Selector) ForLocation(loc core.HomedirLocation) (Backend, error) {
	switch loc {
	case core.LocationObjectStore:
		return s.objectStore, nil
	case core.LocationNetworkedFilesystem:
		return s.filesystem, nil
	default:
		return nil, core.NewAppError(core.ErrUnknownBackend, fmt.Sprintf("unrecognized homedir location %q", loc))
	}
}
