// Package content resolves the course-provided starter files for a
// workspace question. Materializing that content on local disk is an
// external step; this package only finds its result.
package content

import (
	"os"
	"path/filepath"
)

type Provider interface {
	// StarterFilesPath returns the local directory of starter files for
	// the question, or false when the course provides none.
	StarterFilesPath(courseID, questionID string) (string, bool)
}

// DirProvider resolves starter files beneath a content root laid out as
// <root>/<course>/<question>/workspace.
type DirProvider struct {
	root string
}

func NewDirProvider(root string) *DirProvider {
	return &DirProvider{root: root}
}

func (p *DirProvider) StarterFilesPath(courseID, questionID string) (string, bool) {
	dir := filepath.Join(p.root, courseID, questionID, "workspace")
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}
