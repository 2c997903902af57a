package repo

import (
	"github.com/grit-scm/grit/pkg/object"
)

// Repo represents an opened Grit repository.
type Repo struct {
	RootDir string        // working directory root
	GritDir string        // .grit/ directory
	Store   *object.Store // content-addressed object store
}
