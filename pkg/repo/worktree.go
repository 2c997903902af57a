package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grit-scm/grit/pkg/object"
)

// WriteWorkingTree snapshots the working directory into blob and tree
// objects, returning the root tree hash. The .grit/ directory is
// skipped; empty directories do not produce tree entries.
func (r *Repo) WriteWorkingTree() (object.Hash, error) {
	h, _, err := r.writeTreeDir(r.RootDir)
	if err != nil {
		return "", err
	}
	return h, nil
}

func (r *Repo) writeTreeDir(dir string) (object.Hash, int, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("write tree: read %s: %w", dir, err)
	}

	var entries []object.TreeEntry
	for _, de := range dirEntries {
		name := de.Name()
		if name == ".grit" {
			continue
		}
		full := filepath.Join(dir, name)

		info, err := de.Info()
		if err != nil {
			return "", 0, fmt.Errorf("write tree: stat %s: %w", full, err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(full)
			if err != nil {
				return "", 0, fmt.Errorf("write tree: readlink %s: %w", full, err)
			}
			h, err := r.Store.WriteBlob(&object.Blob{Data: []byte(target)})
			if err != nil {
				return "", 0, err
			}
			entries = append(entries, object.TreeEntry{
				Mode:   object.TreeModeSymlink,
				Name:   name,
				Target: h,
			})

		case de.IsDir():
			subHash, count, err := r.writeTreeDir(full)
			if err != nil {
				return "", 0, err
			}
			if count == 0 {
				continue
			}
			entries = append(entries, object.TreeEntry{
				Mode:   object.TreeModeDir,
				Name:   name,
				Target: subHash,
			})

		case info.Mode().IsRegular():
			data, err := os.ReadFile(full)
			if err != nil {
				return "", 0, fmt.Errorf("write tree: read %s: %w", full, err)
			}
			h, err := r.Store.WriteBlob(&object.Blob{Data: data})
			if err != nil {
				return "", 0, err
			}
			mode := object.TreeModeFile
			if info.Mode()&0o111 != 0 {
				mode = object.TreeModeExecutable
			}
			entries = append(entries, object.TreeEntry{
				Mode:   mode,
				Name:   name,
				Target: h,
			})

		default:
			// Sockets, devices, and other special files are not tracked.
			continue
		}
	}

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", 0, fmt.Errorf("write tree: %w", err)
	}
	return h, len(entries), nil
}
