// Package assets defines the asset-resolver capability that maps playbook
// audio keys to playable local paths.
//
// How assets arrive on disk (download, bundle, template merge) is out of the
// engine's hands; the engine only asks the resolver for a path and degrades
// a miss to a skipped read. DirResolver is the standard implementation over
// an unpacked story folder.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that an asset key does not resolve to an existing file.
var ErrNotFound = errors.New("assets: not found")

// Resolver maps an audio key from the playbook to a local file path.
type Resolver interface {
	// Resolve returns the absolute path for key. It returns an error
	// wrapping [ErrNotFound] when no such asset exists.
	Resolve(key string) (string, error)
}

// DirResolver resolves keys as paths relative to an unpacked story folder.
// It is read-only after construction and safe for concurrent use.
type DirResolver struct {
	root string
}

// NewDirResolver returns a resolver rooted at the story folder dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{root: dir}
}

// Resolve joins key onto the story folder and verifies the file exists.
// Keys are constrained to the folder; a key escaping the root resolves as
// not found.
func (r *DirResolver) Resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrNotFound)
	}

	path := filepath.Join(r.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key %q escapes story folder", ErrNotFound, key)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return "", fmt.Errorf("assets: stat %q: %w", key, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrNotFound, key)
	}
	return path, nil
}
