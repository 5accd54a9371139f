// Package workdir resolves the directory holding the rxsync store, so
// commands run from a subdirectory or a linked folder find the same store.
package workdir

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	storeDir = ".rxsync"
	rootFile = ".rxsync-root"
)

// ResolveBaseDir walks up from baseDir looking for a .rxsync store or a
// .rxsync-root file. A .rxsync-root file holds the path of the shared store
// directory; relative paths are resolved against the file's directory.
// When neither is found baseDir is returned unchanged.
func ResolveBaseDir(baseDir string) string {
	dir := baseDir
	for {
		if resolved, ok := readRootFile(dir); ok {
			return resolved
		}
		if info, err := os.Stat(filepath.Join(dir, storeDir)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return baseDir
		}
		dir = parent
	}
}

func readRootFile(dir string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(dir, rootFile))
	if err != nil {
		return "", false
	}
	resolved := strings.TrimSpace(string(content))
	if resolved == "" {
		return "", false
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(dir, resolved)
	}
	return filepath.Clean(resolved), true
}
