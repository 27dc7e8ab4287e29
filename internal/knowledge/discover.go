package knowledge

import (
	"os"
	"path/filepath"
)

// DefaultDir is used when no candidate directory holds a store.
const DefaultDir = "vectorstore"

// SearchPaths lists the directories probed by Discover, in order.
func SearchPaths(envPath string) []string {
	var paths []string
	if envPath != "" {
		paths = append(paths, envPath)
	}
	return append(paths,
		DefaultDir,
		filepath.Join("..", DefaultDir),
		filepath.Join(string(filepath.Separator), "app", DefaultDir),
	)
}

// Discover returns configured when it is non-empty. Otherwise it returns the
// first search path that holds both artifact files, or DefaultDir.
func Discover(configured, envPath string) string {
	if configured != "" {
		return configured
	}
	for _, p := range SearchPaths(envPath) {
		if hasArtifacts(p) {
			return p
		}
	}
	return DefaultDir
}

func hasArtifacts(dir string) bool {
	for _, name := range []string{IndexFile, SidecarFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}
