// Package watchpolicy validates filesystem paths before they become Watch
// rows. The File Watcher itself trusts its input; every caller that creates
// or edits a Watch goes through Validate first.
package watchpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// sensitiveSegments are path components that must never be watched: key
// material, cloud credentials, and secret-bearing dotfiles.
var sensitiveSegments = []string{
	".ssh",
	".gnupg",
	".aws",
	".kube",
	".docker",
	".gcloud",
	".netrc",
	".npmrc",
	".pgpass",
	"credentials",
	"id_rsa",
	"id_ed25519",
}

// sensitiveSuffixes are file suffixes rejected regardless of directory.
var sensitiveSuffixes = []string{
	".env",
	".pem",
	".key",
	".keychain",
	".keystore",
}

// Validate resolves path (expanding a leading ~, following symlinks) and
// returns the cleaned absolute path if it is acceptable to watch: absolute,
// inside the user's home directory or /tmp, and free of sensitive
// components. The path does not have to exist yet; a missing path is
// resolved against its nearest existing ancestor.
func Validate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("watchpolicy: path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("watchpolicy: expand %q: %w", path, err)
	}
	if !filepath.IsAbs(expanded) {
		return "", fmt.Errorf("watchpolicy: %q is not an absolute path", path)
	}

	resolved, err := resolveSymlinks(filepath.Clean(expanded))
	if err != nil {
		return "", fmt.Errorf("watchpolicy: resolve %q: %w", path, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("watchpolicy: determine home dir: %w", err)
	}
	tmpRoot, err := filepath.EvalSymlinks("/tmp")
	if err != nil {
		tmpRoot = "/tmp"
	}
	if !within(resolved, home) && !within(resolved, tmpRoot) {
		return "", fmt.Errorf("watchpolicy: %q is outside the home directory and /tmp", resolved)
	}

	for _, seg := range strings.Split(resolved, string(filepath.Separator)) {
		for _, sensitive := range sensitiveSegments {
			if seg == sensitive {
				return "", fmt.Errorf("watchpolicy: %q contains sensitive component %q", resolved, sensitive)
			}
		}
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(resolved, suffix) {
			return "", fmt.Errorf("watchpolicy: %q has sensitive suffix %q", resolved, suffix)
		}
	}
	return resolved, nil
}

// resolveSymlinks follows symlinks in path. When the path doesn't exist
// yet, its nearest existing ancestor is resolved and the missing tail
// re-appended, so a watch can be created slightly ahead of the directory
// it targets.
func resolveSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir, base := filepath.Split(filepath.Clean(path))
	dir = filepath.Clean(dir)
	if dir == path {
		return "", err
	}
	resolvedDir, rerr := resolveSymlinks(dir)
	if rerr != nil {
		return "", rerr
	}
	return filepath.Join(resolvedDir, base), nil
}

// within reports whether path equals root or sits underneath it.
func within(path, root string) bool {
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
