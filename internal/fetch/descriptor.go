package fetch

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// AssetDescriptor identifies one downloadable unit produced by a catalog
// query. DestinationPath is relative to the output folder and must not
// escape it.
type AssetDescriptor struct {
	ID              string
	SourceURL       string
	DestinationPath string
	// ExpectedSize is the byte count reported by the catalog, used for the
	// skip-if-exists check and to detect truncated transfers. Zero means
	// unknown.
	ExpectedSize int64
}

func (d AssetDescriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor has empty id")
	}

	if d.DestinationPath == "" {
		return &InvalidPathError{Path: d.DestinationPath, Reason: "empty destination path"}
	}

	u, err := url.Parse(d.SourceURL)
	if err != nil {
		return fmt.Errorf("invalid source url %q: %w", d.SourceURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported source url scheme %q", u.Scheme)
	}

	return nil
}

// resolveDestination joins the destination path under root and rejects any
// path that would land outside it (absolute paths, "..", traversal after
// cleaning).
func resolveDestination(root, dest string) (string, error) {
	dest = filepath.FromSlash(dest)

	if filepath.IsAbs(dest) {
		return "", &InvalidPathError{Path: dest, Reason: "absolute path not allowed"}
	}

	if !filepath.IsLocal(dest) {
		return "", &InvalidPathError{Path: dest, Reason: "path escapes the output folder"}
	}

	target := filepath.Join(root, dest)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Path: dest, Reason: "path escapes the output folder"}
	}

	return target, nil
}
