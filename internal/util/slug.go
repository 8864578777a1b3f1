package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PathSlug converts an absolute file path into a filesystem-safe name that
// is stable and unique for that path. The readable prefix keeps lock files
// greppable; the hash suffix disambiguates paths that slug identically
// (e.g. /a/b.c and /a/b_c).
//
// Format: slugified path truncated to its last 40 chars, plus an 8-char
// sha256 fragment of the full path. Example:
// /home/dev/proj/parser.go -> home_dev_proj_parser_go-2f6c1a9b
func PathSlug(path string) string {
	sum := sha256.Sum256([]byte(path))
	suffix := hex.EncodeToString(sum[:])[:8]

	var b strings.Builder
	for _, r := range strings.ToLower(path) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), "_")

	// Collapse runs of underscores left by adjacent separators.
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}

	// Keep the tail: the leaf path elements are the informative part.
	if len(slug) > 40 {
		slug = slug[len(slug)-40:]
		slug = strings.TrimLeft(slug, "_")
	}
	if slug == "" {
		slug = "path"
	}

	return slug + "-" + suffix
}
