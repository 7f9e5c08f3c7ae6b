package graph

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath canonicalizes a slash-delimited remote path: trims leading
// and trailing slashes and applies Unicode NFC. SharePoint stores names in
// NFC while macOS filesystems hand out NFD, so normalizing here keeps path
// lookups stable regardless of where the path string came from.
// Returns "" for the drive root.
func NormalizePath(remotePath string) string {
	return norm.NFC.String(strings.Trim(remotePath, "/"))
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
// Characters like #, ?, %, and spaces are encoded per-segment so the
// resulting path is safe for interpolation into Graph API URLs.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}
