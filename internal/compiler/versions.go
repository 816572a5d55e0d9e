// Package compiler builds normalized standard-JSON compilation inputs and
// resolves compiler version strings against the published release list.
package compiler

import "strings"

// Version is one entry of the published compiler release list.
type Version struct {
	Version     string `json:"version"`
	LongVersion string `json:"longVersion"`
	Path        string `json:"path,omitempty"`
}

// ResolveVersion maps a version string found in a manifest or build-info
// artifact to a known release.
//
// An exact match against the long identifier wins. A bare X.Y.Z candidate
// (no build metadata) falls back to the first release whose long identifier
// starts with "X.Y.Z+commit"; the release list is newest-first, so the first
// prefix hit is the newest build of that version.
//
// A miss is an expected outcome, not an error: callers prompt for a manual
// compiler selection instead of failing.
func ResolveVersion(candidate string, known []Version) (Version, bool) {
	if candidate == "" {
		return Version{}, false
	}

	for _, v := range known {
		if v.LongVersion == candidate {
			return v, true
		}
	}

	if !strings.Contains(candidate, "+") {
		prefix := candidate + "+commit"
		for _, v := range known {
			if strings.HasPrefix(v.LongVersion, prefix) {
				return v, true
			}
		}
	}

	return Version{}, false
}
