// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"strings"
)

// Artifact Registry repository ids admit lowercase alphanumerics and
// single hyphens, starting with a letter, at most 63 characters.
const maxRepositoryIDLength = 63

// Namer maps registry names onto Artifact Registry's naming rules.
// Names already legal map to themselves.
type Namer struct{}

// RepositoryPrefix lowercases the name and hyphenates everything the
// repository id grammar disallows, dots and underscores included,
// collapsing runs. The mapping is deterministic.
func (Namer) RepositoryPrefix(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	id := b.String()
	if len(id) > maxRepositoryIDLength {
		id = id[:maxRepositoryIDLength]
	}
	return strings.TrimRight(id, "-")
}

// UpstreamForm returns the https URL form a remote repository's custom
// upstream expects.
func (Namer) UpstreamForm(host string) string {
	return "https://" + host
}
