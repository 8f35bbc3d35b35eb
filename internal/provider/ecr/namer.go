// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ecr

import (
	"strings"
)

// ECR repository prefixes admit lowercase alphanumerics separated by
// single dots, underscores, hyphens or slashes, at most 30 characters.
const maxPrefixLength = 30

// Namer maps registry names onto ECR's naming rules. Names already
// legal for ECR map to themselves.
type Namer struct{}

// RepositoryPrefix lowercases the name, maps disallowed characters to
// hyphens and collapses separator runs so the result stays a legal
// pull-through cache prefix. The mapping is deterministic.
func (Namer) RepositoryPrefix(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case r == '.' || r == '_' || r == '-':
			if !lastSep {
				b.WriteRune(r)
				lastSep = true
			}
		default:
			if !lastSep {
				b.WriteByte('-')
				lastSep = true
			}
		}
	}
	prefix := b.String()
	if len(prefix) > maxPrefixLength {
		prefix = prefix[:maxPrefixLength]
	}
	return strings.TrimRight(prefix, "._-")
}

// UpstreamForm returns the bare host: ECR's upstreamRegistryUrl field
// carries no scheme.
func (Namer) UpstreamForm(host string) string {
	return host
}
