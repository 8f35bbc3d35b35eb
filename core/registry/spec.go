// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package registry defines the model for upstream container registries
// that are served through provider-local pull-through caches. A Spec is
// pure declaration: planning for each cloud provider turns it into the
// proxy resources that provider materializes.
package registry

import (
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

const (
	// ErrInvalidName indicates an empty, malformed or duplicate
	// registry name.
	ErrInvalidName = errors.ConstError("invalid registry name")

	// ErrInvalidUpstream indicates a malformed upstream registry host.
	ErrInvalidUpstream = errors.ConstError("invalid upstream host")

	// ErrIncompleteCredentials indicates that only one half of the
	// username/access token pair was supplied.
	ErrIncompleteCredentials = errors.ConstError("incomplete credentials")
)

// Credentials holds the authentication pair for a private upstream
// registry. A public upstream carries no Credentials at all: the nil
// pointer is the anonymous case, distinct from an empty value.
type Credentials struct {
	// Username is the upstream registry account name.
	Username string `yaml:"username"`

	// AccessToken is the access token or password paired with Username.
	AccessToken string `yaml:"access-token"`
}

// Empty reports whether no credential material is present.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.AccessToken == ""
}

// Redacted returns a form of the credentials safe for logging.
func (c Credentials) Redacted() string {
	if c.Username == "" {
		return "****"
	}
	return c.Username + ":****"
}

// Validate checks that the pair is complete. Half-supplied credentials
// are operator mistakes, never treated as anonymous access.
func (c Credentials) Validate() error {
	if c.Username == "" || c.AccessToken == "" {
		return errors.WithType(
			errors.New("credentials must supply both username and access token"),
			ErrIncompleteCredentials)
	}
	return nil
}

// Spec declares one upstream registry to be proxied. It is the unit of
// planning input: one Spec yields one proxy resource on every provider
// it is enabled for.
type Spec struct {
	// Name uniquely identifies the registry within a provisioning run.
	// It seeds the repository prefix derived for every provider.
	Name string `yaml:"name"`

	// Upstream is the hostname of the registry being proxied, with no
	// scheme. Provider-specific URL forms are derived at plan time, not
	// here.
	Upstream string `yaml:"upstream"`

	// Credentials optionally authenticates against the upstream.
	// Nil means anonymous access to a public upstream.
	Credentials *Credentials `yaml:"credentials,omitempty"`

	// RetentionDays is the inactivity window after which cached images
	// become eligible for expiry. Positivity is enforced at plan time.
	RetentionDays int `yaml:"retention-days"`

	// Providers names the providers this registry is proxied on.
	Providers []string `yaml:"providers,flow"`
}

// HasCredentials reports whether the spec authenticates its upstream.
func (s Spec) HasCredentials() bool {
	return s.Credentials != nil
}

// EnabledOn reports whether the spec names the given provider.
func (s Spec) EnabledOn(kind string) bool {
	for _, p := range s.Providers {
		if strings.EqualFold(p, kind) {
			return true
		}
	}
	return false
}

// Validate checks the spec in isolation. It is a pure function; no
// provider is consulted.
func (s Spec) Validate() error {
	if !validName(s.Name) {
		return errors.WithType(
			errors.Errorf("registry name %q not valid", s.Name),
			ErrInvalidName)
	}
	if !validUpstreamHost(NormalizeUpstream(s.Upstream)) {
		return errors.WithType(
			errors.Errorf("upstream host %q for registry %q not valid", s.Upstream, s.Name),
			ErrInvalidUpstream)
	}
	if s.Credentials != nil {
		if err := s.Credentials.Validate(); err != nil {
			return errors.Annotatef(err, "registry %q", s.Name)
		}
	}
	return nil
}

// Specs is the declarative registry list a provisioning run consumes.
type Specs []Spec

// Validate checks every spec and the cross-spec name uniqueness
// invariant. The first violation found is returned.
func (s Specs) Validate() error {
	seen := set.NewStrings()
	for _, spec := range s {
		if err := spec.Validate(); err != nil {
			return errors.Trace(err)
		}
		if seen.Contains(spec.Name) {
			return errors.WithType(
				errors.Errorf("registry name %q declared more than once", spec.Name),
				ErrInvalidName)
		}
		seen.Add(spec.Name)
	}
	return nil
}

// Find returns the spec with the given name.
func (s Specs) Find(name string) (Spec, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec, true
		}
	}
	return Spec{}, false
}

// NormalizeUpstream returns the canonical upstream host: lowercased,
// trailing slash trimmed, and well known Docker Hub aliases resolved to
// the address pull-through caches must actually dial.
func NormalizeUpstream(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "/"))
	switch host {
	case "docker.io", "index.docker.io", "registry.docker.io":
		return "registry-1.docker.io"
	}
	return host
}

const maxNameLength = 128

// validName accepts names beginning with a letter and continuing with
// letters, digits and the ECR-legal separators. Case is preserved here;
// providers with stricter rules sanitize deterministically at plan time.
func validName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// validUpstreamHost accepts a registry hostname with an optional port.
// Schemes and paths are rejected: the provider-specific URL form is the
// planner's business, not the model's.
func validUpstreamHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if strings.Contains(host, "://") || strings.ContainsAny(host, " \t/\\@") {
		return false
	}
	hostname := host
	if i := strings.LastIndex(host, ":"); i >= 0 {
		port := host[i+1:]
		if port == "" {
			return false
		}
		for _, r := range port {
			if r < '0' || r > '9' {
				return false
			}
		}
		hostname = host[:i]
	}
	if !strings.Contains(hostname, ".") {
		return false
	}
	if strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") ||
		strings.HasPrefix(hostname, "-") || strings.Contains(hostname, "..") {
		return false
	}
	for _, r := range hostname {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}
