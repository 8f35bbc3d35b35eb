// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provider defines the capability surface a cloud must satisfy
// to host pull-through cache proxies, along with the provider-neutral
// planning that turns registry specs into the proxy resources each
// cloud materializes.
//
// Implementations register themselves at init time, the way cloud
// providers do elsewhere in the juju ecosystem, and are opened per
// reconciliation run against an explicit account context. Nothing in
// this package holds account state globally.
package provider

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/pullcache/core/registry"
)

// Kind identifies a supported cloud provider.
type Kind string

const (
	// AWS provisions ECR pull-through cache rules.
	AWS Kind = "aws"

	// GCP provisions Artifact Registry remote repositories.
	GCP Kind = "gcp"
)

// String is the printable form of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	switch kind := Kind(strings.ToLower(s)); kind {
	case AWS, GCP:
		return kind, nil
	}
	return "", errors.NotValidf("provider kind %q", s)
}

// AuthMaterial optionally carries provider API authentication injected
// by the calling environment. When absent, each provider falls back to
// its SDK's ambient credential chain.
type AuthMaterial struct {
	// AccessKeyID, SecretAccessKey and SessionToken form a static AWS
	// credential. SessionToken may be empty for long lived keys.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// CredentialsJSON is a GCP service account key document.
	CredentialsJSON []byte
}

// AccountContext carries the provider account identity a reconciliation
// run operates in. It is injected by the caller and scoped to a single
// run.
type AccountContext struct {
	// AccountID is the AWS account number owning the target registry.
	AccountID string

	// ProjectID is the GCP project hosting the target repositories.
	ProjectID string

	// Region is the provider region (AWS) or location (GCP) that
	// proxied clients pull from.
	Region string

	// Auth optionally carries API authentication material consumed at
	// dial time. Nil selects the provider's ambient default chain.
	Auth *AuthMaterial
}

// Validate checks the context carries what the given kind requires.
func (a AccountContext) Validate(kind Kind) error {
	switch kind {
	case AWS:
		if a.AccountID == "" {
			return errors.NotValidf("aws account context without account id")
		}
	case GCP:
		if a.ProjectID == "" {
			return errors.NotValidf("gcp account context without project id")
		}
	}
	if a.Region == "" {
		return errors.NotValidf("account context without region")
	}
	return nil
}

// CredentialHandle is the opaque locator of a provider-resident secret
// holding upstream registry credentials. Only the store that created
// the secret can interpret the reference; raw secret material never
// travels on a handle.
type CredentialHandle struct {
	// Kind names the provider owning the secret.
	Kind Kind

	// Reference locates the secret in provider terms, an ARN on AWS or
	// a secret version resource name on GCP.
	Reference string
}

// RetentionRule parameterizes image expiry for cached artifacts.
// Construct rules with NewRetentionRule so the window is validated
// before any provider is asked to enforce it.
type RetentionRule struct {
	// Days is the inactivity window in days. Always positive on a
	// planned resource.
	Days int
}

// ProxyResource declares one pull-through cache proxy on one provider.
// It is an immutable snapshot taken at plan time: planning again with
// changed inputs yields a new value that supersedes this one, never a
// mutation of it.
type ProxyResource struct {
	// RegistryName is the spec name the resource was planned from.
	RegistryName string

	// Kind names the provider the resource belongs to.
	Kind Kind

	// RepositoryPrefix is the provider-legal identifier derived from
	// RegistryName. It namespaces every image cached through the proxy.
	RepositoryPrefix string

	// Upstream is the provider-specific upstream form: a bare host on
	// AWS, an https URL on GCP.
	Upstream string

	// UpstreamUsername carries the upstream account name for providers
	// whose API takes the username beside a token-only secret. It is
	// configuration, not secret material.
	UpstreamUsername string

	// Credential references the provider-resident upstream secret.
	// Nil for anonymous upstreams.
	Credential *CredentialHandle

	// Retention is the expiry rule attached to the proxy.
	Retention RetentionRule
}

// WithCredential returns a copy of the resource carrying the handle.
func (r ProxyResource) WithCredential(handle *CredentialHandle) ProxyResource {
	r.Credential = handle
	return r
}

// ResolvedEndpoint is the derived pull URL for one registry on one
// provider. Endpoints are recomputed from resource and account context
// on demand, never persisted.
type ResolvedEndpoint struct {
	RegistryName string
	Kind         Kind

	// URL is the canonical proxy address clients prepend to image
	// references, always ending in a trailing slash.
	URL string
}

// Namer derives deterministic provider-legal identifiers from spec
// fields. Namers are stateless and usable before any API client exists,
// which keeps planning pure.
type Namer interface {
	// RepositoryPrefix maps a registry name onto the provider's naming
	// rules. The mapping is deterministic: equal names yield equal
	// prefixes on every call, and names already legal for the provider
	// map to themselves.
	RepositoryPrefix(name string) string

	// UpstreamForm maps a canonical upstream host onto the form the
	// provider's API expects.
	UpstreamForm(host string) string
}

// CredentialStore manages provider-resident secrets holding upstream
// registry credentials.
type CredentialStore interface {
	// UpsertCredential creates or updates the secret for the spec's
	// upstream credentials and returns its handle. Specs without
	// credentials yield (nil, nil): anonymous upstreams own no secret,
	// and absence of credentials is never an error here. The call is
	// idempotent; repeating it with unchanged credentials returns the
	// same handle without rewriting secret material.
	UpsertCredential(ctx context.Context, spec registry.Spec) (*CredentialHandle, error)
}

// Provider is the capability interface one cloud implementation
// satisfies. Instances are scoped to a single reconciliation run and
// the account context they were opened with.
type Provider interface {
	Namer

	// Kind identifies the implementation.
	Kind() Kind

	// CredentialStore returns the provider's upstream secret store.
	CredentialStore() CredentialStore

	// ApplyProxy materializes the declared resource. Applying an
	// already-applied, unchanged resource is a no-op; a drifted
	// resource is converged back to the declaration.
	ApplyProxy(ctx context.Context, resource ProxyResource) error

	// VerifyProxy confirms the applied resource is queryable through
	// the provider API.
	VerifyProxy(ctx context.Context, resource ProxyResource) error

	// ResolveEndpoint derives the canonical pull URL for the resource.
	// It is a pure function of the resource and the account context;
	// no API call is made.
	ResolveEndpoint(resource ProxyResource) (ResolvedEndpoint, error)
}
