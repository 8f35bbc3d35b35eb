// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package fake provides an in-memory provider for exercising the
// reconciliation driver without cloud APIs.
package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/pullcache/core/registry"
	"github.com/juju/pullcache/provider"
)

// Two kinds are registered so multi-provider runs can be exercised.
const (
	KindOne = provider.Kind("fakeone")
	KindTwo = provider.Kind("faketwo")
)

func init() {
	for _, kind := range []provider.Kind{KindOne, KindTwo} {
		kind := kind
		provider.Register(kind, provider.Registration{
			Namer: Namer{},
			Factory: func(ctx context.Context, account provider.AccountContext) (provider.Provider, error) {
				return NewProvider(kind), nil
			},
		})
	}
}

// Namer hyphenates everything outside lowercase alphanumerics, which
// makes prefix collisions easy to manufacture in tests.
type Namer struct{}

// RepositoryPrefix is part of provider.Namer.
func (Namer) RepositoryPrefix(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// UpstreamForm is part of provider.Namer.
func (Namer) UpstreamForm(host string) string {
	return host
}

// Call records one provider API call.
type Call struct {
	Name     string
	Registry string
}

// Provider implements provider.Provider in memory, recording every
// call. Hooks run before the default behavior and make failures and
// cancellation scenarios scriptable.
type Provider struct {
	Namer

	// UpsertHook, ApplyHook and VerifyHook, when set, may fail or
	// otherwise observe the call before the in-memory bookkeeping runs.
	UpsertHook func(spec registry.Spec) error
	ApplyHook  func(resource provider.ProxyResource) error
	VerifyHook func(resource provider.ProxyResource) error

	mu           sync.Mutex
	kind         provider.Kind
	calls        []Call
	applied      map[string]provider.ProxyResource
	secretValues map[string]string
	secretWrites map[string]int
}

// NewProvider returns an empty in-memory provider of the given kind.
func NewProvider(kind provider.Kind) *Provider {
	return &Provider{
		kind:         kind,
		applied:      make(map[string]provider.ProxyResource),
		secretValues: make(map[string]string),
		secretWrites: make(map[string]int),
	}
}

// Kind is part of provider.Provider.
func (p *Provider) Kind() provider.Kind {
	return p.kind
}

// CredentialStore is part of provider.Provider.
func (p *Provider) CredentialStore() provider.CredentialStore {
	return p
}

// UpsertCredential is part of provider.CredentialStore.
func (p *Provider) UpsertCredential(ctx context.Context, spec registry.Spec) (*provider.CredentialHandle, error) {
	p.record("UpsertCredential", spec.Name)
	if p.UpsertHook != nil {
		if err := p.UpsertHook(spec); err != nil {
			return nil, err
		}
	}
	if !spec.HasCredentials() {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	value := spec.Credentials.Username + ":" + spec.Credentials.AccessToken
	if p.secretValues[spec.Name] != value {
		p.secretValues[spec.Name] = value
		p.secretWrites[spec.Name]++
	}
	return &provider.CredentialHandle{
		Kind:      p.kind,
		Reference: "fake://" + string(p.kind) + "/" + spec.Name,
	}, nil
}

// ApplyProxy is part of provider.Provider.
func (p *Provider) ApplyProxy(ctx context.Context, resource provider.ProxyResource) error {
	p.record("ApplyProxy", resource.RegistryName)
	if p.ApplyHook != nil {
		if err := p.ApplyHook(resource); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied[resource.RegistryName] = resource
	return nil
}

// VerifyProxy is part of provider.Provider.
func (p *Provider) VerifyProxy(ctx context.Context, resource provider.ProxyResource) error {
	p.record("VerifyProxy", resource.RegistryName)
	if p.VerifyHook != nil {
		if err := p.VerifyHook(resource); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.applied[resource.RegistryName]; !ok {
		return &notAppliedError{name: resource.RegistryName}
	}
	return nil
}

// ResolveEndpoint is part of provider.Provider.
func (p *Provider) ResolveEndpoint(resource provider.ProxyResource) (provider.ResolvedEndpoint, error) {
	return provider.ResolvedEndpoint{
		RegistryName: resource.RegistryName,
		Kind:         p.kind,
		URL:          "registry." + string(p.kind) + ".test/" + resource.RepositoryPrefix + "/",
	}, nil
}

func (p *Provider) record(name, registryName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Name: name, Registry: registryName})
}

// Calls returns a copy of the recorded call sequence.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]Call, len(p.calls))
	copy(calls, p.calls)
	return calls
}

// Applied returns the resource last applied for the registry.
func (p *Provider) Applied(registryName string) (provider.ProxyResource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	resource, ok := p.applied[registryName]
	return resource, ok
}

// SecretWrites returns how many times the registry's secret value was
// actually written, as opposed to no-op upserts.
func (p *Provider) SecretWrites(registryName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.secretWrites[registryName]
}

type notAppliedError struct {
	name string
}

func (e *notAppliedError) Error() string {
	return "proxy for " + e.name + " was never applied"
}
