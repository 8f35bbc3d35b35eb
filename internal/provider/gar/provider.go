// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package gar provisions Artifact Registry remote repositories acting
// as pull-through caches, their cleanup policies enforcing retention,
// and the Secret Manager secrets carrying upstream access tokens.
package gar

import (
	"context"
	"fmt"

	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"google.golang.org/protobuf/proto"

	"github.com/juju/pullcache/provider"
)

var logger = loggo.GetLogger("pullcache.provider.gar")

func init() {
	provider.Register(provider.GCP, provider.Registration{
		Namer:   Namer{},
		Factory: open,
	})
}

func open(ctx context.Context, account provider.AccountContext) (provider.Provider, error) {
	conn, err := Connect(ctx, account)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return New(account, conn)
}

// New returns a GCP provider driving the given API. It is split from
// the registered factory so tests can substitute fakes.
func New(account provider.AccountContext, api API) (provider.Provider, error) {
	if err := account.Validate(provider.GCP); err != nil {
		return nil, errors.Trace(err)
	}
	return &garProvider{
		account: account,
		api:     api,
		store:   &secretStore{api: api},
	}, nil
}

type garProvider struct {
	Namer

	account provider.AccountContext
	api     API
	store   *secretStore
}

// Kind is part of provider.Provider.
func (p *garProvider) Kind() provider.Kind {
	return provider.GCP
}

// CredentialStore is part of provider.Provider.
func (p *garProvider) CredentialStore() provider.CredentialStore {
	return p.store
}

// desiredRepository renders the resource as the remote repository the
// provider converges on.
func (p *garProvider) desiredRepository(resource provider.ProxyResource) *artifactregistrypb.Repository {
	repo := &artifactregistrypb.Repository{
		Format:      artifactregistrypb.Repository_DOCKER,
		Mode:        artifactregistrypb.Repository_REMOTE_REPOSITORY,
		Description: fmt.Sprintf("pull-through cache for %s", resource.Upstream),
		ModeConfig: &artifactregistrypb.Repository_RemoteRepositoryConfig{
			RemoteRepositoryConfig: &artifactregistrypb.RemoteRepositoryConfig{
				RemoteSource: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository_{
					DockerRepository: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository{
						Upstream: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository_CustomRepository_{
							CustomRepository: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository_CustomRepository{
								Uri: resource.Upstream,
							},
						},
					},
				},
			},
		},
		CleanupPolicies: map[string]*artifactregistrypb.CleanupPolicy{
			cleanupPolicyID: cleanupPolicy(resource.Retention),
		},
	}
	if resource.Credential != nil {
		repo.GetRemoteRepositoryConfig().UpstreamCredentials = &artifactregistrypb.RemoteRepositoryConfig_UpstreamCredentials{
			Credentials: &artifactregistrypb.RemoteRepositoryConfig_UpstreamCredentials_UsernamePasswordCredentials_{
				UsernamePasswordCredentials: &artifactregistrypb.RemoteRepositoryConfig_UpstreamCredentials_UsernamePasswordCredentials{
					Username:              resource.UpstreamUsername,
					PasswordSecretVersion: resource.Credential.Reference,
				},
			},
		}
	}
	return repo
}

// ApplyProxy converges the remote repository onto the declaration.
// Applying an unchanged resource makes no writes.
func (p *garProvider) ApplyProxy(ctx context.Context, resource provider.ProxyResource) error {
	repoID := resource.RepositoryPrefix
	want := p.desiredRepository(resource)

	got, err := p.api.GetRepository(ctx, repoID)
	switch {
	case isNotFound(err):
		if err := p.api.CreateRepository(ctx, repoID, want); err != nil {
			return classify(err, "creating repository %q", repoID)
		}
		logger.Infof("created remote repository %q for %s", repoID, resource.Upstream)
		return nil
	case err != nil:
		return classify(err, "describing repository %q", repoID)
	}

	// Format and mode are immutable. A repository of the wrong shape
	// occupying the id cannot be converged, only reported.
	if got.Format != artifactregistrypb.Repository_DOCKER ||
		got.Mode != artifactregistrypb.Repository_REMOTE_REPOSITORY {
		return errors.WithType(
			errors.Errorf("repository %q exists with format %s mode %s, not a docker remote repository",
				repoID, got.Format, got.Mode),
			provider.Conflict)
	}

	if proto.Equal(got.GetRemoteRepositoryConfig(), want.GetRemoteRepositoryConfig()) &&
		proto.Equal(got.GetCleanupPolicies()[cleanupPolicyID], cleanupPolicy(resource.Retention)) {
		logger.Debugf("repository %q already up to date", repoID)
		return nil
	}

	want.Name = got.Name
	// Policies under other ids stay untouched: the engine owns only its
	// own cleanup policy.
	for id, policy := range got.GetCleanupPolicies() {
		if id != cleanupPolicyID {
			want.CleanupPolicies[id] = policy
		}
	}
	if err := p.api.UpdateRepository(ctx, want, []string{
		"remote_repository_config", "cleanup_policies",
	}); err != nil {
		return classify(err, "updating repository %q", repoID)
	}
	logger.Infof("converged remote repository %q", repoID)
	return nil
}

// VerifyProxy confirms the repository is queryable and still a docker
// remote repository carrying the engine's cleanup policy.
func (p *garProvider) VerifyProxy(ctx context.Context, resource provider.ProxyResource) error {
	repoID := resource.RepositoryPrefix
	got, err := p.api.GetRepository(ctx, repoID)
	if err != nil {
		return classify(err, "verifying repository %q", repoID)
	}
	if got.Mode != artifactregistrypb.Repository_REMOTE_REPOSITORY {
		return errors.Errorf("repository %q is not a remote repository after apply", repoID)
	}
	if got.GetCleanupPolicies()[cleanupPolicyID] == nil {
		return errors.Errorf("repository %q is missing its retention policy after apply", repoID)
	}
	return nil
}

// ResolveEndpoint derives the canonical proxy pull URL. Pure
// computation over the resource and account context.
func (p *garProvider) ResolveEndpoint(resource provider.ProxyResource) (provider.ResolvedEndpoint, error) {
	if resource.Kind != provider.GCP {
		return provider.ResolvedEndpoint{}, errors.NotValidf("resolving %q resource on gcp", resource.Kind)
	}
	return provider.ResolvedEndpoint{
		RegistryName: resource.RegistryName,
		Kind:         provider.GCP,
		URL: fmt.Sprintf("%s-docker.pkg.dev/%s/%s/",
			p.account.Region, p.account.ProjectID, resource.RepositoryPrefix),
	}, nil
}
