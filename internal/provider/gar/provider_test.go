// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"context"
	"time"

	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/juju/pullcache/provider"
)

type ProviderSuite struct {
	testing.IsolationSuite

	account provider.AccountContext
}

var _ = gc.Suite(&ProviderSuite{})

func (s *ProviderSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.account = provider.AccountContext{
		ProjectID: "acme-prod",
		Region:    "us",
	}
}

func (s *ProviderSuite) resource() provider.ProxyResource {
	return provider.ProxyResource{
		RegistryName:     "hub-proxy",
		Kind:             provider.GCP,
		RepositoryPrefix: "hub-proxy",
		Upstream:         "https://registry-1.docker.io",
		Retention:        provider.RetentionRule{Days: 30},
	}
}

func (s *ProviderSuite) provider(c *gc.C, api *fakeAPI) provider.Provider {
	p, err := New(s.account, api)
	c.Assert(err, jc.ErrorIsNil)
	return p
}

func repoNotFound() error {
	return status.Error(codes.NotFound, "no such repository")
}

// remoteRepository builds the repository shape the apply path is
// expected to converge on.
func remoteRepository(upstream string, days int) *artifactregistrypb.Repository {
	return &artifactregistrypb.Repository{
		Name:        "projects/acme-prod/locations/us/repositories/hub-proxy",
		Format:      artifactregistrypb.Repository_DOCKER,
		Mode:        artifactregistrypb.Repository_REMOTE_REPOSITORY,
		Description: "pull-through cache for " + upstream,
		ModeConfig: &artifactregistrypb.Repository_RemoteRepositoryConfig{
			RemoteRepositoryConfig: &artifactregistrypb.RemoteRepositoryConfig{
				RemoteSource: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository_{
					DockerRepository: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository{
						Upstream: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository_CustomRepository_{
							CustomRepository: &artifactregistrypb.RemoteRepositoryConfig_DockerRepository_CustomRepository{
								Uri: upstream,
							},
						},
					},
				},
			},
		},
		CleanupPolicies: map[string]*artifactregistrypb.CleanupPolicy{
			cleanupPolicyID: {
				Id:     cleanupPolicyID,
				Action: artifactregistrypb.CleanupPolicy_DELETE,
				ConditionType: &artifactregistrypb.CleanupPolicy_Condition{
					Condition: &artifactregistrypb.CleanupPolicyCondition{
						TagState:  artifactregistrypb.CleanupPolicyCondition_ANY.Enum(),
						OlderThan: durationpb.New(time.Duration(days) * 24 * time.Hour),
					},
				},
			},
		},
	}
}

func (s *ProviderSuite) TestApplyProxyCreatesRepository(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(repoID string) (*artifactregistrypb.Repository, error) {
			c.Check(repoID, gc.Equals, "hub-proxy")
			return nil, repoNotFound()
		},
		createRepo: func(repoID string, repo *artifactregistrypb.Repository) error {
			c.Check(repoID, gc.Equals, "hub-proxy")
			c.Check(repo.Format, gc.Equals, artifactregistrypb.Repository_DOCKER)
			c.Check(repo.Mode, gc.Equals, artifactregistrypb.Repository_REMOTE_REPOSITORY)
			c.Check(repo.GetRemoteRepositoryConfig().GetDockerRepository().GetCustomRepository().GetUri(),
				gc.Equals, "https://registry-1.docker.io")
			policy := repo.GetCleanupPolicies()[cleanupPolicyID]
			c.Assert(policy, gc.NotNil)
			c.Check(policy.GetCondition().GetOlderThan().AsDuration(), gc.Equals, 30*24*time.Hour)
			return nil
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(api.calls, jc.DeepEquals, []string{"GetRepository", "CreateRepository"})
}

func (s *ProviderSuite) TestApplyProxyWiresCredential(c *gc.C) {
	resource := s.resource()
	resource.UpstreamUsername = "robot"
	resource = resource.WithCredential(&provider.CredentialHandle{
		Kind:      provider.GCP,
		Reference: "projects/acme-prod/secrets/pullcache-hub-proxy/versions/latest",
	})
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return nil, repoNotFound()
		},
		createRepo: func(_ string, repo *artifactregistrypb.Repository) error {
			creds := repo.GetRemoteRepositoryConfig().GetUpstreamCredentials().GetUsernamePasswordCredentials()
			c.Assert(creds, gc.NotNil)
			c.Check(creds.Username, gc.Equals, "robot")
			c.Check(creds.PasswordSecretVersion, gc.Equals,
				"projects/acme-prod/secrets/pullcache-hub-proxy/versions/latest")
			return nil
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), resource)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ProviderSuite) TestApplyProxyUnchangedIsNoOp(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return remoteRepository("https://registry-1.docker.io", 30), nil
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(api.calls, jc.DeepEquals, []string{"GetRepository"})
}

func (s *ProviderSuite) TestApplyProxyConvergesDrift(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return remoteRepository("https://quay.io", 7), nil
		},
		updateRepo: func(repo *artifactregistrypb.Repository, paths []string) error {
			c.Check(paths, jc.SameContents, []string{"remote_repository_config", "cleanup_policies"})
			c.Check(repo.Name, gc.Equals, "projects/acme-prod/locations/us/repositories/hub-proxy")
			c.Check(repo.GetRemoteRepositoryConfig().GetDockerRepository().GetCustomRepository().GetUri(),
				gc.Equals, "https://registry-1.docker.io")
			policy := repo.GetCleanupPolicies()[cleanupPolicyID]
			c.Check(policy.GetCondition().GetOlderThan().AsDuration(), gc.Equals, 30*24*time.Hour)
			return nil
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(api.calls, jc.DeepEquals, []string{"GetRepository", "UpdateRepository"})
}

func (s *ProviderSuite) TestApplyProxyPreservesForeignCleanupPolicies(c *gc.C) {
	foreign := &artifactregistrypb.CleanupPolicy{
		Id:     "keep-recent",
		Action: artifactregistrypb.CleanupPolicy_KEEP,
	}
	existing := remoteRepository("https://quay.io", 30)
	existing.CleanupPolicies["keep-recent"] = foreign
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return existing, nil
		},
		updateRepo: func(repo *artifactregistrypb.Repository, _ []string) error {
			c.Check(proto.Equal(repo.GetCleanupPolicies()["keep-recent"], foreign), jc.IsTrue)
			return nil
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ProviderSuite) TestApplyProxyWrongModeIsConflict(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return &artifactregistrypb.Repository{
				Name:   "projects/acme-prod/locations/us/repositories/hub-proxy",
				Format: artifactregistrypb.Repository_DOCKER,
				Mode:   artifactregistrypb.Repository_STANDARD_REPOSITORY,
			}, nil
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIs, provider.Conflict)
}

func (s *ProviderSuite) TestApplyProxyPermissionDenied(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIs, provider.PermissionDenied)
}

func (s *ProviderSuite) TestApplyProxyUnavailableIsTransient(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return nil, status.Error(codes.Unavailable, "try later")
		},
	}
	err := s.provider(c, api).ApplyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIs, provider.Transient)
}

func (s *ProviderSuite) TestVerifyProxy(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return remoteRepository("https://registry-1.docker.io", 30), nil
		},
	}
	err := s.provider(c, api).VerifyProxy(context.Background(), s.resource())
	c.Assert(err, jc.ErrorIsNil)
}

func (s *ProviderSuite) TestVerifyProxyMissingPolicy(c *gc.C) {
	repo := remoteRepository("https://registry-1.docker.io", 30)
	repo.CleanupPolicies = nil
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return repo, nil
		},
	}
	err := s.provider(c, api).VerifyProxy(context.Background(), s.resource())
	c.Assert(err, gc.ErrorMatches, `repository "hub-proxy" is missing its retention policy after apply`)
}

func (s *ProviderSuite) TestVerifyProxyMissingRepository(c *gc.C) {
	api := &fakeAPI{
		getRepo: func(string) (*artifactregistrypb.Repository, error) {
			return nil, repoNotFound()
		},
	}
	err := s.provider(c, api).VerifyProxy(context.Background(), s.resource())
	c.Assert(err, gc.ErrorMatches, `verifying repository "hub-proxy": .*`)
}

func (s *ProviderSuite) TestResolveEndpoint(c *gc.C) {
	p := s.provider(c, &fakeAPI{})
	endpoint, err := p.ResolveEndpoint(s.resource())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(endpoint, jc.DeepEquals, provider.ResolvedEndpoint{
		RegistryName: "hub-proxy",
		Kind:         provider.GCP,
		URL:          "us-docker.pkg.dev/acme-prod/hub-proxy/",
	})
}

func (s *ProviderSuite) TestResolveEndpointWrongKind(c *gc.C) {
	p := s.provider(c, &fakeAPI{})
	resource := s.resource()
	resource.Kind = provider.AWS
	_, err := p.ResolveEndpoint(resource)
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *ProviderSuite) TestNewValidatesAccount(c *gc.C) {
	_, err := New(provider.AccountContext{Region: "us"}, &fakeAPI{})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *ProviderSuite) TestKind(c *gc.C) {
	c.Assert(s.provider(c, &fakeAPI{}).Kind(), gc.Equals, provider.GCP)
}
