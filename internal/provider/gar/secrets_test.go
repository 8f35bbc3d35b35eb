// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"context"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/juju/pullcache/core/registry"
	"github.com/juju/pullcache/provider"
)

type SecretsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&SecretsSuite{})

const hubSecretName = "projects/acme-prod/secrets/pullcache-hub-proxy"

func (s *SecretsSuite) spec() registry.Spec {
	return registry.Spec{
		Name:          "hub-proxy",
		Upstream:      "docker.io",
		Credentials:   &registry.Credentials{Username: "robot", AccessToken: "sekrit"},
		RetentionDays: 30,
		Providers:     []string{"gcp"},
	}
}

func (s *SecretsSuite) TestUpsertCreatesFirstVersion(c *gc.C) {
	api := &fakeAPI{
		ensureSecret: func(secretID string) (string, error) {
			c.Check(secretID, gc.Equals, "pullcache-hub-proxy")
			return hubSecretName, nil
		},
		accessSecret: func(string) ([]byte, error) {
			return nil, status.Error(codes.NotFound, "no versions")
		},
		addVersion: func(secretID string, data []byte) error {
			c.Check(string(data), gc.Equals, "sekrit")
			return nil
		},
	}
	store := &secretStore{api: api}
	handle, err := store.UpsertCredential(context.Background(), s.spec())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(handle, jc.DeepEquals, &provider.CredentialHandle{
		Kind:      provider.GCP,
		Reference: hubSecretName + "/versions/latest",
	})
	c.Assert(api.calls, jc.DeepEquals, []string{
		"EnsureSecret", "AccessLatestSecretVersion", "AddSecretVersion",
	})
}

func (s *SecretsSuite) TestUpsertUnchangedMakesNoWrites(c *gc.C) {
	api := &fakeAPI{
		ensureSecret: func(string) (string, error) { return hubSecretName, nil },
		accessSecret: func(string) ([]byte, error) { return []byte("sekrit"), nil },
	}
	store := &secretStore{api: api}
	handle, err := store.UpsertCredential(context.Background(), s.spec())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(handle.Reference, gc.Equals, hubSecretName+"/versions/latest")
	c.Assert(api.calls, jc.DeepEquals, []string{"EnsureSecret", "AccessLatestSecretVersion"})
}

func (s *SecretsSuite) TestUpsertRotatesChangedToken(c *gc.C) {
	var written string
	api := &fakeAPI{
		ensureSecret: func(string) (string, error) { return hubSecretName, nil },
		accessSecret: func(string) ([]byte, error) { return []byte("stale"), nil },
		addVersion: func(_ string, data []byte) error {
			written = string(data)
			return nil
		},
	}
	store := &secretStore{api: api}
	handle, err := store.UpsertCredential(context.Background(), s.spec())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(written, gc.Equals, "sekrit")
	// The handle floats on latest, so rotation never re-wires consumers.
	c.Assert(handle.Reference, gc.Equals, hubSecretName+"/versions/latest")
}

func (s *SecretsSuite) TestUpsertAnonymousSpecOwnsNoSecret(c *gc.C) {
	api := &fakeAPI{}
	store := &secretStore{api: api}
	spec := s.spec()
	spec.Credentials = nil
	handle, err := store.UpsertCredential(context.Background(), spec)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(handle, gc.IsNil)
	c.Assert(api.calls, gc.HasLen, 0)
}

func (s *SecretsSuite) TestUpsertPermissionDenied(c *gc.C) {
	api := &fakeAPI{
		ensureSecret: func(string) (string, error) {
			return "", status.Error(codes.PermissionDenied, "forbidden")
		},
	}
	store := &secretStore{api: api}
	_, err := store.UpsertCredential(context.Background(), s.spec())
	c.Assert(err, jc.ErrorIs, provider.PermissionDenied)
	c.Assert(err, gc.ErrorMatches, `ensuring secret "pullcache-hub-proxy": .*`)
}

func (s *SecretsSuite) TestCredentialSecretIDHyphenatesDots(c *gc.C) {
	c.Assert(credentialSecretID("quay.io.mirror"), gc.Equals, "pullcache-quay-io-mirror")
}
