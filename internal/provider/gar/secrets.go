// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"context"
	"strings"

	"github.com/juju/pullcache/core/registry"
	"github.com/juju/pullcache/provider"
)

const secretIDPrefix = "pullcache-"

// credentialSecretID derives the Secret Manager secret id for a
// registry. Secret ids admit no dots, so they hyphenate.
func credentialSecretID(registryName string) string {
	return secretIDPrefix + strings.ReplaceAll(registryName, ".", "-")
}

// secretStore implements provider.CredentialStore on Secret Manager.
// Only the access token is secret material here: the username rides on
// the repository's upstream credential config instead.
type secretStore struct {
	api API
}

// UpsertCredential writes the spec's access token as the secret's
// current version and returns a handle pinned to the floating latest
// version, so rotation never re-wires consumers. A new version is only
// added when the token changed. Specs without credentials yield
// (nil, nil).
func (s *secretStore) UpsertCredential(ctx context.Context, spec registry.Spec) (*provider.CredentialHandle, error) {
	if !spec.HasCredentials() {
		return nil, nil
	}
	secretID := credentialSecretID(spec.Name)
	name, err := s.api.EnsureSecret(ctx, secretID)
	if err != nil {
		return nil, classify(err, "ensuring secret %q", secretID)
	}

	current, err := s.api.AccessLatestSecretVersion(ctx, secretID)
	switch {
	case isNotFound(err):
		// No versions yet.
		current = nil
	case err != nil:
		return nil, classify(err, "reading secret %q", secretID)
	}
	if string(current) != spec.Credentials.AccessToken {
		if current != nil {
			logger.Debugf("secret %q drifted, writing new version", secretID)
		}
		if err := s.api.AddSecretVersion(ctx, secretID, []byte(spec.Credentials.AccessToken)); err != nil {
			return nil, classify(err, "writing secret %q", secretID)
		}
	}
	return &provider.CredentialHandle{
		Kind:      provider.GCP,
		Reference: name + "/versions/latest",
	}, nil
}
