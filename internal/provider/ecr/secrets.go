// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ecr

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/juju/errors"

	"github.com/juju/pullcache/core/registry"
	"github.com/juju/pullcache/provider"
)

// ECR only passes a credential to an upstream when the secret lives
// under this Secrets Manager name prefix.
const secretNamePrefix = "ecr-pullthroughcache/"

// credentialSecretName returns the Secrets Manager name owning the
// registry's upstream credential.
func credentialSecretName(registryName string) string {
	return secretNamePrefix + registryName
}

// secretPayload is the JSON document ECR expects behind a pull-through
// cache credential ARN.
type secretPayload struct {
	Username    string `json:"username"`
	AccessToken string `json:"accessToken"`
}

// secretStore implements provider.CredentialStore on Secrets Manager.
type secretStore struct {
	client SecretsClient
}

// UpsertCredential writes the spec's upstream credentials under the
// ecr-pullthroughcache/ namespace and returns the secret ARN. The
// secret value is only rewritten when the credentials changed, so a
// steady-state run leaves no new secret versions behind. Specs without
// credentials yield (nil, nil).
func (s *secretStore) UpsertCredential(ctx context.Context, spec registry.Spec) (*provider.CredentialHandle, error) {
	if !spec.HasCredentials() {
		return nil, nil
	}
	payload, err := json.Marshal(secretPayload{
		Username:    spec.Credentials.Username,
		AccessToken: spec.Credentials.AccessToken,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	name := credentialSecretName(spec.Name)

	desc, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if !isNotFound(err) {
			return nil, classify(err, "describing secret %q", name)
		}
		return s.createSecret(ctx, name, string(payload))
	}
	if desc.DeletedDate != nil {
		return nil, errors.WithType(
			errors.Errorf("secret %q is scheduled for deletion", name),
			provider.Conflict)
	}

	value, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, classify(err, "reading secret %q", name)
	}
	if aws.ToString(value.SecretString) != string(payload) {
		logger.Debugf("secret %q drifted, writing new version", name)
		if _, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(name),
			SecretString: aws.String(string(payload)),
		}); err != nil {
			return nil, classify(err, "updating secret %q", name)
		}
	}
	return &provider.CredentialHandle{
		Kind:      provider.AWS,
		Reference: aws.ToString(desc.ARN),
	}, nil
}

func (s *secretStore) createSecret(ctx context.Context, name, payload string) (*provider.CredentialHandle, error) {
	out, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		Description:  aws.String("upstream registry credential for ECR pull-through cache"),
		SecretString: aws.String(payload),
	})
	if err != nil {
		return nil, classify(err, "creating secret %q", name)
	}
	logger.Infof("created secret %q", name)
	return &provider.CredentialHandle{
		Kind:      provider.AWS,
		Reference: aws.ToString(out.ARN),
	}, nil
}
