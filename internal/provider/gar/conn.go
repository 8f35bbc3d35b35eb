// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"context"
	"fmt"

	artifactregistry "cloud.google.com/go/artifactregistry/apiv1"
	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/juju/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/juju/pullcache/provider"
)

// cloudPlatformScope covers both Artifact Registry and Secret Manager.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// API is the surface of Connection the provider and its secret store
// consume. Long running operations are waited out behind it, which is
// what lets tests substitute a fake.
type API interface {
	// GetRepository fetches the repository with the given id in the
	// connection's project and location.
	GetRepository(ctx context.Context, repoID string) (*artifactregistrypb.Repository, error)

	// CreateRepository creates the repository and waits for the
	// operation to complete.
	CreateRepository(ctx context.Context, repoID string, repo *artifactregistrypb.Repository) error

	// UpdateRepository patches the named fields of the repository.
	UpdateRepository(ctx context.Context, repo *artifactregistrypb.Repository, updatePaths []string) error

	// EnsureSecret creates the secret container if it does not exist
	// and returns its full resource name.
	EnsureSecret(ctx context.Context, secretID string) (string, error)

	// AccessLatestSecretVersion reads the current secret payload. A
	// secret with no versions yet reports not found.
	AccessLatestSecretVersion(ctx context.Context, secretID string) ([]byte, error)

	// AddSecretVersion writes a new payload version to the secret.
	AddSecretVersion(ctx context.Context, secretID string, data []byte) error
}

// Connection bundles the Artifact Registry and Secret Manager clients
// for one project and location.
type Connection struct {
	repos   *artifactregistry.Client
	secrets *secretmanager.Client

	projectID string
	location  string
}

var _ API = (*Connection)(nil)

// Connect dials the GCP clients for the account context. Injected
// service account keys take precedence; otherwise application default
// credentials apply.
func Connect(ctx context.Context, account provider.AccountContext) (*Connection, error) {
	opts, err := clientOptions(ctx, account)
	if err != nil {
		return nil, errors.Trace(err)
	}
	repos, err := artifactregistry.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "dialling artifact registry")
	}
	secrets, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		_ = repos.Close()
		return nil, errors.Annotate(err, "dialling secret manager")
	}
	return &Connection{
		repos:     repos,
		secrets:   secrets,
		projectID: account.ProjectID,
		location:  account.Region,
	}, nil
}

func clientOptions(ctx context.Context, account provider.AccountContext) ([]option.ClientOption, error) {
	auth := account.Auth
	if auth == nil || len(auth.CredentialsJSON) == 0 {
		return nil, nil
	}
	creds, err := google.CredentialsFromJSON(ctx, auth.CredentialsJSON, cloudPlatformScope)
	if err != nil {
		return nil, errors.Annotate(err, "parsing service account key")
	}
	return []option.ClientOption{option.WithTokenSource(creds.TokenSource)}, nil
}

// Close releases both underlying clients.
func (c *Connection) Close() error {
	err := c.repos.Close()
	if cerr := c.secrets.Close(); err == nil {
		err = cerr
	}
	return errors.Trace(err)
}

func (c *Connection) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.projectID, c.location)
}

func (c *Connection) repositoryName(repoID string) string {
	return c.parent() + "/repositories/" + repoID
}

func (c *Connection) secretName(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", c.projectID, secretID)
}

// GetRepository is part of API.
func (c *Connection) GetRepository(ctx context.Context, repoID string) (*artifactregistrypb.Repository, error) {
	repo, err := c.repos.GetRepository(ctx, &artifactregistrypb.GetRepositoryRequest{
		Name: c.repositoryName(repoID),
	})
	return repo, errors.Trace(err)
}

// CreateRepository is part of API.
func (c *Connection) CreateRepository(ctx context.Context, repoID string, repo *artifactregistrypb.Repository) error {
	op, err := c.repos.CreateRepository(ctx, &artifactregistrypb.CreateRepositoryRequest{
		Parent:       c.parent(),
		RepositoryId: repoID,
		Repository:   repo,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// UpdateRepository is part of API.
func (c *Connection) UpdateRepository(ctx context.Context, repo *artifactregistrypb.Repository, updatePaths []string) error {
	_, err := c.repos.UpdateRepository(ctx, &artifactregistrypb.UpdateRepositoryRequest{
		Repository: repo,
		UpdateMask: &fieldmaskpb.FieldMask{Paths: updatePaths},
	})
	return errors.Trace(err)
}

// EnsureSecret is part of API.
func (c *Connection) EnsureSecret(ctx context.Context, secretID string) (string, error) {
	name := c.secretName(secretID)
	secret, err := c.secrets.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: name})
	if err == nil {
		return secret.Name, nil
	}
	if !isNotFound(err) {
		return "", errors.Trace(err)
	}
	created, err := c.secrets.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + c.projectID,
		SecretId: secretID,
		Secret: &secretmanagerpb.Secret{
			Labels: map[string]string{"managed-by": "pullcache"},
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		return "", errors.Trace(err)
	}
	return created.Name, nil
}

// AccessLatestSecretVersion is part of API.
func (c *Connection) AccessLatestSecretVersion(ctx context.Context, secretID string) ([]byte, error) {
	resp, err := c.secrets.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: c.secretName(secretID) + "/versions/latest",
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return resp.Payload.GetData(), nil
}

// AddSecretVersion is part of API.
func (c *Connection) AddSecretVersion(ctx context.Context, secretID string, data []byte) error {
	_, err := c.secrets.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  c.secretName(secretID),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	return errors.Trace(err)
}
