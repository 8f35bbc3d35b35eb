// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ecr provisions ECR pull-through cache rules, repository
// creation templates enforcing retention, and the Secrets Manager
// secrets carrying upstream credentials.
package ecr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/pullcache/provider"
)

var logger = loggo.GetLogger("pullcache.provider.ecr")

func init() {
	provider.Register(provider.AWS, provider.Registration{
		Namer:   Namer{},
		Factory: open,
	})
}

func open(ctx context.Context, account provider.AccountContext) (provider.Provider, error) {
	cfg, err := dialConfig(ctx, account)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return New(account, ecr.NewFromConfig(cfg), secretsmanager.NewFromConfig(cfg))
}

// New returns an AWS provider driving the given clients. It is split
// from the registered factory so tests can substitute fakes.
func New(account provider.AccountContext, registryClient ECRClient, secretsClient SecretsClient) (provider.Provider, error) {
	if err := account.Validate(provider.AWS); err != nil {
		return nil, errors.Trace(err)
	}
	return &ecrProvider{
		account: account,
		client:  registryClient,
		store:   &secretStore{client: secretsClient},
	}, nil
}

type ecrProvider struct {
	Namer

	account provider.AccountContext
	client  ECRClient
	store   *secretStore
}

// Kind is part of provider.Provider.
func (p *ecrProvider) Kind() provider.Kind {
	return provider.AWS
}

// CredentialStore is part of provider.Provider.
func (p *ecrProvider) CredentialStore() provider.CredentialStore {
	return p.store
}

// ApplyProxy converges the pull-through cache rule and the creation
// template carrying the retention policy. Applying an unchanged
// resource makes no writes.
func (p *ecrProvider) ApplyProxy(ctx context.Context, resource provider.ProxyResource) error {
	if err := p.ensureCacheRule(ctx, resource); err != nil {
		return errors.Trace(err)
	}
	if err := p.ensureCreationTemplate(ctx, resource); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (p *ecrProvider) ensureCacheRule(ctx context.Context, resource provider.ProxyResource) error {
	prefix := resource.RepositoryPrefix
	out, err := p.client.DescribePullThroughCacheRules(ctx, &ecr.DescribePullThroughCacheRulesInput{
		EcrRepositoryPrefixes: []string{prefix},
	})
	switch {
	case err == nil && len(out.PullThroughCacheRules) > 0:
		return p.convergeCacheRule(ctx, resource, out.PullThroughCacheRules[0])
	case err == nil || isNotFound(err):
		return p.createCacheRule(ctx, resource)
	default:
		return classify(err, "describing pull-through cache rule %q", prefix)
	}
}

func (p *ecrProvider) createCacheRule(ctx context.Context, resource provider.ProxyResource) error {
	in := &ecr.CreatePullThroughCacheRuleInput{
		EcrRepositoryPrefix: aws.String(resource.RepositoryPrefix),
		UpstreamRegistryUrl: aws.String(resource.Upstream),
	}
	if resource.Credential != nil {
		in.CredentialArn = aws.String(resource.Credential.Reference)
	}
	if _, err := p.client.CreatePullThroughCacheRule(ctx, in); err != nil {
		return classify(err, "creating pull-through cache rule %q", resource.RepositoryPrefix)
	}
	logger.Infof("created pull-through cache rule %q for %s", resource.RepositoryPrefix, resource.Upstream)
	return nil
}

// convergeCacheRule brings an existing rule back to the declaration.
// The upstream URL is immutable on a rule, so an upstream change
// supersedes the rule rather than updating it; a credential change is
// an in-place update.
func (p *ecrProvider) convergeCacheRule(ctx context.Context, resource provider.ProxyResource, rule ecrtypes.PullThroughCacheRule) error {
	prefix := resource.RepositoryPrefix
	if aws.ToString(rule.UpstreamRegistryUrl) != resource.Upstream {
		logger.Infof("rule %q upstream changed from %q to %q, superseding",
			prefix, aws.ToString(rule.UpstreamRegistryUrl), resource.Upstream)
		if _, err := p.client.DeletePullThroughCacheRule(ctx, &ecr.DeletePullThroughCacheRuleInput{
			EcrRepositoryPrefix: aws.String(prefix),
		}); err != nil && !isNotFound(err) {
			return classify(err, "deleting superseded pull-through cache rule %q", prefix)
		}
		return p.createCacheRule(ctx, resource)
	}

	var want string
	if resource.Credential != nil {
		want = resource.Credential.Reference
	}
	if aws.ToString(rule.CredentialArn) == want {
		logger.Debugf("pull-through cache rule %q already up to date", prefix)
		return nil
	}
	if want == "" {
		// A rule cannot go back to anonymous in place.
		logger.Infof("rule %q dropping credential, superseding", prefix)
		if _, err := p.client.DeletePullThroughCacheRule(ctx, &ecr.DeletePullThroughCacheRuleInput{
			EcrRepositoryPrefix: aws.String(prefix),
		}); err != nil && !isNotFound(err) {
			return classify(err, "deleting superseded pull-through cache rule %q", prefix)
		}
		return p.createCacheRule(ctx, resource)
	}
	if _, err := p.client.UpdatePullThroughCacheRule(ctx, &ecr.UpdatePullThroughCacheRuleInput{
		EcrRepositoryPrefix: aws.String(prefix),
		CredentialArn:       aws.String(want),
	}); err != nil {
		return classify(err, "updating pull-through cache rule %q", prefix)
	}
	logger.Infof("updated credential on pull-through cache rule %q", prefix)
	return nil
}

// ensureCreationTemplate converges the repository creation template
// that stamps the retention lifecycle policy onto every repository the
// cache rule creates.
func (p *ecrProvider) ensureCreationTemplate(ctx context.Context, resource provider.ProxyResource) error {
	prefix := resource.RepositoryPrefix
	policy, err := lifecyclePolicy(resource.Retention)
	if err != nil {
		return errors.Trace(err)
	}

	out, err := p.client.DescribeRepositoryCreationTemplates(ctx, &ecr.DescribeRepositoryCreationTemplatesInput{
		Prefixes: []string{prefix},
	})
	switch {
	case err == nil && len(out.RepositoryCreationTemplates) > 0:
		tmpl := out.RepositoryCreationTemplates[0]
		if aws.ToString(tmpl.LifecyclePolicy) == policy {
			logger.Debugf("creation template %q already up to date", prefix)
			return nil
		}
		if _, err := p.client.UpdateRepositoryCreationTemplate(ctx, &ecr.UpdateRepositoryCreationTemplateInput{
			Prefix:          aws.String(prefix),
			LifecyclePolicy: aws.String(policy),
		}); err != nil {
			return classify(err, "updating creation template %q", prefix)
		}
		logger.Infof("updated retention policy on creation template %q", prefix)
		return nil
	case err == nil || isNotFound(err):
		if _, err := p.client.CreateRepositoryCreationTemplate(ctx, &ecr.CreateRepositoryCreationTemplateInput{
			Prefix:          aws.String(prefix),
			AppliedFor:      []ecrtypes.RCTAppliedFor{ecrtypes.RCTAppliedForPullThroughCache},
			LifecyclePolicy: aws.String(policy),
			Description:     aws.String(fmt.Sprintf("retention for pull-through cache %q", prefix)),
		}); err != nil {
			return classify(err, "creating creation template %q", prefix)
		}
		logger.Infof("created creation template %q (%s)", prefix, resource.Retention)
		return nil
	default:
		return classify(err, "describing creation template %q", prefix)
	}
}

// VerifyProxy confirms the rule and its retention template are
// queryable and carry the declared settings.
func (p *ecrProvider) VerifyProxy(ctx context.Context, resource provider.ProxyResource) error {
	prefix := resource.RepositoryPrefix
	out, err := p.client.DescribePullThroughCacheRules(ctx, &ecr.DescribePullThroughCacheRulesInput{
		EcrRepositoryPrefixes: []string{prefix},
	})
	if err != nil {
		return classify(err, "verifying pull-through cache rule %q", prefix)
	}
	if len(out.PullThroughCacheRules) == 0 {
		return errors.Errorf("pull-through cache rule %q missing after apply", prefix)
	}
	if got := aws.ToString(out.PullThroughCacheRules[0].UpstreamRegistryUrl); got != resource.Upstream {
		return errors.Errorf("pull-through cache rule %q proxies %q, expected %q", prefix, got, resource.Upstream)
	}

	tmpl, err := p.client.DescribeRepositoryCreationTemplates(ctx, &ecr.DescribeRepositoryCreationTemplatesInput{
		Prefixes: []string{prefix},
	})
	if err != nil {
		return classify(err, "verifying creation template %q", prefix)
	}
	if len(tmpl.RepositoryCreationTemplates) == 0 {
		return errors.Errorf("creation template %q missing after apply", prefix)
	}
	return nil
}

// ResolveEndpoint derives the canonical proxy pull URL. Pure
// computation over the resource and account context.
func (p *ecrProvider) ResolveEndpoint(resource provider.ProxyResource) (provider.ResolvedEndpoint, error) {
	if resource.Kind != provider.AWS {
		return provider.ResolvedEndpoint{}, errors.NotValidf("resolving %q resource on aws", resource.Kind)
	}
	return provider.ResolvedEndpoint{
		RegistryName: resource.RegistryName,
		Kind:         provider.AWS,
		URL: fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s/",
			p.account.AccountID, p.account.Region, resource.RepositoryPrefix),
	}, nil
}
