// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provider

import (
	"github.com/juju/errors"

	"github.com/juju/pullcache/core/registry"
)

// Plan derives the proxy resources for every spec enabled on the given
// kind. Planning is pure local computation: no provider API is called,
// and any error is deterministic, fixed by correcting input rather than
// by retrying.
//
// Planned resources carry no credential handle. The reconciliation
// driver attaches handles after upserting secrets, so that a resource
// never references a secret that has not been written yet.
func Plan(specs registry.Specs, kind Kind) ([]ProxyResource, error) {
	namer, err := NamerFor(kind)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := specs.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	var resources []ProxyResource
	prefixOwner := make(map[string]string)
	for _, spec := range specs {
		if !spec.EnabledOn(string(kind)) {
			continue
		}
		rule, err := NewRetentionRule(spec.RetentionDays)
		if err != nil {
			return nil, errors.Annotatef(err, "registry %q", spec.Name)
		}
		prefix := namer.RepositoryPrefix(spec.Name)
		if owner, ok := prefixOwner[prefix]; ok {
			return nil, errors.WithType(
				errors.Errorf("registries %q and %q both map to repository prefix %q on %s",
					owner, spec.Name, prefix, kind),
				PrefixCollision)
		}
		prefixOwner[prefix] = spec.Name

		resource := ProxyResource{
			RegistryName:     spec.Name,
			Kind:             kind,
			RepositoryPrefix: prefix,
			Upstream:         namer.UpstreamForm(registry.NormalizeUpstream(spec.Upstream)),
			Retention:        rule,
		}
		if spec.HasCredentials() {
			resource.UpstreamUsername = spec.Credentials.Username
		}
		resources = append(resources, resource)
	}
	return resources, nil
}
