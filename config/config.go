// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the operator-authored registry declarations a
// provisioning run consumes.
package config

import (
	"os"
	"regexp"
	"sort"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/juju/pullcache/core/registry"
	"github.com/juju/pullcache/provider"
)

// registriesFile is the on-disk shape of a registries.yaml document.
//
//	registries:
//	  hub-proxy:
//	    upstream: docker.io
//	    username: robot
//	    access-token: ${DOCKERHUB_TOKEN}
//	    retention-days: 30
//	    providers: [aws, gcp]
type registriesFile struct {
	Registries map[string]registryEntry `yaml:"registries"`
}

type registryEntry struct {
	Upstream      string   `yaml:"upstream"`
	Username      string   `yaml:"username"`
	AccessToken   string   `yaml:"access-token"`
	RetentionDays int      `yaml:"retention-days"`
	Providers     []string `yaml:"providers"`
}

// ReadRegistries loads, expands and validates the registries document
// at path.
func ReadRegistries(path string) (registry.Specs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading registries file")
	}
	specs, err := ParseRegistries(data)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing registries file %q", path)
	}
	return specs, nil
}

// ParseRegistries parses a registries.yaml document into validated
// specs. Credential fields may carry ${VAR} placeholders which are
// expanded from the process environment, so that tokens live beside
// the deployment, not inside the document. Entries are returned in
// name order to keep runs deterministic.
func ParseRegistries(data []byte) (registry.Specs, error) {
	var file registriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Annotate(err, "cannot unmarshal registries document")
	}
	if len(file.Registries) == 0 {
		return nil, errors.NotValidf("registries document with no entries")
	}

	names := make([]string, 0, len(file.Registries))
	for name := range file.Registries {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make(registry.Specs, 0, len(names))
	for _, name := range names {
		entry := file.Registries[name]
		spec := registry.Spec{
			Name:          name,
			Upstream:      entry.Upstream,
			RetentionDays: entry.RetentionDays,
		}
		for _, p := range entry.Providers {
			kind, err := provider.ParseKind(p)
			if err != nil {
				return nil, errors.Annotatef(err, "registry %q", name)
			}
			spec.Providers = append(spec.Providers, string(kind))
		}
		username, err := expandEnv(entry.Username)
		if err != nil {
			return nil, errors.Annotatef(err, "registry %q username", name)
		}
		token, err := expandEnv(entry.AccessToken)
		if err != nil {
			return nil, errors.Annotatef(err, "registry %q access token", name)
		}
		if username != "" || token != "" {
			spec.Credentials = &registry.Credentials{
				Username:    username,
				AccessToken: token,
			}
		}
		specs = append(specs, spec)
	}
	if err := specs.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return specs, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// expandEnv substitutes ${VAR} placeholders from the environment. An
// unset variable is an error rather than an empty expansion: a missing
// token must fail validation loudly, not demote a private upstream to
// anonymous access.
func expandEnv(value string) (string, error) {
	var missing []string
	expanded := envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", errors.Errorf("environment variable %q not set", missing[0])
	}
	return expanded, nil
}
