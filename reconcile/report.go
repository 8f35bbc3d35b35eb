// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reconcile

import (
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/juju/pullcache/core/status"
	"github.com/juju/pullcache/provider"
)

// ProviderResult is one provider's terminal outcome for a run.
type ProviderResult struct {
	// Status is either Done or Failed.
	Status status.Status

	// Error explains a Failed status.
	Error error

	// Endpoints maps registry names to their canonical proxy URLs.
	// It is populated only when Status is Done.
	Endpoints map[string]string
}

// Report holds the terminal outcome of every provider in a run.
type Report struct {
	Results map[provider.Kind]ProviderResult
}

func newReport() *Report {
	return &Report{Results: make(map[provider.Kind]ProviderResult)}
}

func (r *Report) set(kind provider.Kind, result ProviderResult) {
	r.Results[kind] = result
}

// Done reports whether every provider finished Done.
func (r *Report) Done() bool {
	for _, result := range r.Results {
		if result.Status != status.Done {
			return false
		}
	}
	return true
}

// FailedKinds returns the kinds that finished Failed, sorted.
func (r *Report) FailedKinds() []provider.Kind {
	var kinds []provider.Kind
	for kind, result := range r.Results {
		if result.Status == status.Failed {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Endpoints collates resolved proxy URLs as registry name to kind to
// URL, covering only the providers that finished Done.
func (r *Report) Endpoints() map[string]map[provider.Kind]string {
	endpoints := make(map[string]map[provider.Kind]string)
	for kind, result := range r.Results {
		for name, url := range result.Endpoints {
			if endpoints[name] == nil {
				endpoints[name] = make(map[provider.Kind]string)
			}
			endpoints[name][kind] = url
		}
	}
	return endpoints
}

type resultDoc struct {
	Status    string            `yaml:"status"`
	Error     string            `yaml:"error,omitempty"`
	Endpoints map[string]string `yaml:"endpoints,omitempty"`
}

// Summary renders the report as YAML keyed by provider kind, suitable
// for log output and CLI display.
func (r *Report) Summary() string {
	doc := make(map[string]resultDoc, len(r.Results))
	for kind, result := range r.Results {
		entry := resultDoc{
			Status:    result.Status.String(),
			Endpoints: result.Endpoints,
		}
		if result.Error != nil {
			entry.Error = result.Error.Error()
		}
		doc[kind.String()] = entry
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "" // unreachable for this shape
	}
	return string(out)
}
