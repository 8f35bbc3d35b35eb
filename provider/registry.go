// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provider

import (
	"context"
	"sort"

	"github.com/juju/errors"
)

// Factory builds a run-scoped Provider bound to the given account
// context. The returned provider is dialled and ready to use.
type Factory func(ctx context.Context, account AccountContext) (Provider, error)

// Registration ties a provider kind to its naming rules and factory.
// The Namer must be usable without dialling the provider: planning
// consults it long before any API client exists.
type Registration struct {
	Namer   Namer
	Factory Factory
}

var registeredProviders = map[Kind]Registration{}

// Register records a provider implementation for the given kind. It is
// intended to be called from implementation init functions, and panics
// on duplicate or incomplete registrations since those are programming
// errors that no caller can usefully handle.
func Register(kind Kind, reg Registration) {
	if reg.Namer == nil || reg.Factory == nil {
		panic("incomplete registration for provider " + string(kind))
	}
	if _, ok := registeredProviders[kind]; ok {
		panic("duplicate registration for provider " + string(kind))
	}
	registeredProviders[kind] = reg
}

// NamerFor returns the naming rules registered for kind.
func NamerFor(kind Kind) (Namer, error) {
	reg, ok := registeredProviders[kind]
	if !ok {
		return nil, errors.WithType(
			errors.Errorf("no provider registered for %q", kind),
			NotRegistered)
	}
	return reg.Namer, nil
}

// Open builds a run-scoped provider of the given kind bound to the
// account context.
func Open(ctx context.Context, kind Kind, account AccountContext) (Provider, error) {
	reg, ok := registeredProviders[kind]
	if !ok {
		return nil, errors.WithType(
			errors.Errorf("no provider registered for %q", kind),
			NotRegistered)
	}
	if err := account.Validate(kind); err != nil {
		return nil, errors.Trace(err)
	}
	p, err := reg.Factory(ctx, account)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s provider", kind)
	}
	return p, nil
}

// RegisteredKinds returns the kinds with a registered implementation,
// sorted for stable iteration.
func RegisteredKinds() []Kind {
	kinds := make([]Kind, 0, len(registeredProviders))
	for kind := range registeredProviders {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
