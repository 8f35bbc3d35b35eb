// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provider

import (
	"github.com/juju/errors"
)

const (
	// NotRegistered indicates no implementation is registered for the
	// requested provider kind.
	NotRegistered = errors.ConstError("provider not registered")

	// PermissionDenied indicates the provider rejected a call for lack
	// of authorization. Never retried: operator action is required.
	PermissionDenied = errors.ConstError("permission denied")

	// Transient marks provider failures that are eligible for retry
	// with backoff, such as throttling or service unavailability.
	Transient = errors.ConstError("transient provider failure")

	// Conflict indicates a resource already exists under settings
	// incompatible with the declaration, for example a repository of
	// the wrong mode occupying a planned prefix.
	Conflict = errors.ConstError("conflicting resource state")

	// PrefixCollision indicates two registry names sanitize to the
	// same repository prefix on a provider. Detected at plan time,
	// before any provider call.
	PrefixCollision = errors.ConstError("repository prefix collision")

	// InvalidRetention indicates a retention window that is not a
	// positive number of days. Rejected at plan time; providers are
	// never asked to enforce a nonsensical window.
	InvalidRetention = errors.ConstError("invalid retention window")
)

// IsFatal reports whether err must not be retried. Everything except
// an explicitly transient failure is fatal: permission and quota
// problems do not heal with backoff.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, Transient)
}
