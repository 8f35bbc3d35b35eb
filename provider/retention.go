// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provider

import (
	"fmt"

	"github.com/juju/errors"
)

// NewRetentionRule validates the expiry window and returns the rule
// attached to planned resources. Zero and negative windows are caught
// here, at plan time, so no provider API ever sees one.
func NewRetentionRule(days int) (RetentionRule, error) {
	if days <= 0 {
		return RetentionRule{}, errors.WithType(
			errors.Errorf("retention window must be a positive number of days, got %d", days),
			InvalidRetention)
	}
	return RetentionRule{Days: days}, nil
}

// String is the printable form of the rule.
func (r RetentionRule) String() string {
	return fmt.Sprintf("expire after %dd inactivity", r.Days)
}
