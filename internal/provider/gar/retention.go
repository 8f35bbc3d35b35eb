// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"time"

	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/juju/pullcache/provider"
)

// cleanupPolicyID names the policy this engine owns on a repository.
// Policies under other ids are left alone.
const cleanupPolicyID = "expire-stale-images"

// cleanupPolicy renders the retention rule as an Artifact Registry
// cleanup policy deleting versions, tagged or not, older than the
// window.
func cleanupPolicy(rule provider.RetentionRule) *artifactregistrypb.CleanupPolicy {
	return &artifactregistrypb.CleanupPolicy{
		Id:     cleanupPolicyID,
		Action: artifactregistrypb.CleanupPolicy_DELETE,
		ConditionType: &artifactregistrypb.CleanupPolicy_Condition{
			Condition: &artifactregistrypb.CleanupPolicyCondition{
				TagState:  artifactregistrypb.CleanupPolicyCondition_ANY.Enum(),
				OlderThan: durationpb.New(time.Duration(rule.Days) * 24 * time.Hour),
			},
		},
	}
}
