// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ecr

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/pullcache/provider"
)

// lifecyclePolicyDocument is the ECR lifecycle policy schema, reduced
// to the single expiry rule attached to cached repositories. Struct
// field order fixes the rendered JSON, so equal rules render to equal
// documents and drift detection can compare strings.
type lifecyclePolicyDocument struct {
	Rules []lifecycleRule `json:"rules"`
}

type lifecycleRule struct {
	RulePriority int                `json:"rulePriority"`
	Description  string             `json:"description"`
	Selection    lifecycleSelection `json:"selection"`
	Action       lifecycleAction    `json:"action"`
}

type lifecycleSelection struct {
	TagStatus   string `json:"tagStatus"`
	CountType   string `json:"countType"`
	CountUnit   string `json:"countUnit"`
	CountNumber int    `json:"countNumber"`
}

type lifecycleAction struct {
	Type string `json:"type"`
}

// lifecyclePolicy renders the policy expiring any image, tagged or not,
// that has not been pushed within the rule's window.
func lifecyclePolicy(rule provider.RetentionRule) (string, error) {
	doc := lifecyclePolicyDocument{
		Rules: []lifecycleRule{{
			RulePriority: 1,
			Description:  fmt.Sprintf("expire images not pushed within %d days", rule.Days),
			Selection: lifecycleSelection{
				TagStatus:   "any",
				CountType:   "sinceImagePushed",
				CountUnit:   "days",
				CountNumber: rule.Days,
			},
			Action: lifecycleAction{Type: "expire"},
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Annotate(err, "rendering lifecycle policy")
	}
	return string(data), nil
}
