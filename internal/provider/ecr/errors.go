// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ecr

import (
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/juju/errors"

	"github.com/juju/pullcache/provider"
)

// isNotFound reports whether err says the addressed rule, template or
// secret does not exist.
func isNotFound(err error) bool {
	var ruleNotFound *ecrtypes.PullThroughCacheRuleNotFoundException
	var templateNotFound *ecrtypes.TemplateNotFoundException
	var secretNotFound *smtypes.ResourceNotFoundException
	return errors.As(err, &ruleNotFound) ||
		errors.As(err, &templateNotFound) ||
		errors.As(err, &secretNotFound)
}

// isAlreadyExists reports whether err says the resource is already
// present. Under a serialized run this means another actor owns it.
func isAlreadyExists(err error) bool {
	var ruleExists *ecrtypes.PullThroughCacheRuleAlreadyExistsException
	var templateExists *ecrtypes.TemplateAlreadyExistsException
	var secretExists *smtypes.ResourceExistsException
	return errors.As(err, &ruleExists) ||
		errors.As(err, &templateExists) ||
		errors.As(err, &secretExists)
}

// isAccessDenied matches the API error codes AWS uses for
// authorization failures across ECR and Secrets Manager.
func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException",
		"UnauthorizedOperation", "UnrecognizedClientException",
		"InvalidSignatureException":
		return true
	}
	return false
}

// isRetryable matches errors that mean "slow down and try again".
// Quota exhaustion is deliberately not here: LimitExceeded does not
// heal with backoff.
func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException",
		"TooManyRequestsException", "RequestLimitExceeded",
		"ServiceUnavailableException":
		return true
	}
	// Server faults are the provider's problem, not the declaration's.
	var serverErr *ecrtypes.ServerException
	var internalErr *smtypes.InternalServiceError
	return errors.As(err, &serverErr) ||
		errors.As(err, &internalErr) ||
		apiErr.ErrorFault() == smithy.FaultServer
}

// classify annotates err with call context and tags it with the error
// kind the reconciliation driver dispatches on.
func classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	annotated := errors.Annotatef(err, format, args...)
	switch {
	case isAccessDenied(err):
		return errors.WithType(annotated, provider.PermissionDenied)
	case isRetryable(err):
		return errors.WithType(annotated, provider.Transient)
	case isAlreadyExists(err):
		return errors.WithType(annotated, provider.Conflict)
	}
	return annotated
}
