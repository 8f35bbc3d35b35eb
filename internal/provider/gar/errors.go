// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gar

import (
	"github.com/juju/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/juju/pullcache/provider"
)

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	s, ok := status.FromError(errors.Cause(err))
	if !ok {
		return codes.Unknown
	}
	return s.Code()
}

// isNotFound reports whether err says the addressed repository, secret
// or secret version does not exist.
func isNotFound(err error) bool {
	return err != nil && grpcCode(err) == codes.NotFound
}

// classify annotates err with call context and tags it with the error
// kind the reconciliation driver dispatches on. ResourceExhausted is
// how these APIs report rate limiting, so it is retried.
func classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	annotated := errors.Annotatef(err, format, args...)
	switch grpcCode(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return errors.WithType(annotated, provider.PermissionDenied)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Internal:
		return errors.WithType(annotated, provider.Transient)
	case codes.AlreadyExists, codes.FailedPrecondition:
		return errors.WithType(annotated, provider.Conflict)
	}
	return annotated
}
